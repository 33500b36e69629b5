package persistence

import (
	"context"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/employment"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/notice"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
	"github.com/iota-uz/identity-sync/pkg/composables"
)

const (
	selectEmploymentsSQL = `
SELECT id, national_id, org_number, juridical_org_number, org_name, from_date, to_date, updated_at
  FROM employment
 WHERE national_id = ANY($1::text[])
 ORDER BY id`

	selectNoticesSQL = `
SELECT id, national_id, status, payload, updated_at
  FROM notice
 WHERE national_id = ANY($1::text[])
 ORDER BY id`

	selectPersonsSQL = `
SELECT national_id, first_name, middle_name, last_name, birth_date, updated_at
  FROM person
 WHERE national_id = ANY($1::text[])
 ORDER BY national_id`

	lockEmploymentsSQL = `SELECT id FROM employment WHERE national_id = ANY($1::text[]) ORDER BY id FOR UPDATE`
	lockNoticesSQL     = `SELECT id FROM notice WHERE national_id = ANY($1::text[]) ORDER BY id FOR UPDATE`
	lockPersonsSQL     = `SELECT national_id FROM person WHERE national_id = ANY($1::text[]) ORDER BY national_id FOR UPDATE`

	rewriteEmploymentsSQL = `UPDATE employment SET national_id = $1, updated_at = now() WHERE national_id = ANY($2::text[])`
	rewriteNoticesSQL     = `UPDATE notice SET national_id = $1, updated_at = now() WHERE national_id = ANY($2::text[])`

	// $5 wins when set, then the stored value, then the first superseded id with a birth date.
	upsertPersonSQL = `
INSERT INTO person AS p (national_id, first_name, middle_name, last_name, birth_date, updated_at)
VALUES ($1, $2, $3, $4,
        COALESCE($5::date, (
          SELECT o.birth_date
            FROM person o
           WHERE o.national_id = ANY($6::text[]) AND o.birth_date IS NOT NULL
           ORDER BY array_position($6::text[], o.national_id)
           LIMIT 1)),
        now())
ON CONFLICT (national_id) DO UPDATE
   SET first_name  = EXCLUDED.first_name,
       middle_name = EXCLUDED.middle_name,
       last_name   = EXCLUDED.last_name,
       birth_date  = COALESCE($5::date, p.birth_date, EXCLUDED.birth_date),
       updated_at  = now()`

	deletePersonsSQL = `DELETE FROM person WHERE national_id = ANY($1::text[])`

	selectPersonSQL = `
SELECT national_id, first_name, middle_name, last_name, birth_date, updated_at
  FROM person
 WHERE national_id = $1`

	upsertEmploymentSQL = `
INSERT INTO employment (id, national_id, org_number, juridical_org_number, org_name, from_date, to_date, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (id) DO UPDATE
   SET national_id          = EXCLUDED.national_id,
       org_number           = EXCLUDED.org_number,
       juridical_org_number = EXCLUDED.juridical_org_number,
       org_name             = EXCLUDED.org_name,
       from_date            = EXCLUDED.from_date,
       to_date              = EXCLUDED.to_date,
       updated_at           = now()`

	upsertNoticeSQL = `
INSERT INTO notice (id, national_id, status, payload, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (id) DO UPDATE
   SET national_id = EXCLUDED.national_id,
       status      = EXCLUDED.status,
       payload     = EXCLUDED.payload,
       updated_at  = now()`
)

type PostgresStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

type PostgresOption func(*PostgresStore)

// WithLockTimeout bounds how long a merge waits for rows locked by a concurrent merge.
func WithLockTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) { s.lockTimeout = d }
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{pool: pool, lockTimeout: 10 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *PostgresStore) GetDependents(ctx context.Context, oldIDs []string) (domain.Dependents, error) {
	q, err := s.querier(ctx)
	if err != nil {
		return domain.Dependents{}, err
	}
	ids := normalizeIDs(oldIDs)

	var deps domain.Dependents
	deps.Employments, err = queryEmployments(ctx, q, ids)
	if err != nil {
		return domain.Dependents{}, mapPgError(err, "select employments")
	}
	deps.Notices, err = queryNotices(ctx, q, ids)
	if err != nil {
		return domain.Dependents{}, mapPgError(err, "select notices")
	}
	deps.Persons, err = queryPersons(ctx, q, ids)
	if err != nil {
		return domain.Dependents{}, mapPgError(err, "select persons")
	}
	return deps, nil
}

func (s *PostgresStore) MergeInto(ctx context.Context, newID string, name person.Name, oldIDs []string, deps domain.Dependents) error {
	ids := normalizeIDs(oldIDs)
	newID = person.NormalizeID(newID)

	err := composables.InTx(composables.WithPool(ctx, s.pool), composables.TxOptions{
		IsoLevel:    pgx.ReadCommitted,
		LockTimeout: s.lockTimeout,
	}, func(txCtx context.Context) error {
		q, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}

		if err := lockRows(txCtx, q, lockEmploymentsSQL, ids); err != nil {
			return gerrors.Wrap(err, "lock employments")
		}
		if err := lockRows(txCtx, q, lockNoticesSQL, ids); err != nil {
			return gerrors.Wrap(err, "lock notices")
		}
		if err := lockRows(txCtx, q, lockPersonsSQL, append([]string{newID}, ids...)); err != nil {
			return gerrors.Wrap(err, "lock persons")
		}

		if _, err := q.Exec(txCtx, rewriteEmploymentsSQL, newID, ids); err != nil {
			return gerrors.Wrap(err, "rewrite employments")
		}
		if _, err := q.Exec(txCtx, rewriteNoticesSQL, newID, ids); err != nil {
			return gerrors.Wrap(err, "rewrite notices")
		}
		if err := upsertPerson(txCtx, q, person.New(newID, name), ids); err != nil {
			return gerrors.Wrap(err, "upsert merged person")
		}
		if _, err := q.Exec(txCtx, deletePersonsSQL, ids); err != nil {
			return gerrors.Wrap(err, "delete superseded persons")
		}
		return nil
	})
	return mapPgError(err, "merge identity")
}

func (s *PostgresStore) GetPerson(ctx context.Context, nationalID string) (person.Person, error) {
	q, err := s.querier(ctx)
	if err != nil {
		return person.Person{}, err
	}
	p, err := scanPerson(q.QueryRow(ctx, selectPersonSQL, person.NormalizeID(nationalID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return person.Person{}, domain.ErrPersonNotFound
		}
		return person.Person{}, mapPgError(err, "select person")
	}
	return p, nil
}

func (s *PostgresStore) UpsertPerson(ctx context.Context, p person.Person) error {
	q, err := s.querier(ctx)
	if err != nil {
		return err
	}
	return mapPgError(upsertPerson(ctx, q, p, nil), "upsert person")
}

func (s *PostgresStore) DeletePerson(ctx context.Context, nationalID string) error {
	q, err := s.querier(ctx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, deletePersonsSQL, []string{person.NormalizeID(nationalID)})
	return mapPgError(err, "delete person")
}

func (s *PostgresStore) UpsertEmployment(ctx context.Context, e employment.Employment) error {
	q, err := s.querier(ctx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, upsertEmploymentSQL,
		e.ID, person.NormalizeID(e.NationalID), e.OrgNumber, e.JuridicalOrgNumber, e.OrgName,
		pgDate(&e.From), pgDate(e.To),
	)
	return mapPgError(err, "upsert employment")
}

func (s *PostgresStore) UpsertNotice(ctx context.Context, n notice.Notice) error {
	q, err := s.querier(ctx)
	if err != nil {
		return err
	}
	var payload []byte
	if len(n.Payload) > 0 {
		payload = n.Payload
	}
	_, err = q.Exec(ctx, upsertNoticeSQL, n.ID, person.NormalizeID(n.NationalID), n.Status, payload)
	return mapPgError(err, "upsert notice")
}

// querier prefers a transaction already carried by ctx.
func (s *PostgresStore) querier(ctx context.Context) (composables.Querier, error) {
	if _, err := composables.UsePool(ctx); err != nil {
		ctx = composables.WithPool(ctx, s.pool)
	}
	return composables.UseTx(ctx)
}

func lockRows(ctx context.Context, q composables.Querier, sql string, ids []string) error {
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func upsertPerson(ctx context.Context, q composables.Querier, p person.Person, fallbackIDs []string) error {
	if fallbackIDs == nil {
		fallbackIDs = []string{}
	}
	_, err := q.Exec(ctx, upsertPersonSQL,
		person.NormalizeID(p.NationalID), p.Name.First, p.Name.Middle, p.Name.Last,
		pgDate(p.BirthDate), fallbackIDs,
	)
	return err
}

func queryEmployments(ctx context.Context, q composables.Querier, ids []string) ([]employment.Employment, error) {
	rows, err := q.Query(ctx, selectEmploymentsSQL, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []employment.Employment
	for rows.Next() {
		var e employment.Employment
		var from, to pgtype.Date
		if err := rows.Scan(&e.ID, &e.NationalID, &e.OrgNumber, &e.JuridicalOrgNumber, &e.OrgName, &from, &to, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.From = from.Time
		e.To = timePtr(to)
		out = append(out, e)
	}
	return out, rows.Err()
}

func queryNotices(ctx context.Context, q composables.Querier, ids []string) ([]notice.Notice, error) {
	rows, err := q.Query(ctx, selectNoticesSQL, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notice.Notice
	for rows.Next() {
		var n notice.Notice
		var id uuid.UUID
		var payload []byte
		if err := rows.Scan(&id, &n.NationalID, &n.Status, &payload, &n.UpdatedAt); err != nil {
			return nil, err
		}
		n.ID = id
		n.Payload = payload
		out = append(out, n)
	}
	return out, rows.Err()
}

func queryPersons(ctx context.Context, q composables.Querier, ids []string) ([]person.Person, error) {
	rows, err := q.Query(ctx, selectPersonsSQL, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []person.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPerson(row pgx.Row) (person.Person, error) {
	var p person.Person
	var birth pgtype.Date
	if err := row.Scan(&p.NationalID, &p.Name.First, &p.Name.Middle, &p.Name.Last, &birth, &p.UpdatedAt); err != nil {
		return person.Person{}, err
	}
	p.BirthDate = timePtr(birth)
	return p, nil
}

func pgDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func timePtr(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, person.NormalizeID(id))
	}
	return out
}
