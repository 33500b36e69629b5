//go:build integration

package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/employment"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/notice"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
	"github.com/iota-uz/identity-sync/pkg/composables"
	"github.com/iota-uz/identity-sync/pkg/testutil/containers"
)

func TestPostgresStore_Integration_MergeInto(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	s := NewPostgresStore(pg.Pool, WithLockTimeout(2*time.Second))

	birth := time.Date(1980, 3, 14, 0, 0, 0, 0, time.UTC)
	old := person.New("12345678910", person.Name{First: "Old"})
	old.BirthDate = &birth
	require.NoError(t, s.UpsertPerson(ctx, old))
	require.NoError(t, s.UpsertEmployment(ctx, employment.Employment{
		ID: 1, NationalID: "12345678910", OrgNumber: "999", From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	noticeID := uuid.New()
	require.NoError(t, s.UpsertNotice(ctx, notice.Notice{
		ID: noticeID, NationalID: "12345678910", Status: "SENT", Payload: json.RawMessage(`{"grade":100}`),
	}))

	deps, err := s.GetDependents(ctx, []string{"12345678910"})
	require.NoError(t, err)
	require.Len(t, deps.Employments, 1)
	require.Len(t, deps.Notices, 1)
	require.Len(t, deps.Persons, 1)
	require.JSONEq(t, `{"grade":100}`, string(deps.Notices[0].Payload))

	name := person.Name{First: "Fornavn", Last: "Etternavn"}
	require.NoError(t, s.MergeInto(ctx, "10987654321", name, []string{"12345678910"}, deps))

	moved, err := s.GetDependents(ctx, []string{"10987654321"})
	require.NoError(t, err)
	require.Len(t, moved.Employments, 1)
	require.Len(t, moved.Notices, 1)
	require.Equal(t, noticeID, moved.Notices[0].ID)

	p, err := s.GetPerson(ctx, "10987654321")
	require.NoError(t, err)
	require.Equal(t, "Fornavn Etternavn", p.Name.String())
	require.NotNil(t, p.BirthDate)
	require.True(t, birth.Equal(*p.BirthDate))

	_, err = s.GetPerson(ctx, "12345678910")
	require.ErrorIs(t, err, domain.ErrPersonNotFound)

	// Replaying the same merge is a no-op on the data.
	require.NoError(t, s.MergeInto(ctx, "10987654321", name, []string{"12345678910"}, domain.Dependents{}))
	again, err := s.GetDependents(ctx, []string{"10987654321"})
	require.NoError(t, err)
	require.Len(t, again.Employments, 1)
}

func TestPostgresStore_Integration_MergeRollsBackWithOuterTx(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := composables.WithPool(context.Background(), pg.Pool)
	s := NewPostgresStore(pg.Pool)

	require.NoError(t, s.UpsertEmployment(ctx, employment.Employment{
		ID: 7, NationalID: "111", From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	tx, err := pg.Pool.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	txCtx := composables.WithTx(ctx, tx)
	require.NoError(t, s.MergeInto(txCtx, "222", person.Name{First: "N"}, []string{"111"}, domain.Dependents{}))
	require.NoError(t, tx.Rollback(ctx))

	deps, err := s.GetDependents(ctx, []string{"111"})
	require.NoError(t, err)
	require.Len(t, deps.Employments, 1, "nothing is visible after the enclosing transaction rolls back")
	_, err = s.GetPerson(ctx, "222")
	require.ErrorIs(t, err, domain.ErrPersonNotFound)
}
