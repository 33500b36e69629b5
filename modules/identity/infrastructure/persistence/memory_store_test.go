package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/employment"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/notice"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
)

func seededStore(t *testing.T) (*MemoryStore, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()

	birth := time.Date(1980, 3, 14, 0, 0, 0, 0, time.UTC)
	old := person.New("12345678910", person.Name{First: "Old", Last: "Name"})
	old.BirthDate = &birth
	require.NoError(t, s.UpsertPerson(ctx, old))
	require.NoError(t, s.UpsertEmployment(ctx, employment.Employment{
		ID: 1, NationalID: "12345678910", OrgNumber: "999", From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	noticeID := uuid.New()
	require.NoError(t, s.UpsertNotice(ctx, notice.Notice{
		ID: noticeID, NationalID: "12345678910", Status: "SENT", Payload: json.RawMessage(`{"grade":100}`),
	}))
	require.NoError(t, s.UpsertEmployment(ctx, employment.Employment{
		ID: 2, NationalID: "55555555555", From: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	return s, noticeID
}

func TestMemoryStore_GetDependents(t *testing.T) {
	s, noticeID := seededStore(t)

	deps, err := s.GetDependents(context.Background(), []string{"12345678910"})
	require.NoError(t, err)
	require.Len(t, deps.Employments, 1)
	require.Equal(t, int64(1), deps.Employments[0].ID)
	require.Len(t, deps.Notices, 1)
	require.Equal(t, noticeID, deps.Notices[0].ID)
	require.Len(t, deps.Persons, 1)

	empty, err := s.GetDependents(context.Background(), []string{"00000000000"})
	require.NoError(t, err)
	require.True(t, empty.IsEmpty())
}

func TestMemoryStore_MergeInto(t *testing.T) {
	ctx := context.Background()
	s, noticeID := seededStore(t)

	deps, err := s.GetDependents(ctx, []string{"12345678910"})
	require.NoError(t, err)

	name := person.Name{First: "Fornavn", Last: "Etternavn"}
	require.NoError(t, s.MergeInto(ctx, "10987654321", name, []string{"12345678910"}, deps))

	e, ok := s.Employment(1)
	require.True(t, ok)
	require.Equal(t, "10987654321", e.NationalID)
	n, ok := s.Notice(noticeID)
	require.True(t, ok)
	require.Equal(t, "10987654321", n.NationalID)

	other, ok := s.Employment(2)
	require.True(t, ok)
	require.Equal(t, "55555555555", other.NationalID)

	p, err := s.GetPerson(ctx, "10987654321")
	require.NoError(t, err)
	require.Equal(t, "Fornavn Etternavn", p.Name.String())
	require.NotNil(t, p.BirthDate, "birth date carries over from the superseded person")
	require.Equal(t, 1980, p.BirthDate.Year())

	_, err = s.GetPerson(ctx, "12345678910")
	require.ErrorIs(t, err, domain.ErrPersonNotFound)

	left, err := s.GetDependents(ctx, []string{"12345678910"})
	require.NoError(t, err)
	require.True(t, left.IsEmpty())
}

func TestMemoryStore_MergeIntoRollsBackOnCommitFailure(t *testing.T) {
	ctx := context.Background()
	s, noticeID := seededStore(t)

	deps, err := s.GetDependents(ctx, []string{"12345678910"})
	require.NoError(t, err)

	boom := errors.New("commit failed")
	s.SetCommitHook(func() error { return boom })

	err = s.MergeInto(ctx, "10987654321", person.Name{First: "X"}, []string{"12345678910"}, deps)
	require.ErrorIs(t, err, boom)

	e, _ := s.Employment(1)
	require.Equal(t, "12345678910", e.NationalID)
	n, _ := s.Notice(noticeID)
	require.Equal(t, "12345678910", n.NationalID)
	_, err = s.GetPerson(ctx, "12345678910")
	require.NoError(t, err)
	_, err = s.GetPerson(ctx, "10987654321")
	require.ErrorIs(t, err, domain.ErrPersonNotFound)
}

func TestMemoryStore_UpsertPersonKeepsBirthDate(t *testing.T) {
	ctx := context.Background()
	s, _ := seededStore(t)

	require.NoError(t, s.UpsertPerson(ctx, person.New("12345678910", person.Name{First: "Renamed"})))

	p, err := s.GetPerson(ctx, "12345678910")
	require.NoError(t, err)
	require.Equal(t, "Renamed", p.Name.First)
	require.NotNil(t, p.BirthDate)
}

func TestMemoryStore_UpsertNormalizesOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertEmployment(ctx, employment.Employment{
		ID: 7, NationalID: " 12345678910 ", From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	noticeID := uuid.New()
	require.NoError(t, s.UpsertNotice(ctx, notice.Notice{ID: noticeID, NationalID: "12345678910\t"}))

	e, ok := s.Employment(7)
	require.True(t, ok)
	require.Equal(t, "12345678910", e.NationalID)
	n, ok := s.Notice(noticeID)
	require.True(t, ok)
	require.Equal(t, "12345678910", n.NationalID)

	deps, err := s.GetDependents(ctx, []string{"12345678910"})
	require.NoError(t, err)
	require.Len(t, deps.Employments, 1)
	require.Len(t, deps.Notices, 1)
}
