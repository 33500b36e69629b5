package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/employment"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/notice"
	"github.com/iota-uz/identity-sync/modules/identity/services"
	"github.com/iota-uz/identity-sync/pkg/ingestion"
)

type mergeCall struct {
	newID  string
	oldIDs []string
}

type stubMerger struct {
	calls []mergeCall
	err   error
}

func (m *stubMerger) MergeIdentity(ctx context.Context, newID string, oldIDs []string) (services.MergeResult, error) {
	m.calls = append(m.calls, mergeCall{newID: newID, oldIDs: oldIDs})
	if m.err != nil {
		return services.MergeResult{}, m.err
	}
	return services.MergeResult{Outcome: services.OutcomeMerged}, nil
}

type stubSyncer struct {
	notices     []notice.Notice
	employments []employment.Employment
	refreshed   []string
	err         error
}

func (s *stubSyncer) SyncNotice(ctx context.Context, n notice.Notice) error {
	s.notices = append(s.notices, n)
	return s.err
}

func (s *stubSyncer) SyncEmployment(ctx context.Context, e employment.Employment) error {
	s.employments = append(s.employments, e)
	return s.err
}

func (s *stubSyncer) RefreshName(ctx context.Context, nationalID string) error {
	s.refreshed = append(s.refreshed, nationalID)
	return s.err
}

func record(value string) ingestion.Record {
	return ingestion.Record{Topic: "t", Offset: 7, Value: []byte(value)}
}

const identityEvent = `{"identifiers":[
	{"idValue":"12345678910","idKind":"NATIONAL_ID","current":false},
	{"idValue":"10987654321","idKind":"NATIONAL_ID","current":true},
	{"idValue":"2000000000001","idKind":"ACTOR_ID","current":true}
]}`

func TestIdentityChange_MergesDetectedChange(t *testing.T) {
	m := &stubMerger{}
	h := NewIdentityChange(m, services.StrictPolicy(), nil)

	require.NoError(t, h.Handle(context.Background(), record(identityEvent)))
	require.Equal(t, []mergeCall{{newID: "10987654321", oldIDs: []string{"12345678910"}}}, m.calls)
}

func TestIdentityChange_SingleIdentifierIsNoOp(t *testing.T) {
	m := &stubMerger{}
	h := NewIdentityChange(m, services.StrictPolicy(), nil)

	err := h.Handle(context.Background(), record(`[{"idValue":"1","idKind":"NATIONAL_ID","current":true}]`))
	require.NoError(t, err)
	require.Empty(t, m.calls)
}

func TestIdentityChange_Classification(t *testing.T) {
	cases := []struct {
		name   string
		value  string
		err    error
		policy services.ErrorPolicy
		want   *ingestion.Class
	}{
		{name: "malformed json", value: `{`, policy: services.StrictPolicy(), want: classPtr(ingestion.ClassFatal)},
		{name: "two current", value: `[
			{"idValue":"1","idKind":"NATIONAL_ID","current":true},
			{"idValue":"2","idKind":"NATIONAL_ID","current":true}]`, policy: services.StrictPolicy(), want: classPtr(ingestion.ClassFatal)},
		{name: "directory unavailable", value: identityEvent, err: domain.ErrTransient, policy: services.StrictPolicy(), want: classPtr(ingestion.ClassTransient)},
		{name: "store error", value: identityEvent, err: errors.New("conn reset"), policy: services.StrictPolicy(), want: classPtr(ingestion.ClassTransient)},
		{name: "not found strict", value: identityEvent, err: domain.ErrNotFound, policy: services.StrictPolicy(), want: classPtr(ingestion.ClassFatal)},
		{name: "not found relaxed", value: identityEvent, err: domain.ErrNotFound, policy: services.ErrorPolicy{Strict: false}, want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewIdentityChange(&stubMerger{err: tc.err}, tc.policy, nil)
			err := h.Handle(context.Background(), record(tc.value))
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, *tc.want, ingestion.Classify(err))
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestNotice_Handle(t *testing.T) {
	s := &stubSyncer{}
	h := NewNotice(s, services.StrictPolicy(), nil)
	id := uuid.New()

	err := h.Handle(context.Background(), record(`{"id":"`+id.String()+`","nationalId":" 111 ","status":"SENT","payload":{"grade":50}}`))
	require.NoError(t, err)
	require.Len(t, s.notices, 1)
	require.Equal(t, id, s.notices[0].ID)
	require.Equal(t, "111", s.notices[0].NationalID)
	require.JSONEq(t, `{"grade":50}`, string(s.notices[0].Payload))

	err = h.Handle(context.Background(), record(`{"nationalId":"111"}`))
	require.Equal(t, ingestion.ClassFatal, ingestion.Classify(err))
}

func TestEmployment_Handle(t *testing.T) {
	s := &stubSyncer{}
	h := NewEmployment(s, services.StrictPolicy(), nil)

	err := h.Handle(context.Background(), record(`{"id":9,"nationalId":"111","orgNumber":"1","orgName":"A","fom":"2020-01-01","tom":"2021-12-31"}`))
	require.NoError(t, err)
	require.Len(t, s.employments, 1)
	require.Equal(t, int64(9), s.employments[0].ID)
	require.NotNil(t, s.employments[0].To)

	s.err = domain.ErrTransient
	err = h.Handle(context.Background(), record(`{"id":9,"nationalId":"111","fom":"2020-01-01"}`))
	require.Equal(t, ingestion.ClassTransient, ingestion.Classify(err))
}

func TestNameChange_Handle(t *testing.T) {
	s := &stubSyncer{err: domain.ErrNotFound}

	relaxed := NewNameChange(s, services.ErrorPolicy{}, nil)
	require.NoError(t, relaxed.Handle(context.Background(), record(`{"nationalId":"111"}`)))

	strict := NewNameChange(s, services.StrictPolicy(), nil)
	err := strict.Handle(context.Background(), record(`{"nationalId":"111"}`))
	require.Equal(t, ingestion.ClassFatal, ingestion.Classify(err))
	require.Equal(t, []string{"111", "111"}, s.refreshed)
}

func classPtr(c ingestion.Class) *ingestion.Class { return &c }
