package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/employment"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/notice"
	"github.com/iota-uz/identity-sync/modules/identity/domain/identifier"
)

const dateLayout = "2006-01-02"

// IdentityChangedV1 lists every identifier currently known for one person.
type IdentityChangedV1 struct {
	Identifiers []identifier.PersonIdentifier `json:"identifiers"`
}

// NoticeV1 is a sick-leave notice snapshot.
type NoticeV1 struct {
	ID         uuid.UUID       `json:"id" validate:"required"`
	NationalID string          `json:"nationalId" validate:"required"`
	Status     string          `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EmploymentV1 is an employment relationship snapshot.
type EmploymentV1 struct {
	ID                 int64  `json:"id" validate:"required,gt=0"`
	NationalID         string `json:"nationalId" validate:"required"`
	OrgNumber          string `json:"orgNumber"`
	JuridicalOrgNumber string `json:"juridicalOrgNumber"`
	OrgName            string `json:"orgName"`
	From               Date   `json:"fom" validate:"required"`
	To                 *Date  `json:"tom,omitempty"`
}

// NameChangedV1 announces that the directory holds a new name for a person.
type NameChangedV1 struct {
	NationalID string `json:"nationalId" validate:"required"`
}

// Date is a calendar day encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

// DecodeIdentityChanged accepts either {"identifiers":[...]} or a bare array.
func DecodeIdentityChanged(value []byte) (IdentityChangedV1, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return IdentityChangedV1{}, errors.Wrap(domain.ErrInvariantViolation, "empty identity event")
	}
	var ev IdentityChangedV1
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &ev.Identifiers); err != nil {
			return IdentityChangedV1{}, decodeErr(err, "decode identity event")
		}
		return ev, nil
	}
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return IdentityChangedV1{}, decodeErr(err, "decode identity event")
	}
	return ev, nil
}

func DecodeNotice(value []byte) (NoticeV1, error) {
	var ev NoticeV1
	if err := json.Unmarshal(value, &ev); err != nil {
		return NoticeV1{}, decodeErr(err, "decode notice event")
	}
	ev.NationalID = strings.TrimSpace(ev.NationalID)
	if err := validateEvent(ev, "notice event"); err != nil {
		return NoticeV1{}, err
	}
	return ev, nil
}

func DecodeEmployment(value []byte) (EmploymentV1, error) {
	var ev EmploymentV1
	if err := json.Unmarshal(value, &ev); err != nil {
		return EmploymentV1{}, decodeErr(err, "decode employment event")
	}
	ev.NationalID = strings.TrimSpace(ev.NationalID)
	if err := validateEvent(ev, "employment event"); err != nil {
		return EmploymentV1{}, err
	}
	if ev.To != nil && ev.To.Before(ev.From.Time) {
		return EmploymentV1{}, errors.Wrap(domain.ErrInvariantViolation, "employment ends before it starts")
	}
	return ev, nil
}

func DecodeNameChanged(value []byte) (NameChangedV1, error) {
	var ev NameChangedV1
	if err := json.Unmarshal(value, &ev); err != nil {
		return NameChangedV1{}, decodeErr(err, "decode name event")
	}
	ev.NationalID = strings.TrimSpace(ev.NationalID)
	if err := validateEvent(ev, "name event"); err != nil {
		return NameChangedV1{}, err
	}
	return ev, nil
}

func decodeErr(err error, msg string) error {
	if errors.Is(err, domain.ErrInvariantViolation) {
		return errors.Wrap(err, msg)
	}
	return errors.Wrapf(domain.ErrInvariantViolation, "%s: %v", msg, err)
}

func (e NoticeV1) ToNotice() notice.Notice {
	return notice.Notice{
		ID:         e.ID,
		NationalID: strings.TrimSpace(e.NationalID),
		Status:     strings.TrimSpace(e.Status),
		Payload:    e.Payload,
	}
}

func (e EmploymentV1) ToEmployment() employment.Employment {
	out := employment.Employment{
		ID:                 e.ID,
		NationalID:         strings.TrimSpace(e.NationalID),
		OrgNumber:          strings.TrimSpace(e.OrgNumber),
		JuridicalOrgNumber: strings.TrimSpace(e.JuridicalOrgNumber),
		OrgName:            strings.TrimSpace(e.OrgName),
		From:               e.From.Time,
	}
	if e.To != nil {
		to := e.To.Time
		out.To = &to
	}
	return out
}
