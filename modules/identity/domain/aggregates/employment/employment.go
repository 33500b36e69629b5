package employment

import "time"

// Employment is an employment relationship owned by a person's national id.
type Employment struct {
	ID                 int64
	NationalID         string
	OrgNumber          string
	JuridicalOrgNumber string
	OrgName            string
	From               time.Time
	To                 *time.Time
	UpdatedAt          time.Time
}

// ActiveAt reports whether t falls inside [From, To].
func (e Employment) ActiveAt(t time.Time) bool {
	if t.Before(e.From) {
		return false
	}
	return e.To == nil || !t.After(*e.To)
}
