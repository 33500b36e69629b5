package person

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Name is the display name as published by the person directory.
type Name struct {
	First  string
	Middle string
	Last   string
}

func (n Name) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{n.First, n.Middle, n.Last} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func (n Name) IsZero() bool { return n.String() == "" }

// Person is keyed by the current national id.
type Person struct {
	NationalID string
	Name       Name
	BirthDate  *time.Time
	UpdatedAt  time.Time
}

func New(nationalID string, name Name) Person {
	return Person{
		NationalID: NormalizeID(nationalID),
		Name: Name{
			First:  cleanName(name.First),
			Middle: cleanName(name.Middle),
			Last:   cleanName(name.Last),
		},
	}
}

// cleanName trims s and folds it to NFC so decomposed and composed spellings compare equal.
func cleanName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func (p Person) IsZero() bool { return p.NationalID == "" }

func NormalizeID(v string) string { return strings.TrimSpace(v) }
