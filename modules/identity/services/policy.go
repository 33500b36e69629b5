package services

// ErrorPolicy decides what happens to records that reference an id the person
// directory does not know. Strict halts the topic; relaxed skips the record.
type ErrorPolicy struct {
	Strict bool
}

func StrictPolicy() ErrorPolicy { return ErrorPolicy{Strict: true} }

func (p ErrorPolicy) String() string {
	if p.Strict {
		return "strict"
	}
	return "relaxed"
}
