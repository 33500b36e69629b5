package notice

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notice is a sick-leave notice. The medical content is kept opaque in Payload.
type Notice struct {
	ID         uuid.UUID
	NationalID string
	Status     string
	Payload    json.RawMessage
	UpdatedAt  time.Time
}
