package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"
)

// Envelope wraps every published event
type Envelope struct {
	ID      string    `json:"id"`
	RunID   string    `json:"run_id"`
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// NewEnvelope stamps a payload with a fresh id
func NewEnvelope(runID, eventType string, at time.Time, payload any) *Envelope {
	return &Envelope{
		ID:      uuid.NewString(),
		RunID:   runID,
		Type:    eventType,
		Time:    at.UTC(),
		Payload: payload,
	}
}

// MarshalJSON encodes the envelope
func (e *Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	return json.Marshal((*plain)(e))
}

// ToStruct converts the envelope to a protobuf Struct by way of its JSON form,
// so payload field names match the JSON encoding.
func (e *Envelope) ToStruct() (*structpb.Struct, error) {
	data, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
