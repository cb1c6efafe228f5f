package streams

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Events carried on the run-dispatch stream, with the payload version
// consumers use to decode Data.
const (
	EventRunRequested = "run.requested"

	PayloadVersionV1 = "v1"
)

// RunRequested asks a worker to execute one workflow run.
type RunRequested struct {
	RunID         string `json:"run_id"`
	UserID        string `json:"user_id"`
	Query         string `json:"query"`
	MaxIterations int    `json:"max_iterations"`
}

// Envelope wraps every event written to a stream with identity and
// versioning metadata. Consumers route on EventType and decode Data per
// PayloadVersion; the wire field names are frozen.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	TraceID        string          `json:"trace_id,omitempty"`
	Attempt        int             `json:"attempt"`
	PayloadVersion string          `json:"payload_version"`
	Data           json.RawMessage `json:"data"`
}

// NewRunRequested builds a v1 run-dispatch envelope. The run id doubles
// as the trace id so one run can be followed across server, stream and
// worker logs.
func NewRunRequested(p RunRequested) (Envelope, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", EventRunRequested, err)
	}
	return Envelope{
		EventID:        uuid.NewString(),
		EventType:      EventRunRequested,
		OccurredAt:     time.Now().UTC(),
		TraceID:        p.RunID,
		Attempt:        1,
		PayloadVersion: PayloadVersionV1,
		Data:           data,
	}, nil
}

// ValidateBasic checks the fields every consumer depends on and defaults
// OccurredAt when the producer left it unset.
func (e *Envelope) ValidateBasic() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("event_id is required")
	case e.EventType == "":
		return fmt.Errorf("event_type is required")
	case e.PayloadVersion == "":
		return fmt.Errorf("payload_version is required")
	case e.Attempt < 0:
		return fmt.Errorf("attempt must be >= 0")
	case len(e.Data) == 0:
		return fmt.Errorf("data payload is required")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return nil
}

// Marshal validates and returns the JSON encoding of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.ValidateBasic(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// UnmarshalEnvelope decodes and validates one stream message body.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.ValidateBasic(); err != nil {
		return env, err
	}
	return env, nil
}
