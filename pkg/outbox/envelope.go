package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the stable structure stored in outbox_events.payload and
// delivered to subscribers.
type PayloadEnvelope struct {
	EventID   string          `json:"event_id"`
	EventName string          `json:"event_name"`
	Version   int             `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	TenantID  string          `json:"tenant_id"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}
