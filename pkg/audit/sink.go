package audit

import (
	"context"
	"time"
)

// Event is a single append-only audit record. Lifecycle transitions and MFA
// verification outcomes are both published through the same stream so that
// external compliance/SIEM tooling sees one ordered feed per device.
type Event struct {
	Id        string            `json:"id"`
	Kind      string            `json:"kind"`
	DeviceId  string            `json:"device_id,omitempty"`
	UserId    string            `json:"user_id,omitempty"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

const (
	KindLifecycle       = "DEVICE_LIFECYCLE"
	KindMfaVerification = "MFA_VERIFICATION"
	KindSessionGranted  = "SESSION_GRANTED"
	KindSessionRevoked  = "SESSION_REVOKED"
)

// Sink consumes audit events. Sinks only receive; they never answer queries.
type Sink interface {
	Ingest(ctx context.Context, event Event) error
}
