package device

import (
	"time"
)

// Device is the registry's identity record for a managed endpoint. The
// hardware fingerprint is immutable after enrollment; status and trust
// level change through lifecycle events only. Devices are never deleted,
// a decommissioned device stays in the registry as RETIRED.
type Device struct {
	Id           string       `json:"id"`
	Alias        string       `json:"alias,omitempty"`
	Status       string       `json:"status"`
	TrustLevel   string       `json:"trust_level"`
	Fingerprint  Fingerprint  `json:"fingerprint"`
	LastSeen     time.Time    `json:"last_seen"`
	EnrolledAt   time.Time    `json:"enrolled_at"`
	EnrolledVia  string       `json:"enrolled_via"`
	Certificates []DeviceCert `json:"certificates,omitempty"`
}

// Fingerprint holds the immutable hardware identity captured at enrollment.
type Fingerprint struct {
	ProcessorId  string   `json:"processor_id,omitempty"`
	MacAddresses []string `json:"mac_addresses"`
	SerialNumber string   `json:"serial_number"`
	TpmPresent   bool     `json:"tpm_present"`
	OsName       string   `json:"os_name,omitempty"`
	OsVersion    string   `json:"os_version,omitempty"`
}

type DeviceCert struct {
	Id           string    `json:"id"`
	DeviceId     string    `json:"device_id"`
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	Thumbprint   string    `json:"thumbprint"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
	Status       string    `json:"status"`
}

// LifecycleEvent is the append-only audit record of a status transition.
type LifecycleEvent struct {
	Id             string    `json:"id"`
	DeviceId       string    `json:"device_id"`
	EventType      string    `json:"event_type"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	Initiator      string    `json:"initiator"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Impact         Impact    `json:"impact"`
}

// Impact summarizes the side effects applied with a transition.
type Impact struct {
	CertificatesRevoked int  `json:"certificates_revoked"`
	AccessRevoked       bool `json:"access_revoked"`
	DataWipeRequired    bool `json:"data_wipe_required"`
}

type Devices struct {
	Devices []Device `json:"-"`
}

type LifecycleEvents struct {
	Events []LifecycleEvent `json:"-"`
}

const ( // Device status
	StatusInactive    = "INACTIVE"
	StatusActive      = "ACTIVE"
	StatusSuspended   = "SUSPENDED"
	StatusRetired     = "RETIRED"
	StatusLost        = "LOST"
	StatusCompromised = "COMPROMISED"
)

const ( // Device trust level
	TrustUnknown  = "UNKNOWN"
	TrustLow      = "LOW"
	TrustMedium   = "MEDIUM"
	TrustHigh     = "HIGH"
	TrustCritical = "CRITICAL"
)

const ( // Certificate status
	CertValid     = "VALID"
	CertExpired   = "EXPIRED"
	CertRevoked   = "REVOKED"
	CertSuspended = "SUSPENDED"
)

const ( // Lifecycle event types
	EventEnrollment   = "ENROLLMENT"
	EventStatusChange = "STATUS_CHANGE"
	EventRecovery     = "RECOVERY"
)

// allowedTransitions is the explicit edge table for device statuses.
// RETIRED and COMPROMISED are terminal. LOST may only be recovered back
// to ACTIVE through a distinct recovery event.
var allowedTransitions = map[string][]string{
	StatusInactive:    {StatusActive, StatusRetired},
	StatusActive:      {StatusInactive, StatusSuspended, StatusRetired, StatusLost, StatusCompromised},
	StatusSuspended:   {StatusActive, StatusRetired, StatusLost, StatusCompromised},
	StatusLost:        {StatusActive},
	StatusRetired:     {},
	StatusCompromised: {},
}

// TransitionAllowed reports whether from -> to is a legal status edge.
func TransitionAllowed(from string, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RevokesCertificates reports whether entering the status revokes every
// certificate the device owns.
func RevokesCertificates(status string) bool {
	return status == StatusRetired || status == StatusLost || status == StatusCompromised
}

// RequiresDataWipe reports whether entering the status flags the device
// for a remote data wipe.
func RequiresDataWipe(status string) bool {
	return status == StatusLost || status == StatusCompromised
}

// ValidStatus reports whether s names a known device status.
func ValidStatus(s string) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// HasValidCert reports whether the device owns at least one certificate
// that is VALID and inside its validity window at time now.
func (d Device) HasValidCert(now time.Time) bool {
	for _, c := range d.Certificates {
		if c.Status == CertValid && now.After(c.ValidFrom) && now.Before(c.ValidTo) {
			return true
		}
	}
	return false
}
