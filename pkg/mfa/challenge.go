package mfa

import (
	"time"
)

// Method names an MFA challenge mechanism.
type Method string

const (
	MethodTotp      Method = "totp"
	MethodSms       Method = "sms"
	MethodPush      Method = "push"
	MethodHardware  Method = "hardware"
	MethodBiometric Method = "biometric"
)

// Risk bands the engine adapts method selection to.
const (
	RiskBandLow    = "LOW"
	RiskBandMedium = "MEDIUM"
	RiskBandHigh   = "HIGH"
)

// Challenge is a live MFA challenge. Payload is method-specific and opaque
// to callers: the TOTP shared secret, the SMS/push code, or the assertion
// nonce for hardware and biometric methods. It never leaves the engine.
type Challenge struct {
	Id          string    `json:"id"`
	DeviceId    string    `json:"device_id"`
	UserId      string    `json:"user_id"`
	Method      Method    `json:"method"`
	Payload     string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Verified    bool      `json:"verified"`
}

// VerificationResult reports the outcome of a Verify call. When a failing
// challenge is halfway through its attempt budget, SuggestedFallbacks
// offers alternate methods; the caller must explicitly request
// SwitchMethod, the engine never switches on its own.
type VerificationResult struct {
	ChallengeId        string   `json:"challenge_id"`
	Verified           bool     `json:"verified"`
	Attempts           int      `json:"attempts"`
	MaxAttempts        int      `json:"max_attempts"`
	AttemptsRemaining  int      `json:"attempts_remaining"`
	SuggestedFallbacks []Method `json:"suggested_fallbacks,omitempty"`
}

// fallbackTable maps a failing method to the alternates offered, strongest
// first.
var fallbackTable = map[Method][]Method{
	MethodTotp:      {MethodSms, MethodPush},
	MethodSms:       {MethodTotp, MethodPush},
	MethodPush:      {MethodTotp, MethodSms},
	MethodHardware:  {MethodBiometric, MethodTotp},
	MethodBiometric: {MethodTotp, MethodHardware},
}

// Fallbacks returns the fallback chain for a method.
func Fallbacks(m Method) []Method {
	return append([]Method(nil), fallbackTable[m]...)
}

// strongMethods are preferred when the risk band is high.
var strongMethods = map[Method]bool{
	MethodHardware:  true,
	MethodBiometric: true,
	MethodPush:      true,
}

// ValidMethod reports whether m names a known MFA method.
func ValidMethod(m Method) bool {
	switch m {
	case MethodTotp, MethodSms, MethodPush, MethodHardware, MethodBiometric:
		return true
	}
	return false
}
