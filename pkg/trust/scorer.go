package trust

import (
	"time"

	devicesModel "github.com/veridia/device-trust/pkg/devices/models/device"
)

// Auth method names accepted by the scorer.
const (
	MethodMultiFactor   = "multi_factor"
	MethodTpm           = "tpm"
	MethodCertificate   = "certificate"
	MethodHardwareToken = "hardware_token"
	MethodBiometric     = "biometric"
)

// Risk factor flags attached to a score.
const (
	FactorTpmNotAvailable       = "tpm_not_available"
	FactorInvalidCertificate    = "invalid_certificate"
	FactorUntrustedLocation     = "untrusted_location"
	FactorLongAbsence           = "long_absence"
	FactorComplianceUnavailable = "compliance_unavailable"
	FactorWeakMethod            = "weak_method"
)

// Decision bands over the final score.
const (
	BandFull      = "FULL_ACCESS" // score >= 80: grant, no challenge
	BandChallenge = "CHALLENGE"   // 60 <= score < 80: one MFA challenge, restricted session
	BandHighRisk  = "HIGH_RISK"   // score < 60: challenge plus manual review
)

const (
	fullAccessThreshold = 80
	challengeThreshold  = 60

	baseScore         = 50
	neutralCompliance = 70
	absenceWindow     = 30 * 24 * time.Hour
)

// methodBonus is the method-strength table. TPM and certificate carry
// conditional penalties handled in Score.
var methodBonus = map[string]int{
	MethodMultiFactor:   35,
	MethodTpm:           30,
	MethodCertificate:   25,
	MethodHardwareToken: 20,
	MethodBiometric:     15,
}

// levelBonus is the device trust level table.
var levelBonus = map[string]int{
	devicesModel.TrustCritical: 20,
	devicesModel.TrustHigh:     15,
	devicesModel.TrustMedium:   5,
	devicesModel.TrustLow:      -10,
	devicesModel.TrustUnknown:  -20,
}

// Scorer computes a 0-100 trust score for an authentication attempt. It is
// a pure function of its inputs; the only state is the configured location
// allow-list.
type Scorer struct {
	trustedLocations map[string]bool
}

func NewScorer(trustedLocations []string) *Scorer {
	allowed := make(map[string]bool, len(trustedLocations))
	for _, l := range trustedLocations {
		allowed[l] = true
	}
	return &Scorer{trustedLocations: allowed}
}

// Score evaluates the attempt. complianceScore is the external signal
// snapshot (use NeutralCompliance when the provider is unavailable and
// pass complianceKnown=false to record the degradation).
func (s *Scorer) Score(d devicesModel.Device, method string, location string, lastSeen time.Time, complianceScore int, complianceKnown bool) (int, []string) {
	now := time.Now().UTC()
	score := baseScore
	riskFactors := []string{}

	// 1. Method strength.
	switch method {
	case MethodTpm:
		if d.Fingerprint.TpmPresent {
			score += methodBonus[MethodTpm]
		} else {
			score -= 15
			riskFactors = append(riskFactors, FactorTpmNotAvailable)
		}
	case MethodCertificate:
		if d.HasValidCert(now) {
			score += methodBonus[MethodCertificate]
		} else {
			score -= 20
			riskFactors = append(riskFactors, FactorInvalidCertificate)
		}
	default:
		if bonus, ok := methodBonus[method]; ok {
			score += bonus
		} else {
			riskFactors = append(riskFactors, FactorWeakMethod)
		}
	}

	// 2. Device trust level.
	score += levelBonus[d.TrustLevel]

	// 3. Location.
	if s.trustedLocations[location] {
		score += 10
	} else {
		score -= 15
		riskFactors = append(riskFactors, FactorUntrustedLocation)
	}

	// 4. Recency.
	if now.Sub(lastSeen) > absenceWindow {
		score -= 10
		riskFactors = append(riskFactors, FactorLongAbsence)
	}

	// 5. Compliance signal, proportional term clamped to +-15.
	if !complianceKnown {
		complianceScore = neutralCompliance
		riskFactors = append(riskFactors, FactorComplianceUnavailable)
	}
	score += clamp((complianceScore-neutralCompliance)/3, -15, 15)

	return clamp(score, 0, 100), riskFactors
}

// BandFor maps a final score to its decision band.
func BandFor(score int) string {
	switch {
	case score >= fullAccessThreshold:
		return BandFull
	case score >= challengeThreshold:
		return BandChallenge
	default:
		return BandHighRisk
	}
}

// NeutralCompliance is the stand-in compliance score used when the
// provider cannot be reached.
func NeutralCompliance() int {
	return neutralCompliance
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
