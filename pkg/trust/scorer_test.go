package trust

import (
	"fmt"
	"testing"
	"time"

	devicesModel "github.com/veridia/device-trust/pkg/devices/models/device"
)

func testDevice(trustLevel string, tpm bool, validCert bool) devicesModel.Device {
	now := time.Now().UTC()
	d := devicesModel.Device{
		Id:         "device-1",
		Status:     devicesModel.StatusActive,
		TrustLevel: trustLevel,
		Fingerprint: devicesModel.Fingerprint{
			SerialNumber: "SN-1",
			TpmPresent:   tpm,
		},
		LastSeen: now,
	}
	if validCert {
		d.Certificates = []devicesModel.DeviceCert{{
			Id:        "cert-1",
			DeviceId:  d.Id,
			Status:    devicesModel.CertValid,
			ValidFrom: now.Add(-time.Hour),
			ValidTo:   now.Add(time.Hour),
		}}
	}
	return d
}

func TestScore(t *testing.T) {
	scorer := NewScorer([]string{"corporate-hq", "vpn"})
	recent := time.Now().UTC().Add(-time.Hour)
	stale := time.Now().UTC().Add(-45 * 24 * time.Hour)

	testCases := []struct {
		name            string
		device          devicesModel.Device
		method          string
		location        string
		lastSeen        time.Time
		compliance      int
		complianceKnown bool
		score           int
		factors         []string
	}{
		{
			// 50 + 25 + 15 + 10 + 6, clamped to 100.
			"Healthy certificate login from the office",
			testDevice(devicesModel.TrustHigh, true, true),
			MethodCertificate, "corporate-hq", recent, 90, true,
			100, nil,
		},
		{
			// 50 + 35 + 5 + 10 + 0 = 100 clamped.
			"Multi factor from trusted location",
			testDevice(devicesModel.TrustMedium, true, true),
			MethodMultiFactor, "vpn", recent, 70, true,
			100, nil,
		},
		{
			// 50 - 20 - 20 - 15 - 10 + 0 = 0, compliance unknown.
			"Unknown device with everything wrong",
			testDevice(devicesModel.TrustUnknown, false, false),
			MethodCertificate, "coffee-shop", stale, 0, false,
			0,
			[]string{FactorInvalidCertificate, FactorUntrustedLocation, FactorLongAbsence, FactorComplianceUnavailable},
		},
		{
			// 50 - 15 + 5 + 10 + 0 = 50.
			"TPM claimed but not present",
			testDevice(devicesModel.TrustMedium, false, true),
			MethodTpm, "corporate-hq", recent, 70, true,
			50, []string{FactorTpmNotAvailable},
		},
		{
			// 50 + 0 + 5 + 10 + 0 = 65, unknown method adds no bonus.
			"Unrecognized auth method",
			testDevice(devicesModel.TrustMedium, true, true),
			"password", "corporate-hq", recent, 70, true,
			65, []string{FactorWeakMethod},
		},
		{
			// 50 + 30 - 10 - 15 - 15 = 40, compliance term clamped at -15.
			"Low trust device far from compliance",
			testDevice(devicesModel.TrustLow, true, true),
			MethodTpm, "airport", recent, 0, true,
			40, []string{FactorUntrustedLocation},
		},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			score, factors := scorer.Score(tc.device, tc.method, tc.location, tc.lastSeen, tc.compliance, tc.complianceKnown)
			if score != tc.score {
				t.Errorf("Got score is %d; want %d", score, tc.score)
			}
			if len(factors) != len(tc.factors) {
				t.Fatalf("Got %d risk factors %v; want %d", len(factors), factors, len(tc.factors))
			}
			for i := range factors {
				if factors[i] != tc.factors[i] {
					t.Errorf("Got risk factor %s; want %s", factors[i], tc.factors[i])
				}
			}
		})
	}
}

func TestScoreStaysInRange(t *testing.T) {
	scorer := NewScorer([]string{"corporate-hq"})
	methods := []string{MethodMultiFactor, MethodTpm, MethodCertificate, MethodHardwareToken, MethodBiometric, "password"}
	levels := []string{devicesModel.TrustUnknown, devicesModel.TrustLow, devicesModel.TrustMedium, devicesModel.TrustHigh, devicesModel.TrustCritical}
	locations := []string{"corporate-hq", "elsewhere"}
	lastSeens := []time.Time{time.Now().UTC(), time.Now().UTC().Add(-60 * 24 * time.Hour)}
	compliances := []int{0, 70, 100}

	for _, method := range methods {
		for _, level := range levels {
			for _, location := range locations {
				for _, lastSeen := range lastSeens {
					for _, compliance := range compliances {
						for _, tpm := range []bool{true, false} {
							score, _ := scorer.Score(testDevice(level, tpm, tpm), method, location, lastSeen, compliance, true)
							if score < 0 || score > 100 {
								t.Fatalf("Got score %d outside [0, 100] for method=%s level=%s location=%s", score, method, level, location)
							}
						}
					}
				}
			}
		}
	}
}

func TestStrongerMethodNeverScoresLower(t *testing.T) {
	scorer := NewScorer([]string{"corporate-hq"})
	d := testDevice(devicesModel.TrustMedium, true, true)
	lastSeen := time.Now().UTC()

	ordered := []string{MethodMultiFactor, MethodTpm, MethodCertificate, MethodHardwareToken, MethodBiometric}
	prev := 101
	for _, method := range ordered {
		score, _ := scorer.Score(d, method, "corporate-hq", lastSeen, 70, true)
		if score > prev {
			t.Errorf("Got score %d for %s above weaker predecessor %d", score, method, prev)
		}
		prev = score
	}
}

func TestBandFor(t *testing.T) {
	testCases := []struct {
		score int
		band  string
	}{
		{100, BandFull},
		{80, BandFull},
		{79, BandChallenge},
		{60, BandChallenge},
		{59, BandHighRisk},
		{0, BandHighRisk},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing score %d", tc.score), func(t *testing.T) {
			if band := BandFor(tc.score); band != tc.band {
				t.Errorf("Got band is %s; want %s", band, tc.band)
			}
		})
	}
}
