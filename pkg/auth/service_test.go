package auth

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"

	devicesApi "github.com/veridia/device-trust/pkg/devices/api"
	devicesModel "github.com/veridia/device-trust/pkg/devices/models/device"
	devicesStore "github.com/veridia/device-trust/pkg/devices/models/device/store"
	devicememory "github.com/veridia/device-trust/pkg/devices/models/device/store/memory"
	"github.com/veridia/device-trust/pkg/ca"
	"github.com/veridia/device-trust/pkg/mfa"
	"github.com/veridia/device-trust/pkg/session"
	"github.com/veridia/device-trust/pkg/trust"
)

// captureNotifier hands dispatched SMS and push codes to the test.
type captureNotifier struct {
	codes chan string
}

func (n *captureNotifier) SendSMS(ctx context.Context, userId string, payload string) error {
	n.codes <- payload
	return nil
}

func (n *captureNotifier) SendPush(ctx context.Context, userId string, challenge mfa.Challenge) error {
	n.codes <- challenge.Payload
	return nil
}

type authSetUp struct {
	db       devicesStore.DB
	devices  devicesApi.Service
	issuer   *session.Issuer
	engine   *mfa.Engine
	notifier *captureNotifier
	srv      Service
}

func setup() authSetUp {
	db := devicememory.NewDB()
	issuer := session.NewIssuer("test-signing-key", time.Hour, nil)
	devices := devicesApi.NewDevicesService(db, ca.NewSoftwareCA("Test CA"), issuer, nil)
	notifier := &captureNotifier{codes: make(chan string, 1)}
	engine := mfa.NewEngine(mfa.EngineConfig{MaxAttempts: 3}, notifier, nil, log.NewNopLogger())
	scorer := trust.NewScorer([]string{"corporate-hq"})
	srv := NewAuthService(devices, scorer, nil, time.Second, engine, issuer)
	return authSetUp{db: db, devices: devices, issuer: issuer, engine: engine, notifier: notifier, srv: srv}
}

func insertDevice(t *testing.T, db devicesStore.DB, status string, trustLevel string, lastSeen time.Time) devicesModel.Device {
	t.Helper()
	now := time.Now().UTC()
	d := devicesModel.Device{
		Id:         uuid.New().String(),
		Status:     status,
		TrustLevel: trustLevel,
		Fingerprint: devicesModel.Fingerprint{
			SerialNumber: "SN-1",
			MacAddresses: []string{"aa:bb:cc:dd:ee:ff"},
			TpmPresent:   true,
		},
		LastSeen:   lastSeen,
		EnrolledAt: now,
	}
	if err := db.InsertDevice(context.Background(), d); err != nil {
		t.Fatal("Could not insert device")
	}
	cert := devicesModel.DeviceCert{
		Id:        uuid.New().String(),
		DeviceId:  d.Id,
		Status:    devicesModel.CertValid,
		ValidFrom: now.Add(-time.Hour),
		ValidTo:   now.Add(time.Hour),
	}
	if err := db.InsertCert(context.Background(), cert); err != nil {
		t.Fatal("Could not insert certificate")
	}
	return d
}

func TestAuthenticateGranted(t *testing.T) {
	stu := setup()
	ctx := context.Background()

	// 50 + 25 + 15 + 10 + 0 = 100, compliance provider absent.
	d := insertDevice(t, stu.db, devicesModel.StatusActive, devicesModel.TrustHigh, time.Now().UTC())
	decision, err := stu.srv.Authenticate(ctx, AuthRequest{
		DeviceId: d.Id,
		UserId:   "user-1",
		Method:   trust.MethodCertificate,
		Location: "corporate-hq",
	})
	if err != nil {
		t.Fatalf("Got result is %s; want nil", err)
	}
	if decision.Outcome != OutcomeGranted {
		t.Fatalf("Got outcome is %s; want %s", decision.Outcome, OutcomeGranted)
	}
	if decision.Session == nil || decision.Session.Token == "" {
		t.Fatal("Granted decision carries no session")
	}
	if len(decision.Session.Restrictions) != 0 {
		t.Errorf("Got restrictions %v; want none", decision.Session.Restrictions)
	}

	s, err := stu.srv.ValidateSession(ctx, decision.Session.Token)
	if err != nil {
		t.Errorf("Got result is %s; want nil", err)
	}
	if s.DeviceId != d.Id {
		t.Errorf("Got session device is %s; want %s", s.DeviceId, d.Id)
	}
}

func TestAuthenticateDenied(t *testing.T) {
	stu := setup()
	ctx := context.Background()
	suspended := insertDevice(t, stu.db, devicesModel.StatusSuspended, devicesModel.TrustHigh, time.Now().UTC())

	testCases := []struct {
		name     string
		deviceId string
	}{
		{"Unknown device", "no-such-device"},
		{"Suspended device", suspended.Id},
	}

	for _, tc := range testCases {
		t.Run("Testing "+tc.name, func(t *testing.T) {
			decision, err := stu.srv.Authenticate(ctx, AuthRequest{
				DeviceId: tc.deviceId,
				UserId:   "user-1",
				Method:   trust.MethodCertificate,
				Location: "corporate-hq",
			})
			if err != nil {
				t.Fatalf("Got result is %s; want nil", err)
			}
			if decision.Outcome != OutcomeDenied {
				t.Errorf("Got outcome is %s; want %s", decision.Outcome, OutcomeDenied)
			}
			if decision.Reason == "" {
				t.Error("Denied decision carries no reason")
			}
		})
	}
}

func TestAuthenticateChallengeFlow(t *testing.T) {
	stu := setup()
	ctx := context.Background()

	// 50 + 25 + 5 - 15 + 0 = 65, challenge band.
	d := insertDevice(t, stu.db, devicesModel.StatusActive, devicesModel.TrustMedium, time.Now().UTC())

	decision, err := stu.srv.Authenticate(ctx, AuthRequest{
		DeviceId:         d.Id,
		UserId:           "user-1",
		Method:           trust.MethodCertificate,
		Location:         "coffee-shop",
		PreferredMethods: []mfa.Method{mfa.MethodSms},
	})
	if err != nil {
		t.Fatalf("Got result is %s; want nil", err)
	}
	if decision.Outcome != OutcomeChallenge {
		t.Fatalf("Got outcome is %s; want %s", decision.Outcome, OutcomeChallenge)
	}
	if decision.TrustScore != 65 {
		t.Errorf("Got trust score is %d; want %d", decision.TrustScore, 65)
	}
	if decision.ManualReview {
		t.Error("Challenge band attempt flagged for manual review")
	}
	if decision.Challenge == nil || decision.Challenge.Method != mfa.MethodSms {
		t.Fatalf("Got challenge %+v; want an SMS challenge", decision.Challenge)
	}

	var code string
	select {
	case code = <-stu.notifier.codes:
	case <-time.After(time.Second):
		t.Fatal("SMS code never dispatched")
	}

	// A wrong answer keeps the challenge pending.
	failed, err := stu.srv.CompleteChallenge(ctx, decision.Challenge.Id, "000000")
	if err != mfa.ErrInvalidResponse {
		t.Fatalf("Got result is %s; want %s", err, mfa.ErrInvalidResponse)
	}
	if failed.Outcome != OutcomeChallenge {
		t.Errorf("Got outcome is %s; want %s", failed.Outcome, OutcomeChallenge)
	}

	granted, err := stu.srv.CompleteChallenge(ctx, decision.Challenge.Id, code)
	if err != nil {
		t.Fatalf("Got result is %s; want nil", err)
	}
	if granted.Outcome != OutcomeGranted {
		t.Fatalf("Got outcome is %s; want %s", granted.Outcome, OutcomeGranted)
	}
	if granted.TrustScore != 65 {
		t.Errorf("Got trust score is %d; want the snapshot %d", granted.TrustScore, 65)
	}
	if granted.Session == nil {
		t.Fatal("Granted decision carries no session")
	}
	if len(granted.Session.Restrictions) != 1 || granted.Session.Restrictions[0] != session.RestrictionLimitedNetwork {
		t.Errorf("Got restrictions %v; want [%s]", granted.Session.Restrictions, session.RestrictionLimitedNetwork)
	}
}

func TestAuthenticateHighRisk(t *testing.T) {
	stu := setup()
	ctx := context.Background()

	// 50 + 25 - 20 - 15 + 0 = 40, high risk band.
	d := insertDevice(t, stu.db, devicesModel.StatusActive, devicesModel.TrustUnknown, time.Now().UTC())

	decision, err := stu.srv.Authenticate(ctx, AuthRequest{
		DeviceId:         d.Id,
		UserId:           "user-1",
		Method:           trust.MethodCertificate,
		Location:         "coffee-shop",
		PreferredMethods: []mfa.Method{mfa.MethodSms, mfa.MethodPush},
	})
	if err != nil {
		t.Fatalf("Got result is %s; want nil", err)
	}
	if decision.Outcome != OutcomeChallenge {
		t.Fatalf("Got outcome is %s; want %s", decision.Outcome, OutcomeChallenge)
	}
	if !decision.ManualReview {
		t.Error("High risk attempt not flagged for manual review")
	}
	// Strong method preferred over the listed order when risk is high.
	if decision.Challenge.Method != mfa.MethodPush {
		t.Errorf("Got challenge method is %s; want %s", decision.Challenge.Method, mfa.MethodPush)
	}

	var code string
	select {
	case code = <-stu.notifier.codes:
	case <-time.After(time.Second):
		t.Fatal("Push code never dispatched")
	}

	// A correct answer still resolves the attempt: the session is granted,
	// but stays network-limited and flagged for manual review.
	granted, err := stu.srv.CompleteChallenge(ctx, decision.Challenge.Id, code)
	if err != nil {
		t.Fatalf("Got result is %s; want nil", err)
	}
	if granted.Outcome != OutcomeGranted {
		t.Fatalf("Got outcome is %s; want %s", granted.Outcome, OutcomeGranted)
	}
	if !granted.ManualReview {
		t.Error("Granted decision lost the manual review flag")
	}
	if granted.TrustScore != 40 {
		t.Errorf("Got trust score is %d; want the snapshot %d", granted.TrustScore, 40)
	}
	if granted.Session == nil {
		t.Fatal("Granted decision carries no session")
	}
	want := []string{session.RestrictionLimitedNetwork, session.RestrictionManualReview}
	if len(granted.Session.Restrictions) != len(want) {
		t.Fatalf("Got restrictions %v; want %v", granted.Session.Restrictions, want)
	}
	for i := range want {
		if granted.Session.Restrictions[i] != want[i] {
			t.Errorf("Got restriction %s; want %s", granted.Session.Restrictions[i], want[i])
		}
	}
}

func TestCompleteChallengeAfterStatusChange(t *testing.T) {
	stu := setup()
	ctx := context.Background()

	d := insertDevice(t, stu.db, devicesModel.StatusActive, devicesModel.TrustMedium, time.Now().UTC())

	decision, err := stu.srv.Authenticate(ctx, AuthRequest{
		DeviceId:         d.Id,
		UserId:           "user-1",
		Method:           trust.MethodCertificate,
		Location:         "coffee-shop",
		PreferredMethods: []mfa.Method{mfa.MethodSms},
	})
	if err != nil || decision.Outcome != OutcomeChallenge {
		t.Fatalf("Got outcome %s, err %v; want a challenge", decision.Outcome, err)
	}

	var code string
	select {
	case code = <-stu.notifier.codes:
	case <-time.After(time.Second):
		t.Fatal("SMS code never dispatched")
	}

	// The device is compromised while the challenge is pending.
	if _, err := stu.devices.UpdateStatus(ctx, d.Id, devicesModel.StatusCompromised, "incident response", "secops"); err != nil {
		t.Fatalf("Got result is %s; want nil", err)
	}

	// Even the correct response must not mint a session now.
	denied, err := stu.srv.CompleteChallenge(ctx, decision.Challenge.Id, code)
	if err != ErrDeviceInactive {
		t.Fatalf("Got result is %s; want %s", err, ErrDeviceInactive)
	}
	if denied.Outcome != OutcomeDenied {
		t.Errorf("Got outcome is %s; want %s", denied.Outcome, OutcomeDenied)
	}
	if denied.Session != nil {
		t.Error("Denied decision carries a session")
	}
	if stu.issuer.LiveSessions(d.Id) != 0 {
		t.Errorf("Got live sessions is %d; want %d", stu.issuer.LiveSessions(d.Id), 0)
	}
}

func TestSwitchMethodKeepsSnapshot(t *testing.T) {
	stu := setup()
	ctx := context.Background()

	d := insertDevice(t, stu.db, devicesModel.StatusActive, devicesModel.TrustMedium, time.Now().UTC())

	decision, err := stu.srv.Authenticate(ctx, AuthRequest{
		DeviceId:         d.Id,
		UserId:           "user-1",
		Method:           trust.MethodCertificate,
		Location:         "coffee-shop",
		PreferredMethods: []mfa.Method{mfa.MethodTotp},
	})
	if err != nil || decision.Outcome != OutcomeChallenge {
		t.Fatalf("Got outcome %s, err %v; want a challenge", decision.Outcome, err)
	}

	switched, err := stu.srv.SwitchMethod(ctx, decision.Challenge.Id, mfa.MethodSms)
	if err != nil {
		t.Fatalf("Got result is %s; want nil", err)
	}
	if switched.Challenge.Method != mfa.MethodSms {
		t.Errorf("Got challenge method is %s; want %s", switched.Challenge.Method, mfa.MethodSms)
	}
	if switched.Challenge.Id == decision.Challenge.Id {
		t.Error("Switching did not replace the challenge id")
	}

	var code string
	select {
	case code = <-stu.notifier.codes:
	case <-time.After(time.Second):
		t.Fatal("SMS code never dispatched")
	}

	granted, err := stu.srv.CompleteChallenge(ctx, switched.Challenge.Id, code)
	if err != nil {
		t.Fatalf("Got result is %s; want nil", err)
	}
	if granted.Outcome != OutcomeGranted || granted.TrustScore != 65 {
		t.Errorf("Got outcome %s with score %d; want %s with the snapshot %d", granted.Outcome, granted.TrustScore, OutcomeGranted, 65)
	}
}

func TestCompleteExpiredChallenge(t *testing.T) {
	stu := setup()
	ctx := context.Background()

	engine := mfa.NewEngine(mfa.EngineConfig{ChallengeTimeout: 50 * time.Millisecond}, mfa.NopNotifier{}, nil, log.NewNopLogger())
	scorer := trust.NewScorer([]string{"corporate-hq"})
	srv := NewAuthService(stu.devices, scorer, nil, time.Second, engine, stu.issuer)

	d := insertDevice(t, stu.db, devicesModel.StatusActive, devicesModel.TrustMedium, time.Now().UTC())

	decision, err := srv.Authenticate(ctx, AuthRequest{
		DeviceId:         d.Id,
		UserId:           "user-1",
		Method:           trust.MethodCertificate,
		Location:         "coffee-shop",
		PreferredMethods: []mfa.Method{mfa.MethodSms},
	})
	if err != nil || decision.Outcome != OutcomeChallenge {
		t.Fatalf("Got outcome %s, err %v; want a challenge", decision.Outcome, err)
	}

	time.Sleep(200 * time.Millisecond)

	denied, err := srv.CompleteChallenge(ctx, decision.Challenge.Id, "whatever")
	if err != mfa.ErrChallengeExpired {
		t.Fatalf("Got result is %s; want %s", err, mfa.ErrChallengeExpired)
	}
	if denied.Outcome != OutcomeDenied {
		t.Errorf("Got outcome is %s; want %s", denied.Outcome, OutcomeDenied)
	}
}
