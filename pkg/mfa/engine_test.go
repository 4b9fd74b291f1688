package mfa

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
)

func testEngine(cfg EngineConfig) *Engine {
	return NewEngine(cfg, NopNotifier{}, nil, log.NewNopLogger())
}

func TestVerifyTotpChallenge(t *testing.T) {
	e := testEngine(EngineConfig{MaxAttempts: 3})
	ctx := context.Background()

	c, err := e.Issue(ctx, "user-1", "device-1", []Method{MethodTotp}, RiskBandMedium)
	if err != nil {
		t.Fatal("Could not issue challenge")
	}
	if c.Method != MethodTotp {
		t.Errorf("Got method is %s; want %s", c.Method, MethodTotp)
	}

	for i := 0; i < 2; i++ {
		result, err := e.Verify(ctx, c.Id, "000000")
		if err != ErrInvalidResponse {
			t.Errorf("Got result is %s; want %s", err, ErrInvalidResponse)
		}
		if result.Verified {
			t.Error("Wrong response verified")
		}
	}

	code, err := TotpCode(c.Payload, time.Now().UTC())
	if err != nil {
		t.Fatal("Could not compute TOTP code")
	}
	result, err := e.Verify(ctx, c.Id, code)
	if err != nil {
		t.Errorf("Got result is %s; want nil", err)
	}
	if !result.Verified {
		t.Error("Correct response not verified")
	}
	if result.Attempts != 3 {
		t.Errorf("Got attempts is %d; want %d", result.Attempts, 3)
	}

	if e.Live() != 0 {
		t.Errorf("Got live challenges is %d; want %d", e.Live(), 0)
	}
	_, err = e.Verify(ctx, c.Id, code)
	if err != ErrChallengeNotFound {
		t.Errorf("Got result is %s; want %s", err, ErrChallengeNotFound)
	}
}

func TestVerifyExpiredChallenge(t *testing.T) {
	e := testEngine(EngineConfig{ChallengeTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	c, err := e.Issue(ctx, "user-1", "device-1", []Method{MethodSms}, RiskBandMedium)
	if err != nil {
		t.Fatal("Could not issue challenge")
	}

	time.Sleep(200 * time.Millisecond)

	if e.Live() != 0 {
		t.Errorf("Got live challenges is %d; want %d", e.Live(), 0)
	}
	_, err = e.Verify(ctx, c.Id, c.Payload)
	if err != ErrChallengeExpired {
		t.Errorf("Got result is %s; want %s", err, ErrChallengeExpired)
	}
}

func TestVerifyExhaustedChallenge(t *testing.T) {
	e := testEngine(EngineConfig{MaxAttempts: 2})
	ctx := context.Background()

	c, err := e.Issue(ctx, "user-1", "device-1", []Method{MethodSms}, RiskBandMedium)
	if err != nil {
		t.Fatal("Could not issue challenge")
	}

	for i := 0; i < 2; i++ {
		result, err := e.Verify(ctx, c.Id, "wrong")
		if err != ErrInvalidResponse {
			t.Errorf("Got result is %s; want %s", err, ErrInvalidResponse)
		}
		if result.AttemptsRemaining != c.MaxAttempts-(i+1) {
			t.Errorf("Got attempts remaining is %d; want %d", result.AttemptsRemaining, c.MaxAttempts-(i+1))
		}
	}

	// The budget is spent, even the correct response is rejected now.
	_, err = e.Verify(ctx, c.Id, c.Payload)
	if err != ErrChallengeExhausted {
		t.Errorf("Got result is %s; want %s", err, ErrChallengeExhausted)
	}
	_, err = e.Verify(ctx, c.Id, c.Payload)
	if err != ErrChallengeNotFound {
		t.Errorf("Got result is %s; want %s", err, ErrChallengeNotFound)
	}
}

func TestSuggestedFallbacks(t *testing.T) {
	e := testEngine(EngineConfig{MaxAttempts: 4})
	ctx := context.Background()

	c, err := e.Issue(ctx, "user-1", "device-1", []Method{MethodTotp}, RiskBandMedium)
	if err != nil {
		t.Fatal("Could not issue challenge")
	}

	result, err := e.Verify(ctx, c.Id, "000000")
	if err != ErrInvalidResponse {
		t.Fatalf("Got result is %s; want %s", err, ErrInvalidResponse)
	}
	if len(result.SuggestedFallbacks) != 0 {
		t.Errorf("Got %d fallbacks before half the budget; want 0", len(result.SuggestedFallbacks))
	}

	result, err = e.Verify(ctx, c.Id, "000000")
	if err != ErrInvalidResponse {
		t.Fatalf("Got result is %s; want %s", err, ErrInvalidResponse)
	}
	if len(result.SuggestedFallbacks) != 2 {
		t.Errorf("Got %d fallbacks; want 2", len(result.SuggestedFallbacks))
	}
	if result.SuggestedFallbacks[0] != MethodSms || result.SuggestedFallbacks[1] != MethodPush {
		t.Errorf("Got fallbacks %v; want [%s %s]", result.SuggestedFallbacks, MethodSms, MethodPush)
	}
}

func TestSwitchMethod(t *testing.T) {
	e := testEngine(EngineConfig{MaxAttempts: 3})
	ctx := context.Background()

	c, err := e.Issue(ctx, "user-1", "device-1", []Method{MethodTotp}, RiskBandMedium)
	if err != nil {
		t.Fatal("Could not issue challenge")
	}
	if _, err = e.Verify(ctx, c.Id, "000000"); err != ErrInvalidResponse {
		t.Fatalf("Got result is %s; want %s", err, ErrInvalidResponse)
	}

	replacement, err := e.SwitchMethod(ctx, c.Id, MethodSms)
	if err != nil {
		t.Fatal("Could not switch method")
	}
	if replacement.Method != MethodSms {
		t.Errorf("Got method is %s; want %s", replacement.Method, MethodSms)
	}
	if replacement.Attempts != 0 {
		t.Errorf("Got attempts is %d; want %d", replacement.Attempts, 0)
	}
	if e.Live() != 1 {
		t.Errorf("Got live challenges is %d; want %d", e.Live(), 1)
	}

	_, err = e.Verify(ctx, c.Id, "anything")
	if err != ErrChallengeNotFound {
		t.Errorf("Got result is %s; want %s", err, ErrChallengeNotFound)
	}

	result, err := e.Verify(ctx, replacement.Id, replacement.Payload)
	if err != nil {
		t.Errorf("Got result is %s; want nil", err)
	}
	if !result.Verified {
		t.Error("Correct response not verified after switch")
	}
}

func TestIssueSupersedesChallenge(t *testing.T) {
	e := testEngine(EngineConfig{})
	ctx := context.Background()

	first, err := e.Issue(ctx, "user-1", "device-1", []Method{MethodSms}, RiskBandMedium)
	if err != nil {
		t.Fatal("Could not issue challenge")
	}
	second, err := e.Issue(ctx, "user-1", "device-1", []Method{MethodSms}, RiskBandMedium)
	if err != nil {
		t.Fatal("Could not issue challenge")
	}

	if e.Live() != 1 {
		t.Errorf("Got live challenges is %d; want %d", e.Live(), 1)
	}
	if _, err = e.Verify(ctx, first.Id, first.Payload); err != ErrChallengeNotFound {
		t.Errorf("Got result is %s; want %s", err, ErrChallengeNotFound)
	}
	if _, err = e.Get(second.Id); err != nil {
		t.Errorf("Got result is %s; want nil", err)
	}
}

func TestSelectMethod(t *testing.T) {
	testCases := []struct {
		name      string
		enabled   []Method
		preferred []Method
		riskBand  string
		method    Method
		ret       error
	}{
		{"First preferred method", nil, []Method{MethodTotp, MethodPush}, RiskBandMedium, MethodTotp, nil},
		{"Strong method wins on high risk", nil, []Method{MethodTotp, MethodPush}, RiskBandHigh, MethodPush, nil},
		{"Disabled methods skipped", []Method{MethodPush}, []Method{MethodTotp, MethodPush}, RiskBandMedium, MethodPush, nil},
		{"No usable method", []Method{MethodTotp}, []Method{MethodSms}, RiskBandMedium, "", ErrNoUsableMethod},
		{"Unknown method", nil, []Method{Method("carrier-pigeon")}, RiskBandMedium, "", ErrUnknownMethod},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			e := testEngine(EngineConfig{EnabledMethods: tc.enabled})
			c, err := e.Issue(context.Background(), "user-1", "device-1", tc.preferred, tc.riskBand)
			if tc.ret != err {
				t.Errorf("Got result is %s; want %s", err, tc.ret)
			}
			if err == nil && c.Method != tc.method {
				t.Errorf("Got method is %s; want %s", c.Method, tc.method)
			}
		})
	}
}

func TestConcurrentVerify(t *testing.T) {
	e := testEngine(EngineConfig{MaxAttempts: 100})
	ctx := context.Background()

	c, err := e.Issue(ctx, "user-1", "device-1", []Method{MethodSms}, RiskBandMedium)
	if err != nil {
		t.Fatal("Could not issue challenge")
	}

	var wg sync.WaitGroup
	verified := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := e.Verify(ctx, c.Id, c.Payload)
			if err == nil && result.Verified {
				verified <- true
			}
		}()
	}
	wg.Wait()
	close(verified)

	winners := 0
	for range verified {
		winners++
	}
	if winners != 1 {
		t.Errorf("Got %d verified results; want exactly 1", winners)
	}
}

func TestTotpCodeDrift(t *testing.T) {
	secret, err := NewTotpSecret()
	if err != nil {
		t.Fatal("Could not generate TOTP secret")
	}
	now := time.Now().UTC()

	testCases := []struct {
		name    string
		at      time.Time
		matches bool
	}{
		{"Current step", now, true},
		{"One step behind", now.Add(-30 * time.Second), true},
		{"One step ahead", now.Add(30 * time.Second), true},
		{"Two steps behind", now.Add(-60 * time.Second), false},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			code, err := TotpCode(secret, tc.at)
			if err != nil {
				t.Fatal("Could not compute TOTP code")
			}
			if got := totpMatches(secret, code, now); got != tc.matches {
				t.Errorf("Got match is %t; want %t", got, tc.matches)
			}
		})
	}
}
