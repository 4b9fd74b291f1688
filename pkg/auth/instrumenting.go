package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/veridia/device-trust/pkg/mfa"
	"github.com/veridia/device-trust/pkg/session"
)

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func NewInstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return &instrumentingMiddleware{
			requestCount:   counter,
			requestLatency: latency,
			next:           next,
		}
	}
}

func (mw *instrumentingMiddleware) Health(ctx context.Context) bool {
	defer func(begin time.Time) {
		lvs := []string{"method", "Health", "error", "false"}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.Health(ctx)
}

func (mw *instrumentingMiddleware) Authenticate(ctx context.Context, req AuthRequest) (decision AuthDecision, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "Authenticate", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.Authenticate(ctx, req)
}

func (mw *instrumentingMiddleware) CompleteChallenge(ctx context.Context, challengeId string, response string) (decision AuthDecision, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "CompleteChallenge", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.CompleteChallenge(ctx, challengeId, response)
}

func (mw *instrumentingMiddleware) SwitchMethod(ctx context.Context, challengeId string, newMethod mfa.Method) (decision AuthDecision, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "SwitchMethod", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.SwitchMethod(ctx, challengeId, newMethod)
}

func (mw *instrumentingMiddleware) ValidateSession(ctx context.Context, token string) (s session.Session, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ValidateSession", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.ValidateSession(ctx, token)
}
