package auth

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/go-kit/log"

	"github.com/veridia/device-trust/pkg/mfa"
	"github.com/veridia/device-trust/pkg/session"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger log.Logger
}

func (mw loggingMiddleware) Health(ctx context.Context) (healthy bool) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Health",
			"took", time.Since(begin),
			"healthy", healthy,
			"trace_id", opentracing.SpanFromContext(ctx),
		)
	}(time.Now())
	return mw.next.Health(ctx)
}

func (mw loggingMiddleware) Authenticate(ctx context.Context, req AuthRequest) (decision AuthDecision, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Authenticate",
			"device_id", req.DeviceId,
			"user_id", req.UserId,
			"auth_method", req.Method,
			"outcome", decision.Outcome,
			"trust_score", decision.TrustScore,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.Authenticate(ctx, req)
}

func (mw loggingMiddleware) CompleteChallenge(ctx context.Context, challengeId string, response string) (decision AuthDecision, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "CompleteChallenge",
			"challenge_id", challengeId,
			"outcome", decision.Outcome,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.CompleteChallenge(ctx, challengeId, response)
}

func (mw loggingMiddleware) SwitchMethod(ctx context.Context, challengeId string, newMethod mfa.Method) (decision AuthDecision, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "SwitchMethod",
			"challenge_id", challengeId,
			"new_method", newMethod,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.SwitchMethod(ctx, challengeId, newMethod)
}

func (mw loggingMiddleware) ValidateSession(ctx context.Context, token string) (s session.Session, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "ValidateSession",
			"device_id", s.DeviceId,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.ValidateSession(ctx, token)
}
