package api

import (
	"context"
	"time"

	devicesModel "github.com/veridia/device-trust/pkg/devices/models/device"
	"github.com/opentracing/opentracing-go"

	"github.com/go-kit/log"
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

func (mw loggingMiddleware) Enroll(ctx context.Context, req devicesModel.EnrollRequest) (d devicesModel.Device, certs []devicesModel.DeviceCert, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Enroll",
			"serial_number", req.SerialNumber,
			"channel", req.Channel,
			"device_id", d.Id,
			"status", d.Status,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.Enroll(ctx, req)
}

func (mw loggingMiddleware) UpdateStatus(ctx context.Context, deviceId string, newStatus string, reason string, actor string) (event devicesModel.LifecycleEvent, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "UpdateStatus",
			"device_id", deviceId,
			"new_status", newStatus,
			"actor", actor,
			"certs_revoked", event.Impact.CertificatesRevoked,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.UpdateStatus(ctx, deviceId, newStatus, reason, actor)
}

func (mw loggingMiddleware) Get(ctx context.Context, deviceId string) (d devicesModel.Device, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Get",
			"device_id", deviceId,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.Get(ctx, deviceId)
}

func (mw loggingMiddleware) GetDevices(ctx context.Context) (d devicesModel.Devices, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "GetDevices",
			"count", len(d.Devices),
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.GetDevices(ctx)
}

func (mw loggingMiddleware) GetDeviceEvents(ctx context.Context, deviceId string) (events devicesModel.LifecycleEvents, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "GetDeviceEvents",
			"device_id", deviceId,
			"count", len(events.Events),
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.GetDeviceEvents(ctx, deviceId)
}

func (mw loggingMiddleware) SetTrustLevel(ctx context.Context, deviceId string, trustLevel string) (err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "SetTrustLevel",
			"device_id", deviceId,
			"trust_level", trustLevel,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.SetTrustLevel(ctx, deviceId, trustLevel)
}

func (mw loggingMiddleware) Touch(ctx context.Context, deviceId string) (err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Touch",
			"device_id", deviceId,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.Touch(ctx, deviceId)
}
