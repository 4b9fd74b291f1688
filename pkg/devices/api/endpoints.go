package api

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/tracing/opentracing"
	"github.com/go-playground/validator/v10"
	stdopentracing "github.com/opentracing/opentracing-go"

	apierrors "github.com/veridia/device-trust/pkg/api/errors"
	devicesModel "github.com/veridia/device-trust/pkg/devices/models/device"
)

type Endpoints struct {
	HealthEndpoint          endpoint.Endpoint
	PostEnrollEndpoint      endpoint.Endpoint
	PutUpdateStatusEndpoint endpoint.Endpoint
	GetDeviceEndpoint       endpoint.Endpoint
	GetDevicesEndpoint      endpoint.Endpoint
	GetDeviceEventsEndpoint endpoint.Endpoint
	PutTrustLevelEndpoint   endpoint.Endpoint
}

func MakeServerEndpoints(s Service, otTracer stdopentracing.Tracer) Endpoints {
	var healthEndpoint endpoint.Endpoint
	{
		healthEndpoint = MakeHealthEndpoint(s)
		healthEndpoint = opentracing.TraceServer(otTracer, "Health")(healthEndpoint)
	}
	var postEnrollEndpoint endpoint.Endpoint
	{
		postEnrollEndpoint = MakeEnrollEndpoint(s)
		postEnrollEndpoint = opentracing.TraceServer(otTracer, "Enroll")(postEnrollEndpoint)
	}
	var putUpdateStatusEndpoint endpoint.Endpoint
	{
		putUpdateStatusEndpoint = MakeUpdateStatusEndpoint(s)
		putUpdateStatusEndpoint = opentracing.TraceServer(otTracer, "UpdateStatus")(putUpdateStatusEndpoint)
	}
	var getDeviceEndpoint endpoint.Endpoint
	{
		getDeviceEndpoint = MakeGetDeviceEndpoint(s)
		getDeviceEndpoint = opentracing.TraceServer(otTracer, "GetDevice")(getDeviceEndpoint)
	}
	var getDevicesEndpoint endpoint.Endpoint
	{
		getDevicesEndpoint = MakeGetDevicesEndpoint(s)
		getDevicesEndpoint = opentracing.TraceServer(otTracer, "GetDevices")(getDevicesEndpoint)
	}
	var getDeviceEventsEndpoint endpoint.Endpoint
	{
		getDeviceEventsEndpoint = MakeGetDeviceEventsEndpoint(s)
		getDeviceEventsEndpoint = opentracing.TraceServer(otTracer, "GetDeviceEvents")(getDeviceEventsEndpoint)
	}
	var putTrustLevelEndpoint endpoint.Endpoint
	{
		putTrustLevelEndpoint = MakeSetTrustLevelEndpoint(s)
		putTrustLevelEndpoint = opentracing.TraceServer(otTracer, "SetTrustLevel")(putTrustLevelEndpoint)
	}

	return Endpoints{
		HealthEndpoint:          healthEndpoint,
		PostEnrollEndpoint:      postEnrollEndpoint,
		PutUpdateStatusEndpoint: putUpdateStatusEndpoint,
		GetDeviceEndpoint:       getDeviceEndpoint,
		GetDevicesEndpoint:      getDevicesEndpoint,
		GetDeviceEventsEndpoint: getDeviceEventsEndpoint,
		PutTrustLevelEndpoint:   putTrustLevelEndpoint,
	}
}

func MakeHealthEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		healthy := s.Health(ctx)
		return HealthResponse{Healthy: healthy}, nil
	}
}

func MakeEnrollEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(PostEnrollRequest)
		err = ValidatePostEnrollRequest(req)
		if err != nil {
			valError := apierrors.ValidationError{
				Msg: err.Error(),
			}
			return nil, &valError
		}
		d, certs, err := s.Enroll(ctx, req.EnrollRequest)
		return PostEnrollResponse{Device: d, Certificates: certs}, err
	}
}

func MakeUpdateStatusEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(PutUpdateStatusRequest)
		err = ValidatePutUpdateStatusRequest(req)
		if err != nil {
			valError := apierrors.ValidationError{
				Msg: err.Error(),
			}
			return nil, &valError
		}
		event, err := s.UpdateStatus(ctx, req.DeviceId, req.Status, req.Reason, req.Actor)
		return event, err
	}
}

func MakeGetDeviceEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(GetDeviceRequest)
		d, err := s.Get(ctx, req.DeviceId)
		return d, err
	}
}

func MakeGetDevicesEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		_ = request.(GetDevicesRequest)
		devices, err := s.GetDevices(ctx)
		return devices.Devices, err
	}
}

func MakeGetDeviceEventsEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(GetDeviceEventsRequest)
		events, err := s.GetDeviceEvents(ctx, req.DeviceId)
		return events.Events, err
	}
}

func MakeSetTrustLevelEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(PutTrustLevelRequest)
		err = ValidatePutTrustLevelRequest(req)
		if err != nil {
			valError := apierrors.ValidationError{
				Msg: err.Error(),
			}
			return nil, &valError
		}
		err = s.SetTrustLevel(ctx, req.DeviceId, req.TrustLevel)
		if err != nil {
			return "", err
		}
		return "OK", nil
	}
}

type HealthRequest struct{}

type HealthResponse struct {
	Healthy bool  `json:"healthy,omitempty"`
	Err     error `json:"err,omitempty"`
}

type PostEnrollRequest struct {
	devicesModel.EnrollRequest
}

func ValidatePostEnrollRequest(request PostEnrollRequest) error {
	validate := validator.New()
	return validate.Struct(struct {
		SerialNumber string   `validate:"required"`
		MacAddresses []string `validate:"required,min=1,dive,mac"`
		Channel      string   `validate:"required"`
	}{
		SerialNumber: request.SerialNumber,
		MacAddresses: request.MacAddresses,
		Channel:      request.Channel,
	})
}

type PostEnrollResponse struct {
	Device       devicesModel.Device       `json:"device"`
	Certificates []devicesModel.DeviceCert `json:"certificates"`
	Err          error                     `json:"err,omitempty"`
}

func (r PostEnrollResponse) error() error { return r.Err }

type PutUpdateStatusRequest struct {
	DeviceId string `validate:"required"`
	Status   string `json:"status" validate:"oneof='INACTIVE' 'ACTIVE' 'SUSPENDED' 'RETIRED' 'LOST' 'COMPROMISED'"`
	Reason   string `json:"reason"`
	Actor    string `json:"actor" validate:"required"`
}

func ValidatePutUpdateStatusRequest(request PutUpdateStatusRequest) error {
	validate := validator.New()
	return validate.Struct(request)
}

type GetDeviceRequest struct {
	DeviceId string
}

type GetDevicesRequest struct{}

type GetDeviceEventsRequest struct {
	DeviceId string
}

type PutTrustLevelRequest struct {
	DeviceId   string `validate:"required"`
	TrustLevel string `json:"trust_level" validate:"oneof='UNKNOWN' 'LOW' 'MEDIUM' 'HIGH' 'CRITICAL'"`
}

func ValidatePutTrustLevelRequest(request PutTrustLevelRequest) error {
	validate := validator.New()
	return validate.Struct(request)
}
