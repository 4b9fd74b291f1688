package auth

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/tracing/opentracing"
	"github.com/go-playground/validator/v10"
	stdopentracing "github.com/opentracing/opentracing-go"

	apierrors "github.com/veridia/device-trust/pkg/api/errors"
	"github.com/veridia/device-trust/pkg/mfa"
	"github.com/veridia/device-trust/pkg/session"
)

type Endpoints struct {
	HealthEndpoint            endpoint.Endpoint
	PostAuthenticateEndpoint  endpoint.Endpoint
	PostVerifyEndpoint        endpoint.Endpoint
	PostSwitchMethodEndpoint  endpoint.Endpoint
	PostValidateTokenEndpoint endpoint.Endpoint
}

func MakeServerEndpoints(s Service, otTracer stdopentracing.Tracer) Endpoints {
	var healthEndpoint endpoint.Endpoint
	{
		healthEndpoint = MakeHealthEndpoint(s)
		healthEndpoint = opentracing.TraceServer(otTracer, "Health")(healthEndpoint)
	}
	var postAuthenticateEndpoint endpoint.Endpoint
	{
		postAuthenticateEndpoint = MakeAuthenticateEndpoint(s)
		postAuthenticateEndpoint = opentracing.TraceServer(otTracer, "Authenticate")(postAuthenticateEndpoint)
	}
	var postVerifyEndpoint endpoint.Endpoint
	{
		postVerifyEndpoint = MakeCompleteChallengeEndpoint(s)
		postVerifyEndpoint = opentracing.TraceServer(otTracer, "CompleteChallenge")(postVerifyEndpoint)
	}
	var postSwitchMethodEndpoint endpoint.Endpoint
	{
		postSwitchMethodEndpoint = MakeSwitchMethodEndpoint(s)
		postSwitchMethodEndpoint = opentracing.TraceServer(otTracer, "SwitchMethod")(postSwitchMethodEndpoint)
	}
	var postValidateTokenEndpoint endpoint.Endpoint
	{
		postValidateTokenEndpoint = MakeValidateSessionEndpoint(s)
		postValidateTokenEndpoint = opentracing.TraceServer(otTracer, "ValidateSession")(postValidateTokenEndpoint)
	}

	return Endpoints{
		HealthEndpoint:            healthEndpoint,
		PostAuthenticateEndpoint:  postAuthenticateEndpoint,
		PostVerifyEndpoint:        postVerifyEndpoint,
		PostSwitchMethodEndpoint:  postSwitchMethodEndpoint,
		PostValidateTokenEndpoint: postValidateTokenEndpoint,
	}
}

func MakeHealthEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		healthy := s.Health(ctx)
		return HealthResponse{Healthy: healthy}, nil
	}
}

func MakeAuthenticateEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(PostAuthenticateRequest)
		err = ValidatePostAuthenticateRequest(req)
		if err != nil {
			valError := apierrors.ValidationError{
				Msg: err.Error(),
			}
			return nil, &valError
		}
		decision, err := s.Authenticate(ctx, req.AuthRequest)
		return decision, err
	}
}

func MakeCompleteChallengeEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(PostVerifyRequest)
		err = ValidatePostVerifyRequest(req)
		if err != nil {
			valError := apierrors.ValidationError{
				Msg: err.Error(),
			}
			return nil, &valError
		}
		decision, err := s.CompleteChallenge(ctx, req.ChallengeId, req.Response)
		return decision, err
	}
}

func MakeSwitchMethodEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(PostSwitchMethodRequest)
		err = ValidatePostSwitchMethodRequest(req)
		if err != nil {
			valError := apierrors.ValidationError{
				Msg: err.Error(),
			}
			return nil, &valError
		}
		decision, err := s.SwitchMethod(ctx, req.ChallengeId, mfa.Method(req.NewMethod))
		return decision, err
	}
}

func MakeValidateSessionEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(PostValidateTokenRequest)
		sess, err := s.ValidateSession(ctx, req.Token)
		if err != nil {
			return nil, err
		}
		return PostValidateTokenResponse{Session: sess}, nil
	}
}

type HealthRequest struct{}

type HealthResponse struct {
	Healthy bool  `json:"healthy,omitempty"`
	Err     error `json:"err,omitempty"`
}

type PostAuthenticateRequest struct {
	AuthRequest
}

func ValidatePostAuthenticateRequest(request PostAuthenticateRequest) error {
	validate := validator.New()
	return validate.Struct(struct {
		DeviceId string `validate:"required"`
		UserId   string `validate:"required"`
		Method   string `validate:"required"`
	}{
		DeviceId: request.DeviceId,
		UserId:   request.UserId,
		Method:   request.Method,
	})
}

type PostVerifyRequest struct {
	ChallengeId string `validate:"required"`
	Response    string `json:"response" validate:"required"`
}

func ValidatePostVerifyRequest(request PostVerifyRequest) error {
	validate := validator.New()
	return validate.Struct(request)
}

type PostSwitchMethodRequest struct {
	ChallengeId string `validate:"required"`
	NewMethod   string `json:"method" validate:"oneof='totp' 'sms' 'push' 'hardware' 'biometric'"`
}

func ValidatePostSwitchMethodRequest(request PostSwitchMethodRequest) error {
	validate := validator.New()
	return validate.Struct(request)
}

type PostValidateTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type PostValidateTokenResponse struct {
	Session session.Session `json:"session"`
	Err     error           `json:"err,omitempty"`
}

func (r PostValidateTokenResponse) error() error { return r.Err }
