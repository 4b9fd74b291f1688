package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	apierrors "github.com/veridia/device-trust/pkg/api/errors"
	"github.com/veridia/device-trust/pkg/mfa"
	"github.com/veridia/device-trust/pkg/session"
	"github.com/veridia/device-trust/pkg/utils"

	"github.com/go-kit/kit/tracing/opentracing"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/go-kit/log"

	stdopentracing "github.com/opentracing/opentracing-go"
)

type errorer interface {
	error() error
}

func ErrMissingChallengeID() error {
	return &apierrors.GenericError{
		Message:    "challenge ID not specified",
		StatusCode: 400,
	}
}

func HTTPToContext(logger log.Logger) httptransport.RequestFunc {
	return func(ctx context.Context, req *http.Request) context.Context {
		// Try to join to a trace propagated in `req`.
		uberTraceId := req.Header.Values("Uber-Trace-Id")
		if uberTraceId != nil {
			logger = log.With(logger, "span_id", uberTraceId)
		} else {
			span := stdopentracing.SpanFromContext(ctx)
			logger = log.With(logger, "span_id", span)
		}
		return context.WithValue(ctx, utils.TrustLoggerContextKey, logger)
	}
}

func MakeHTTPHandler(s Service, logger log.Logger, otTracer stdopentracing.Tracer) http.Handler {
	r := mux.NewRouter()
	e := MakeServerEndpoints(s, otTracer)
	options := []httptransport.ServerOption{
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
		httptransport.ServerErrorEncoder(encodeError),
	}

	r.Methods("GET").Path("/v1/health").Handler(httptransport.NewServer(
		e.HealthEndpoint,
		decodeHealthRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "Health", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	r.Methods("POST").Path("/v1/auth").Handler(httptransport.NewServer(
		e.PostAuthenticateEndpoint,
		decodePostAuthenticateRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "Authenticate", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	r.Methods("POST").Path("/v1/challenges/{id}/verify").Handler(httptransport.NewServer(
		e.PostVerifyEndpoint,
		decodePostVerifyRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "CompleteChallenge", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	r.Methods("POST").Path("/v1/challenges/{id}/method").Handler(httptransport.NewServer(
		e.PostSwitchMethodEndpoint,
		decodePostSwitchMethodRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "SwitchMethod", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	r.Methods("POST").Path("/v1/sessions/validate").Handler(httptransport.NewServer(
		e.PostValidateTokenEndpoint,
		decodePostValidateTokenRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "ValidateSession", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	return r
}

func decodeHealthRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req HealthRequest
	return req, nil
}

func decodePostAuthenticateRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req PostAuthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req.AuthRequest); err != nil {
		return nil, &apierrors.GenericError{Message: "cannot decode JSON request", StatusCode: 400}
	}
	return req, nil
}

func decodePostVerifyRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	vars := mux.Vars(r)
	id, ok := vars["id"]
	if !ok {
		return nil, ErrMissingChallengeID()
	}
	var req PostVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &apierrors.GenericError{Message: "cannot decode JSON request", StatusCode: 400}
	}
	req.ChallengeId = id
	return req, nil
}

func decodePostSwitchMethodRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	vars := mux.Vars(r)
	id, ok := vars["id"]
	if !ok {
		return nil, ErrMissingChallengeID()
	}
	var req PostSwitchMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &apierrors.GenericError{Message: "cannot decode JSON request", StatusCode: 400}
	}
	req.ChallengeId = id
	return req, nil
}

func decodePostValidateTokenRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req PostValidateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &apierrors.GenericError{Message: "cannot decode JSON request", StatusCode: 400}
	}
	return req, nil
}

func encodeResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if e, ok := response.(errorer); ok && e.error() != nil {
		// Not a Go kit transport error, but a business-logic error.
		// Provide those as HTTP errors.
		encodeError(ctx, e.error(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(response)
}

func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	if err == nil {
		panic("encodeError with nil error")
	}
	http.Error(w, err.Error(), codeFrom(err))
}

func codeFrom(err error) int {
	switch e := err.(type) {
	case *apierrors.ValidationError:
		return http.StatusBadRequest
	case *apierrors.DuplicateResourceError:
		return http.StatusConflict
	case *apierrors.ResourceNotFoundError:
		return http.StatusNotFound
	case *apierrors.GenericError:
		return e.StatusCode
	}
	switch err {
	case mfa.ErrChallengeNotFound:
		return http.StatusNotFound
	case mfa.ErrChallengeExpired:
		return http.StatusGone
	case mfa.ErrChallengeExhausted:
		return http.StatusTooManyRequests
	case mfa.ErrInvalidResponse, session.ErrTokenInvalid, session.ErrSessionRevoked, session.ErrSessionExpired:
		return http.StatusUnauthorized
	case mfa.ErrNoUsableMethod, mfa.ErrUnknownMethod:
		return http.StatusBadRequest
	case ErrDeviceInactive:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
