package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	apierrors "github.com/veridia/device-trust/pkg/api/errors"
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

func ErrMissingDeviceID() error {
	return &apierrors.GenericError{
		Message:    "device ID not specified",
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

	r.Methods("POST").Path("/v1/devices").Handler(httptransport.NewServer(
		e.PostEnrollEndpoint,
		decodePostEnrollRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "Enroll", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	r.Methods("GET").Path("/v1/devices").Handler(httptransport.NewServer(
		e.GetDevicesEndpoint,
		decodeGetDevicesRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "GetDevices", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	r.Methods("GET").Path("/v1/devices/{id}").Handler(httptransport.NewServer(
		e.GetDeviceEndpoint,
		decodeGetDeviceRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "GetDevice", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	r.Methods("PUT").Path("/v1/devices/{id}/status").Handler(httptransport.NewServer(
		e.PutUpdateStatusEndpoint,
		decodePutUpdateStatusRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "UpdateStatus", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	r.Methods("PUT").Path("/v1/devices/{id}/trust-level").Handler(httptransport.NewServer(
		e.PutTrustLevelEndpoint,
		decodePutTrustLevelRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "SetTrustLevel", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	r.Methods("GET").Path("/v1/devices/{id}/events").Handler(httptransport.NewServer(
		e.GetDeviceEventsEndpoint,
		decodeGetDeviceEventsRequest,
		encodeResponse,
		append(
			options,
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "GetDeviceEvents", logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)...,
	))

	return r
}

func decodeHealthRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req HealthRequest
	return req, nil
}

func decodePostEnrollRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req PostEnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req.EnrollRequest); err != nil {
		return nil, &apierrors.GenericError{Message: "cannot decode JSON request", StatusCode: 400}
	}
	return req, nil
}

func decodeGetDevicesRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req GetDevicesRequest
	return req, nil
}

func decodeGetDeviceRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	vars := mux.Vars(r)
	id, ok := vars["id"]
	if !ok {
		return nil, ErrMissingDeviceID()
	}
	return GetDeviceRequest{DeviceId: id}, nil
}

func decodePutUpdateStatusRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	vars := mux.Vars(r)
	id, ok := vars["id"]
	if !ok {
		return nil, ErrMissingDeviceID()
	}
	var statusRequest PutUpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&statusRequest); err != nil {
		return nil, &apierrors.GenericError{Message: "cannot decode JSON request", StatusCode: 400}
	}
	statusRequest.DeviceId = id
	return statusRequest, nil
}

func decodePutTrustLevelRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	vars := mux.Vars(r)
	id, ok := vars["id"]
	if !ok {
		return nil, ErrMissingDeviceID()
	}
	var trustRequest PutTrustLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&trustRequest); err != nil {
		return nil, &apierrors.GenericError{Message: "cannot decode JSON request", StatusCode: 400}
	}
	trustRequest.DeviceId = id
	return trustRequest, nil
}

func decodeGetDeviceEventsRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	vars := mux.Vars(r)
	id, ok := vars["id"]
	if !ok {
		return nil, ErrMissingDeviceID()
	}
	return GetDeviceEventsRequest{DeviceId: id}, nil
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
	case ErrDeviceNotFound:
		return http.StatusNotFound
	case ErrEnrollmentRejected, ErrInvalidTransition, ErrMissingReason, ErrUnknownStatus, ErrUnknownTrustLevel:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
