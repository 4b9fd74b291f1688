package docs

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/veridia/device-trust/pkg/config"
)

func NewOpenAPI3(config config.Config) openapi3.T {

	arrayOf := func(items *openapi3.SchemaRef) *openapi3.SchemaRef {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: "array", Items: items}}
	}

	openapiSpec := openapi3.T{
		OpenAPI: "3.0.0",
		Info: &openapi3.Info{
			Title:       "Veridia Device Trust API",
			Description: "REST API used for interacting with the Veridia Device Trust service",
			Version:     "0.0.0",
			License: &openapi3.License{
				Name: "MPL v2.0",
				URL:  "https://www.mozilla.org/en-US/MPL/2.0/",
			},
			Contact: &openapi3.Contact{
				URL: "https://github.com/veridia",
			},
		},
		Servers: openapi3.Servers{
			&openapi3.Server{
				Description: "Current Server",
				URL:         "/",
			},
		},
	}

	openapiSpec.Components.Schemas = openapi3.Schemas{
		"Device": openapi3.NewSchemaRef("",
			openapi3.NewObjectSchema().
				WithProperty("id", openapi3.NewStringSchema()).
				WithProperty("alias", openapi3.NewStringSchema()).
				WithProperty("status", openapi3.NewStringSchema()).
				WithProperty("trust_level", openapi3.NewStringSchema()).
				WithProperty("last_seen", openapi3.NewIntegerSchema()).
				WithProperty("enrolled_at", openapi3.NewIntegerSchema()).
				WithProperty("enrolled_via", openapi3.NewStringSchema()),
		),
		"Fingerprint": openapi3.NewSchemaRef("",
			openapi3.NewObjectSchema().
				WithProperty("processor_id", openapi3.NewStringSchema()).
				WithProperty("mac_addresses", openapi3.NewStringSchema()).
				WithProperty("serial_number", openapi3.NewStringSchema()).
				WithProperty("tpm_present", openapi3.NewBoolSchema()).
				WithProperty("os_name", openapi3.NewStringSchema()).
				WithProperty("os_version", openapi3.NewStringSchema()),
		),
		"LifecycleEvent": openapi3.NewSchemaRef("",
			openapi3.NewObjectSchema().
				WithProperty("id", openapi3.NewStringSchema()).
				WithProperty("device_id", openapi3.NewStringSchema()).
				WithProperty("kind", openapi3.NewStringSchema()).
				WithProperty("from_status", openapi3.NewStringSchema()).
				WithProperty("to_status", openapi3.NewStringSchema()).
				WithProperty("reason", openapi3.NewStringSchema()).
				WithProperty("timestamp", openapi3.NewIntegerSchema()),
		),
		"Session": openapi3.NewSchemaRef("",
			openapi3.NewObjectSchema().
				WithProperty("id", openapi3.NewStringSchema()).
				WithProperty("device_id", openapi3.NewStringSchema()).
				WithProperty("token", openapi3.NewStringSchema()).
				WithProperty("trust_score", openapi3.NewIntegerSchema()).
				WithProperty("expires_at", openapi3.NewStringSchema()),
		),
		"AuthDecision": openapi3.NewSchemaRef("",
			openapi3.NewObjectSchema().
				WithProperty("outcome", openapi3.NewStringSchema()).
				WithProperty("trust_score", openapi3.NewIntegerSchema()).
				WithProperty("manual_review", openapi3.NewBoolSchema()).
				WithProperty("reason", openapi3.NewStringSchema()),
		),
	}

	openapiSpec.Components.RequestBodies = openapi3.RequestBodies{
		"postEnrollRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("Request used for enrolling a new device").
				WithRequired(true).
				WithJSONSchema(openapi3.NewSchema().
					WithProperty("alias", openapi3.NewStringSchema()).
					WithProperty("channel", openapi3.NewStringSchema()).
					WithPropertyRef("fingerprint", &openapi3.SchemaRef{
						Ref: "#/components/schemas/Fingerprint",
					}),
				),
		},
		"putUpdateStatusRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("Request used for changing the lifecycle status of a device").
				WithRequired(true).
				WithJSONSchema(openapi3.NewSchema().
					WithProperty("status", openapi3.NewStringSchema()).
					WithProperty("reason", openapi3.NewStringSchema()),
				),
		},
		"putTrustLevelRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("Request used for changing the trust level of a device").
				WithRequired(true).
				WithJSONSchema(openapi3.NewSchema().
					WithProperty("trust_level", openapi3.NewStringSchema()),
				),
		},
		"postAuthenticateRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("Request used for starting an authentication attempt").
				WithRequired(true).
				WithJSONSchema(openapi3.NewSchema().
					WithProperty("device_id", openapi3.NewStringSchema()).
					WithProperty("user_id", openapi3.NewStringSchema()).
					WithProperty("method", openapi3.NewStringSchema()).
					WithProperty("location", openapi3.NewStringSchema()),
				),
		},
		"postVerifyRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("Request used for answering a pending challenge").
				WithRequired(true).
				WithJSONSchema(openapi3.NewSchema().
					WithProperty("response", openapi3.NewStringSchema()),
				),
		},
		"postSwitchMethodRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("Request used for switching a pending challenge to another method").
				WithRequired(true).
				WithJSONSchema(openapi3.NewSchema().
					WithProperty("method", openapi3.NewStringSchema()),
				),
		},
		"postValidateTokenRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("Request used for validating a session token").
				WithRequired(true).
				WithJSONSchema(openapi3.NewSchema().
					WithProperty("token", openapi3.NewStringSchema()),
				),
		},
	}

	openapiSpec.Components.Responses = openapi3.Responses{
		"ErrorResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response when errors happen.").
				WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewSchema().
					WithProperty("error", openapi3.NewStringSchema()))),
		},
		"HealthResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response returned back after healthchecking.").
				WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewSchema().
					WithProperty("healthy", openapi3.NewBoolSchema())),
				),
		},
		"DeviceResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response returned back after getting a device.").
				WithContent(openapi3.NewContentWithJSONSchemaRef(&openapi3.SchemaRef{
					Ref: "#/components/schemas/Device",
				})),
		},
		"GetDevicesResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response returned back after listing devices.").
				WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewSchema().
					WithPropertyRef("devices", arrayOf(&openapi3.SchemaRef{
						Ref: "#/components/schemas/Device",
					}))),
				),
		},
		"GetDeviceEventsResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response returned back after getting the lifecycle history of a device.").
				WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewSchema().
					WithPropertyRef("events", arrayOf(&openapi3.SchemaRef{
						Ref: "#/components/schemas/LifecycleEvent",
					}))),
				),
		},
		"AuthDecisionResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response returned back after an authentication step.").
				WithContent(openapi3.NewContentWithJSONSchemaRef(&openapi3.SchemaRef{
					Ref: "#/components/schemas/AuthDecision",
				})),
		},
		"SessionResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response returned back after validating a session token.").
				WithContent(openapi3.NewContentWithJSONSchemaRef(&openapi3.SchemaRef{
					Ref: "#/components/schemas/Session",
				})),
		},
	}

	errorResponses := openapi3.Responses{
		"400": &openapi3.ResponseRef{
			Ref: "#/components/responses/ErrorResponse",
		},
		"401": &openapi3.ResponseRef{
			Ref: "#/components/responses/ErrorResponse",
		},
		"403": &openapi3.ResponseRef{
			Ref: "#/components/responses/ErrorResponse",
		},
		"404": &openapi3.ResponseRef{
			Ref: "#/components/responses/ErrorResponse",
		},
		"500": &openapi3.ResponseRef{
			Ref: "#/components/responses/ErrorResponse",
		},
	}

	withErrors := func(okRef string) openapi3.Responses {
		responses := openapi3.Responses{
			"200": &openapi3.ResponseRef{Ref: okRef},
		}
		for code, ref := range errorResponses {
			responses[code] = ref
		}
		return responses
	}

	deviceIdParam := []*openapi3.ParameterRef{
		{
			Value: openapi3.NewPathParameter("id").
				WithSchema(openapi3.NewStringSchema()),
		},
	}

	openapiSpec.Paths = openapi3.Paths{
		"/v1/health": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "Health",
				Description: "Get health status",
				Responses: openapi3.Responses{
					"200": &openapi3.ResponseRef{
						Ref: "#/components/responses/HealthResponse",
					},
				},
			},
		},
		"/v1/devices": &openapi3.PathItem{
			Post: &openapi3.Operation{
				OperationID: "Enroll",
				Description: "Enroll a new device",
				RequestBody: &openapi3.RequestBodyRef{
					Ref: "#/components/requestBodies/postEnrollRequest",
				},
				Responses: withErrors("#/components/responses/DeviceResponse"),
			},
			Get: &openapi3.Operation{
				OperationID: "GetDevices",
				Description: "List enrolled devices",
				Responses:   withErrors("#/components/responses/GetDevicesResponse"),
			},
		},
		"/v1/devices/{id}": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "GetDevice",
				Description: "Get device by id",
				Parameters:  deviceIdParam,
				Responses:   withErrors("#/components/responses/DeviceResponse"),
			},
		},
		"/v1/devices/{id}/status": &openapi3.PathItem{
			Put: &openapi3.Operation{
				OperationID: "UpdateStatus",
				Description: "Change device lifecycle status",
				Parameters:  deviceIdParam,
				RequestBody: &openapi3.RequestBodyRef{
					Ref: "#/components/requestBodies/putUpdateStatusRequest",
				},
				Responses: withErrors("#/components/responses/DeviceResponse"),
			},
		},
		"/v1/devices/{id}/trust-level": &openapi3.PathItem{
			Put: &openapi3.Operation{
				OperationID: "SetTrustLevel",
				Description: "Change device trust level",
				Parameters:  deviceIdParam,
				RequestBody: &openapi3.RequestBodyRef{
					Ref: "#/components/requestBodies/putTrustLevelRequest",
				},
				Responses: withErrors("#/components/responses/DeviceResponse"),
			},
		},
		"/v1/devices/{id}/events": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "GetDeviceEvents",
				Description: "Get device lifecycle history",
				Parameters:  deviceIdParam,
				Responses:   withErrors("#/components/responses/GetDeviceEventsResponse"),
			},
		},
		"/v1/auth": &openapi3.PathItem{
			Post: &openapi3.Operation{
				OperationID: "Authenticate",
				Description: "Start an authentication attempt",
				RequestBody: &openapi3.RequestBodyRef{
					Ref: "#/components/requestBodies/postAuthenticateRequest",
				},
				Responses: withErrors("#/components/responses/AuthDecisionResponse"),
			},
		},
		"/v1/challenges/{id}/verify": &openapi3.PathItem{
			Post: &openapi3.Operation{
				OperationID: "CompleteChallenge",
				Description: "Answer a pending challenge",
				Parameters:  deviceIdParam,
				RequestBody: &openapi3.RequestBodyRef{
					Ref: "#/components/requestBodies/postVerifyRequest",
				},
				Responses: withErrors("#/components/responses/AuthDecisionResponse"),
			},
		},
		"/v1/challenges/{id}/method": &openapi3.PathItem{
			Post: &openapi3.Operation{
				OperationID: "SwitchMethod",
				Description: "Switch a pending challenge to another method",
				Parameters:  deviceIdParam,
				RequestBody: &openapi3.RequestBodyRef{
					Ref: "#/components/requestBodies/postSwitchMethodRequest",
				},
				Responses: withErrors("#/components/responses/AuthDecisionResponse"),
			},
		},
		"/v1/sessions/validate": &openapi3.PathItem{
			Post: &openapi3.Operation{
				OperationID: "ValidateSession",
				Description: "Validate a session token",
				RequestBody: &openapi3.RequestBodyRef{
					Ref: "#/components/requestBodies/postValidateTokenRequest",
				},
				Responses: withErrors("#/components/responses/SessionResponse"),
			},
		},
	}

	return openapiSpec
}
