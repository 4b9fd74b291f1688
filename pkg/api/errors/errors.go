package errors

import "fmt"

// Typed errors shared by the HTTP transports. The transport layer maps
// each type to a status code in codeFrom.

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

type DuplicateResourceError struct {
	ResourceType string
	ResourceId   string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.ResourceType, e.ResourceId)
}

type ResourceNotFoundError struct {
	ResourceType string
	ResourceId   string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceId)
}

type GenericError struct {
	Message    string
	StatusCode int
}

func (e *GenericError) Error() string {
	return e.Message
}
