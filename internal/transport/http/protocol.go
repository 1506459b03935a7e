package http

import (
	"encoding/json"
	"errors"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/store"
)

// Gateway operations.
const (
	OpGet                = "get"
	OpSet                = "set"
	OpUpdate             = "update"
	OpRemove             = "remove"
	OpSubscribe          = "subscribe"
	OpUnsubscribe        = "unsubscribe"
	OpRemoveOnDisconnect = "onDisconnectRemove"
)

// Response types.
const (
	TypeAck      = "ack"
	TypeValue    = "value"
	TypeError    = "error"
	TypeSnapshot = "snapshot"
)

// Error codes carried in error frames.
const (
	CodeInvalidPath = "invalid_path"
	CodeClosed      = "closed"
	CodeBadRequest  = "bad_request"
	CodeInternal    = "internal"
)

// Request is a client frame on the store gateway.
type Request struct {
	ID     uint64                     `json:"id"`
	Op     string                     `json:"op"`
	Path   string                     `json:"path,omitempty"`
	Value  json.RawMessage            `json:"value,omitempty"`
	Fields map[string]json.RawMessage `json:"fields,omitempty"`
	// Sub names the subscription to end for unsubscribe.
	Sub uint64 `json:"sub,omitempty"`
}

// Response is either the reply to a request (ID set) or a subscription push (Sub set).
// A subscription's id is the id of the request that opened it.
type Response struct {
	ID     uint64          `json:"id,omitempty"`
	Type   string          `json:"type"`
	Sub    uint64          `json:"sub,omitempty"`
	Path   string          `json:"path,omitempty"`
	Exists bool            `json:"exists,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Code   string          `json:"code,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ErrorCode classifies err for the wire.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrInvalidPath):
		return CodeInvalidPath
	case errors.Is(err, store.ErrClosed):
		return CodeClosed
	}
	return CodeInternal
}

// CodeError maps a wire error code back to the matching sentinel, when there is one.
func CodeError(code string) error {
	switch code {
	case CodeInvalidPath:
		return store.ErrInvalidPath
	case CodeClosed:
		return store.ErrClosed
	}
	return nil
}

// ErrorResponse is the body of every failed REST call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var domainCodes = []struct {
	code string
	err  error
}{
	{"invalid_config", domain.ErrInvalidConfig},
	{"not_enough_questions", domain.ErrNotEnoughQuestions},
	{"question_not_found", domain.ErrQuestionNotFound},
	{"room_not_found", domain.ErrRoomNotFound},
	{"identity_required", domain.ErrIdentityRequired},
}

// DomainCode names the domain sentinel wrapped by err, or "".
func DomainCode(err error) string {
	for _, c := range domainCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// DomainError is the inverse of DomainCode.
func DomainError(code string) error {
	for _, c := range domainCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
