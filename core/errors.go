// Package core provides shared types and utilities for the sforce SDK.
//
// This package contains:
//   - Error types for caller mistakes, SOAP faults and transport failures
//   - xsd:dateTime parsing
//   - Logging utilities
//
// Error types can be used with errors.As to handle specific cases:
//
//	records, err := c.Query(ctx, "SELECT Id FROM Account")
//	if err != nil {
//	    var fault *core.FaultError
//	    if errors.As(err, &fault) && fault.Code == "INVALID_FIELD" {
//	        // Handle bad SOQL field
//	    }
//	}
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UsageError is returned when the caller misuses the API, for example by
// passing an empty query. It is raised before any remote call is made and
// is never retried.
type UsageError struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// NewUsageError creates a new UsageError.
func NewUsageError(op, message string) *UsageError {
	return &UsageError{Op: op, Message: message}
}

// FaultError is a SOAP fault returned by the remote service.
//
// Code is the fault code with its namespace prefix removed (for example
// "INVALID_SESSION_ID"). ExceptionCode comes from the fault detail when present
// and is usually the same value.
type FaultError struct {
	Operation     string `json:"operation"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	ExceptionCode string `json:"exceptionCode,omitempty"`
}

func (e *FaultError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s: fault %s: %s", e.Operation, e.Code, e.Message)
	}
	return fmt.Sprintf("fault %s: %s", e.Code, e.Message)
}

// NewFaultError creates a FaultError, stripping any namespace prefix from code.
func NewFaultError(operation, code, message, exceptionCode string) *FaultError {
	return &FaultError{
		Operation:     operation,
		Code:          StripPrefix(code),
		Message:       strings.TrimSpace(message),
		ExceptionCode: StripPrefix(exceptionCode),
	}
}

// code returns the most specific code carried by the fault.
func (e *FaultError) code() string {
	if e.ExceptionCode != "" {
		return e.ExceptionCode
	}
	return e.Code
}

// TransportError is returned when the HTTP exchange fails without a
// decodable SOAP fault.
type TransportError struct {
	Operation  string `json:"operation"`
	StatusCode int    `json:"statusCode"`
	Status     string `json:"status,omitempty"`
	Cause      error  `json:"-"`

	// RetryAfter is the delay the service asked for on HTTP 429, if any.
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
}

func (e *TransportError) Error() string {
	switch {
	case e.Cause != nil && e.StatusCode == 0:
		return fmt.Sprintf("%s: transport: %v", e.Operation, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: transport: %s: %v", e.Operation, e.Status, e.Cause)
	default:
		return fmt.Sprintf("%s: transport: %s", e.Operation, e.Status)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// MalformedResponseError is returned when a response is missing a structure
// the caller depends on, such as a query result without a done flag.
type MalformedResponseError struct {
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Operation, e.Reason)
}

// NewMalformedResponseError creates a new MalformedResponseError.
func NewMalformedResponseError(operation, reason string) *MalformedResponseError {
	return &MalformedResponseError{Operation: operation, Reason: reason}
}

// PageLimitError is returned when a query exceeds the page cap configured
// by the caller.
type PageLimitError struct {
	Operation string `json:"operation"`
	Pages     int    `json:"pages"`
}

func (e *PageLimitError) Error() string {
	return fmt.Sprintf("%s: still not done after %d pages", e.Operation, e.Pages)
}

// Fault codes the SDK reacts to.
const (
	FaultInvalidSession      = "INVALID_SESSION_ID"
	FaultRequestLimit        = "REQUEST_LIMIT_EXCEEDED"
	FaultServerUnavailable   = "SERVER_UNAVAILABLE"
	FaultInvalidLogin        = "INVALID_LOGIN"
	FaultInvalidQueryLocator = "INVALID_QUERY_LOCATOR"
)

// IsRetryableError returns true if the error should trigger a retry.
func IsRetryableError(err error) bool {
	var transport *TransportError
	if errors.As(err, &transport) {
		return transport.StatusCode == 0 ||
			transport.StatusCode == 429 ||
			transport.StatusCode >= 500
	}
	var fault *FaultError
	if errors.As(err, &fault) {
		return fault.code() == FaultServerUnavailable
	}
	return false
}

// IsInvalidSession returns true if the error reports an expired or unknown session.
func IsInvalidSession(err error) bool {
	var fault *FaultError
	return errors.As(err, &fault) && fault.code() == FaultInvalidSession
}

// IsRateLimited returns true if the service refused the call because an API
// limit was reached.
func IsRateLimited(err error) bool {
	var fault *FaultError
	if errors.As(err, &fault) {
		return fault.code() == FaultRequestLimit
	}
	var transport *TransportError
	return errors.As(err, &transport) && transport.StatusCode == 429
}

// StripPrefix removes an XML namespace prefix ("sf:INVALID_FIELD" becomes
// "INVALID_FIELD").
func StripPrefix(s string) string {
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}
