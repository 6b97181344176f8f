// Unified error handling for the wall controller
//
// Copyright (C) 2026  Wallctl Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Transport errors (dial, write, socket close)
	ErrTransport ErrorCode = "TRANSPORT"

	// Frame errors (a single malformed wire frame)
	ErrFrameParse ErrorCode = "FRAME_PARSE"

	// RPC errors
	ErrRPCTimeout  ErrorCode = "RPC_TIMEOUT"
	ErrRPCProtocol ErrorCode = "RPC_PROTOCOL"

	// Handshake errors (connection unusable until a fresh handshake)
	ErrHandshake ErrorCode = "HANDSHAKE"

	// Decode errors (response shape did not match any accepted schema)
	ErrDecode ErrorCode = "DECODE"

	// Configuration errors
	ErrConfig ErrorCode = "CONFIG"

	// Runtime errors
	ErrRuntime ErrorCode = "RUNTIME"

	// Status gateway errors
	ErrGateway ErrorCode = "GATEWAY"
)

// DeviceError is the unified error type for the wall controller
type DeviceError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Method is the RPC method involved (if applicable)
	Method string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Method, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// SetMethod sets the RPC method involved
func (e *DeviceError) SetMethod(method string) *DeviceError {
	e.Method = method
	return e
}

// SetContext adds additional context
func (e *DeviceError) SetContext(key string, value interface{}) *DeviceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new DeviceError
func New(code ErrorCode, message string) *DeviceError {
	return &DeviceError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *DeviceError {
	return &DeviceError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// TransportError creates an error for a socket-level failure
func TransportError(op string, err error) *DeviceError {
	return Wrap(err, ErrTransport, fmt.Sprintf("%s: %v", op, err))
}

// ConnectionLostError creates the error used to reject queued and
// pending calls when the connection drops
func ConnectionLostError() *DeviceError {
	return New(ErrTransport, "connection lost")
}

// FrameParseError creates an error for a single malformed wire frame
func FrameParseError(frame string, err error) *DeviceError {
	return Wrap(err, ErrFrameParse, fmt.Sprintf("malformed frame: %v", err)).
		SetContext("frame", frame)
}

// TimeoutError creates an error for a call with no response within its deadline
func TimeoutError(method string) *DeviceError {
	return New(ErrRPCTimeout, fmt.Sprintf("no response to '%s' before deadline", method)).
		SetMethod(method)
}

// ProtocolError creates an error for a server-supplied error response
func ProtocolError(method, serverMessage string) *DeviceError {
	if serverMessage == "" {
		serverMessage = "error"
	}
	return New(ErrRPCProtocol, fmt.Sprintf("device rejected '%s': %s", method, serverMessage)).
		SetMethod(method)
}

// HandshakeError creates an error for a failed version negotiation
func HandshakeError(reason string, err error) *DeviceError {
	return Wrap(err, ErrHandshake, fmt.Sprintf("handshake failed: %s", reason)).
		SetMethod("handshake")
}

// DecodeError creates an error for a response matching neither accepted shape
func DecodeError(field string) *DeviceError {
	return New(ErrDecode, fmt.Sprintf("response carries '%s' in neither nested nor flattened shape", field)).
		SetContext("field", field)
}

// ConfigError creates an error for an invalid configuration value
func ConfigError(option, reason string) *DeviceError {
	return New(ErrConfig, fmt.Sprintf("option '%s': %s", option, reason)).
		SetContext("option", option)
}

// RuntimeError creates a general runtime error
func RuntimeError(message string) *DeviceError {
	return New(ErrRuntime, message)
}

// GatewayError creates a status gateway error
func GatewayError(message string, err error) *DeviceError {
	return Wrap(err, ErrGateway, message)
}

// RecoverPanic safely recovers from panic and converts to error
func RecoverPanic() *DeviceError {
	if r := recover(); r != nil {
		var err error
		switch x := r.(type) {
		case string:
			err = RuntimeError(fmt.Sprintf("panic: %s", x))
		case runtime.Error:
			err = RuntimeError(x.Error())
		case error:
			err = RuntimeError(x.Error())
		default:
			err = RuntimeError(fmt.Sprintf("panic: %v", x))
		}
		return err.(*DeviceError)
	}
	return nil
}

// Is checks if error matches given error code
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if devErr, ok := err.(*DeviceError); ok && devErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsRPC checks if error is scoped to a single call
func IsRPC(err error) bool {
	return Is(err, ErrRPCTimeout) || Is(err, ErrRPCProtocol)
}

// IsConnection checks if error makes the connection unusable
func IsConnection(err error) bool {
	return Is(err, ErrTransport) || Is(err, ErrHandshake)
}
