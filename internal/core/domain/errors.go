package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("stream name and account id are required")
	ErrNotConnected       = errors.New("transport is not connected")
	ErrAlreadyConnected   = errors.New("transport has already connected or subscribed")
	ErrNoTransport        = errors.New("no active transport")
	ErrUnexpectedState    = errors.New("operation not allowed in current state")
	ErrSourceNotFound     = errors.New("source not found")
	ErrNoVideoTrack       = errors.New("source has no video track")
	ErrNoAudioTrack       = errors.New("source has no audio track")
	ErrOrchestratorClosed = errors.New("orchestrator closed")

	// Builder completeness. Callers treat these as "not ready yet".
	ErrMissingVideoTrack = errors.New("missing video track")
	ErrMissingAudioTrack = errors.New("missing audio track")
)

type StreamErrorKind string

const (
	ErrKindConnectFailed   StreamErrorKind = "connect_failed"
	ErrKindSubscribeFailed StreamErrorKind = "subscribe_failed"
	ErrKindSignaling       StreamErrorKind = "signaling_error"
)

// StreamError is a terminal session failure. It moves the session to the
// error state and triggers the reconnection policy.
type StreamError struct {
	Kind   StreamErrorKind `json:"kind"`
	Reason string          `json:"reason"`
	Status int             `json:"status,omitempty"`
}

func (e *StreamError) Error() string {
	if e.Kind == ErrKindConnectFailed {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *StreamError) Equal(other *StreamError) bool {
	if e == nil || other == nil {
		return e == other
	}
	return *e == *other
}

func NewConnectFailed(status int, reason string) *StreamError {
	return &StreamError{Kind: ErrKindConnectFailed, Reason: reason, Status: status}
}

func NewSubscribeFailed(reason string) *StreamError {
	return &StreamError{Kind: ErrKindSubscribeFailed, Reason: reason}
}

func NewSignalingError(message string) *StreamError {
	return &StreamError{Kind: ErrKindSignaling, Reason: message}
}
