package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("conversation not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrBusy          = errors.New("a reply is already pending")
	ErrLoginRequired = errors.New("login required")
)

// Validation reasons.
const (
	ReasonEmpty    = "empty"
	ReasonTooShort = "too_short"
	ReasonTooLong  = "too_long"
)

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

// NetworkError means no response was received at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx response from the backend.
type ServerError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed with status %d", e.Op, e.Status)
}

// Kind names the error class, used for notification durations and logs.
func Kind(err error) string {
	var (
		ve *ValidationError
		ne *NetworkError
		se *ServerError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "ValidationError"
	case errors.As(err, &ne):
		return "NetworkError"
	case errors.As(err, &se):
		if se.Status == http.StatusUnauthorized {
			return "AuthError"
		}
		return "ServerError"
	case errors.Is(err, ErrLoginRequired):
		return "AuthError"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrBusy):
		return "Busy"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	default:
		return "Error"
	}
}

// UserMessage turns any error into the text shown to the user.
func UserMessage(err error) string {
	var (
		ve *ValidationError
		ne *NetworkError
		se *ServerError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		switch ve.Reason {
		case ReasonEmpty:
			return "Message cannot be empty."
		case ReasonTooShort:
			return "Message is too short."
		case ReasonTooLong:
			return "Message is too long."
		}
		return "Input format is invalid."
	case errors.As(err, &ne):
		return "Network error. Please check your connection."
	case errors.As(err, &se):
		return StatusMessage(se.Status)
	case errors.Is(err, ErrLoginRequired):
		return "Please login to continue."
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Please wait a moment."
	case errors.Is(err, ErrBusy):
		return "Please wait for the current reply."
	case errors.Is(err, ErrNotFound):
		return "The requested resource was not found."
	case errors.Is(err, ErrInvalidInput):
		return "Invalid request. Please check your input."
	default:
		return "An unexpected error occurred."
	}
}

func StatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Invalid request. Please check your input."
	case http.StatusUnauthorized:
		return "Please login to continue."
	case http.StatusForbidden:
		return "You don't have permission for this action."
	case http.StatusNotFound:
		return "The requested resource was not found."
	case http.StatusTooManyRequests:
		return "Too many requests. Please wait a moment."
	case http.StatusInternalServerError:
		return "Server error. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}
