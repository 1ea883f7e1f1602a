package models

import "errors"

var ErrProductNotFound = errors.New("producto no encontrado")

// ValidationError is a non-retryable client error.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned when a webhook payload fails verification.
type AuthenticationError struct {
	Msg string
}

func (e *AuthenticationError) Error() string {
	return e.Msg
}

type NotFoundError struct {
	Msg string
	Err error
}

func (e *NotFoundError) Error() string {
	return e.Msg
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// UpstreamUnavailableError marks provider connectivity failures the caller
// may retry shortly.
type UpstreamUnavailableError struct {
	Msg string
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
