// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the request failed eligibility validation.
var ErrValidation = errors.New("validation failed")

// ErrUnknownAgent indicates a workflow step references an unregistered agent.
var ErrUnknownAgent = errors.New("unknown agent")
