// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package generate is the text generation port and its provider adapters.
// Callers depend on Port only; provider choice, fallback, rate limiting and
// instrumentation are decorators around it.
package generate

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrUnavailable covers provider and network failures.
	ErrUnavailable = errors.New("generation unavailable")

	// ErrRejected covers refusals, content-policy blocks and requests or
	// responses the provider or caller cannot use.
	ErrRejected = errors.New("generation rejected")
)

// Role names a conversation participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single generation call.
type Request struct {
	// System carries the standing instructions.
	System string

	// User is the content to respond to.
	User string

	// Prior holds earlier turns sent before User.
	Prior []Message

	// MaxTokens bounds the response; 0 lets the adapter choose.
	MaxTokens int
}

// Port generates text. Implementations wrap failures in ErrUnavailable or
// ErrRejected and return context errors unchanged.
type Port interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// PortFunc adapts a function to Port.
type PortFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f PortFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// classifyStatus maps an HTTP status from a provider to a sentinel.
func classifyStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound,
		http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return ErrRejected
	default:
		return ErrUnavailable
	}
}

// isContextErr reports whether err comes from cancellation or a deadline.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
