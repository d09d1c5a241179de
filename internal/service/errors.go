package service

import "errors"

var (
	// ErrSessionNotFound maps to 404: chats are never created implicitly.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrUpstream marks failures of the LLM provider or the Neon API that
	// are not the caller's fault; the HTTP layer maps it to 502.
	ErrUpstream = errors.New("upstream service failure")

	// ErrMissingAPIKey maps to 400: the request carried no Neon API key and
	// no fallback key is configured.
	ErrMissingAPIKey = errors.New("neon api key is required")
)
