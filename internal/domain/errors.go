package domain

import "errors"

var (
	ErrModelNotFound     = errors.New("model not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrRouteParse        = errors.New("route decision is not valid JSON")
	ErrClassifierFailure = errors.New("classifier call failed")
	ErrAgentFailure      = errors.New("agent model call failed")
	ErrNoFinalMessage    = errors.New("agent produced no assistant message")
	ErrUnauthorized      = errors.New("invalid API key")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
