package domain

import "errors"

// ErrUnauthorized is returned by providers when the API responds with HTTP 401.
// Callers can check for it using errors.Is.
var ErrUnauthorized = errors.New("unauthorized")

// ErrRateLimited is returned when the host signals that the request quota is exhausted.
// The remaining work against that host is skipped until the next cycle.
var ErrRateLimited = errors.New("rate limited")

// ErrNotFound is returned when a repository or branch no longer exists.
var ErrNotFound = errors.New("not found")

// ErrTransient covers network failures, timeouts and 5xx responses.
var ErrTransient = errors.New("transient error")

// ErrDelivery is returned by notifiers when the webhook did not accept a message.
var ErrDelivery = errors.New("delivery failed")
