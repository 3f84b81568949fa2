package service

import "errors"

// Stage errors. The HTTP layer maps each to a fixed status and message; any
// other error is an internal failure whose detail stays in the logs.
// A provider rejection arrives as *client.UpstreamError and is relayed as-is.
var (
	ErrInvalidFormat = errors.New("invalid zipcode format")
	ErrConfiguration = errors.New("weather API key not configured")
	ErrNotFound      = errors.New("no weather data found")
	ErrUnavailable   = errors.New("weather provider unavailable")
)
