// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	MediaIDKey      = "media.id"
	MediaProfileKey = "media.profile"

	JobIDKey       = "job.id"
	JobStateKey    = "job.state"
	JobReasonKey   = "job.reason"
	JobAttemptKey  = "job.attempt"
	JobDurationKey = "job.duration_ms"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// JobAttributes creates transcode-job span attributes.
func JobAttributes(jobID, state, reason string, attempt int, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobIDKey, jobID),
		attribute.String(JobStateKey, state),
		attribute.String(JobReasonKey, reason),
		attribute.Int(JobAttemptKey, attempt),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// MediaAttributes creates media span attributes.
func MediaAttributes(mediaID int64, profile string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(MediaIDKey, mediaID),
		attribute.String(MediaProfileKey, profile),
	}
}

// ErrorAttributes creates error span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
