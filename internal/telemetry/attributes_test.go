// SPDX-License-Identifier: MIT

package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func findAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/media/{id}/hls/status", "/api/media/42/hls/status", 200)
	if v, ok := findAttr(attrs, HTTPMethodKey); !ok || v.AsString() != "GET" {
		t.Errorf("method attribute wrong: %v", v)
	}
	if v, ok := findAttr(attrs, HTTPStatusCodeKey); !ok || v.AsInt64() != 200 {
		t.Errorf("status attribute wrong: %v", v)
	}
}

func TestJobAttributes(t *testing.T) {
	attrs := JobAttributes("job-1", "ready", "", 2, 1500)
	if v, ok := findAttr(attrs, JobAttemptKey); !ok || v.AsInt64() != 2 {
		t.Errorf("attempt attribute wrong: %v", v)
	}
	if v, ok := findAttr(attrs, JobDurationKey); !ok || v.AsInt64() != 1500 {
		t.Errorf("duration attribute wrong: %v", v)
	}
}

func TestMediaAttributes(t *testing.T) {
	attrs := MediaAttributes(42, "hls")
	if v, ok := findAttr(attrs, MediaIDKey); !ok || v.AsInt64() != 42 {
		t.Errorf("media id attribute wrong: %v", v)
	}
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(nil, "store_unavailable")
	if v, ok := findAttr(attrs, ErrorKey); !ok || !v.AsBool() {
		t.Errorf("error flag missing: %v", attrs)
	}
}
