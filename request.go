// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"net/http"
	"time"
)

// TimeoutConfig contains the timeouts configured for a request.
//
// This package never enforces these timeouts: network engines do. The
// values only end up as diagnostic context inside canonical errors. A
// zero value means that the corresponding timeout is not configured.
type TimeoutConfig struct {
	Connect time.Duration
	Request time.Duration
	Socket  time.Duration
}

// RequestData contains the request metadata that [Policy] implementations
// may use when constructing replacement channels and canonical errors.
//
// The relay never inspects it.
type RequestData struct {
	// Method is the HTTP method.
	Method string

	// SpanID identifies the request in structured logs.
	SpanID string

	// Timeouts contains the configured timeouts.
	Timeouts TimeoutConfig

	// URL is the request URL.
	URL string
}

// NewRequestData creates a [*RequestData] for the given [*http.Request]
// with a fresh span ID (see [NewSpanID]).
func NewRequestData(req *http.Request, timeouts TimeoutConfig) *RequestData {
	rd := &RequestData{
		Method:   req.Method,
		SpanID:   NewSpanID(),
		Timeouts: timeouts,
	}
	if req.URL != nil {
		rd.URL = req.URL.String()
	}
	return rd
}

// spanID returns the span ID or an empty string for a nil receiver.
func (rd *RequestData) spanID() string {
	if rd == nil {
		return ""
	}
	return rd.SpanID
}
