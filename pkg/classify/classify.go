// Package classify maps a transport outcome — status code, response body,
// headers, or a raw error — to a retry decision. It is a pure function: no
// I/O, no state, and parsing failures degrade to "no structured info" rather
// than errors.
package classify

import (
	"net/http"
	"net/textproto"
	"strconv"
	"time"
)

// DecisionSource records which rule produced the decision.
type DecisionSource string

// Decision source constants.
const (
	SourceNetwork            DecisionSource = "network"              // no HTTP response at all
	SourceHTTPStatus         DecisionSource = "http_status"          // decided by status code alone
	SourceExplicitField      DecisionSource = "explicit_field"       // server envelope said so
	SourceParseFailedDefault DecisionSource = "parse_failed_default" // 4xx with no usable envelope
)

// Outcome is the transport result under classification. StatusCode 0 means
// the request never produced an HTTP response.
type Outcome struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	Err        error
}

// Decision is the classification result. CorrelationID, ErrorCode, and
// TraceID are best-effort extractions from the error envelope and may be
// empty.
type Decision struct {
	Retryable     bool
	Source        DecisionSource
	RetryAfter    time.Duration // 0 unless the server sent a usable Retry-After
	ErrorCode     string
	Message       string
	TraceID       string
	CorrelationID string
}

// Classify applies the rule table, in order:
//  1. no status code (network failure)  -> retryable
//  2. 429                               -> retryable, honors Retry-After
//  3. >= 500                            -> retryable
//  4. 422 (semantic validation failure) -> not retryable
//  5. other 4xx                         -> envelope's explicit retryable flag,
//     defaulting to not retryable when the body has no usable envelope
//  6. anything else                     -> not retryable
func Classify(o Outcome) Decision {
	if o.StatusCode == 0 {
		return Decision{Retryable: true, Source: SourceNetwork}
	}

	env := parseEnvelope(o.Body)
	d := Decision{
		Source:        SourceHTTPStatus,
		ErrorCode:     env.code,
		Message:       env.message,
		TraceID:       env.traceID,
		CorrelationID: env.transmissionID,
	}

	switch {
	case o.StatusCode == http.StatusTooManyRequests:
		d.Retryable = true
		d.RetryAfter = parseRetryAfter(o.Headers)
	case o.StatusCode >= 500:
		d.Retryable = true
	case o.StatusCode == http.StatusUnprocessableEntity:
		d.Retryable = false
	case o.StatusCode >= 400:
		if env.retryable != nil {
			d.Retryable = *env.retryable
			d.Source = SourceExplicitField
		} else {
			d.Retryable = false
			d.Source = SourceParseFailedDefault
		}
	default:
		d.Retryable = false
	}
	return d
}

// parseRetryAfter reads a Retry-After header as delta-seconds or an HTTP
// date. Dates in the past clamp to zero. Unparseable values yield zero.
func parseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get(textproto.CanonicalMIMEHeaderKey("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		delta := time.Until(at)
		if delta < 0 {
			return 0
		}
		return delta
	}
	return 0
}
