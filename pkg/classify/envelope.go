package classify

import "encoding/json"

// envelope is the best-effort parse of a server error body. The server emits
// either top-level fields or a nested error object, and has shipped both
// snake_case and camelCase keys, so every extraction tolerates all four
// spellings. retryable is a pointer so "absent" and "false" stay distinct.
type envelope struct {
	retryable      *bool
	code           string
	message        string
	traceID        string
	transmissionID string
}

// rawEnvelope mirrors the key variants the server has been observed to send.
type rawEnvelope struct {
	Retryable *bool  `json:"retryable"`
	Code      string `json:"code"`
	ErrorCode string `json:"error_code"`
	ErrCodeCC string `json:"errorCode"`
	Message   string `json:"message"`
	Detail    string `json:"detail"`

	TraceID   string `json:"trace_id"`
	TraceIDCC string `json:"traceId"`
	RunID     string `json:"run_id"`
	RunIDCC   string `json:"runId"`

	TransmissionID   string `json:"transmission_id"`
	TransmissionIDCC string `json:"transmissionId"`

	Error json.RawMessage `json:"error"`
}

// parseEnvelope extracts structured error info from a response body. Any
// parse failure returns the zero envelope; classification never aborts on a
// malformed body.
func parseEnvelope(body []byte) envelope {
	if len(body) == 0 {
		return envelope{}
	}
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return envelope{}
	}

	out := fromRaw(raw)

	// The error field is either a bare string message or a nested object;
	// either way it fills whatever the top level did not provide.
	if len(raw.Error) > 0 {
		var msg string
		if err := json.Unmarshal(raw.Error, &msg); err == nil {
			if out.message == "" {
				out.message = msg
			}
		} else {
			var nested rawEnvelope
			if err := json.Unmarshal(raw.Error, &nested); err == nil {
				merge(&out, fromRaw(nested))
			}
		}
	}
	return out
}

func fromRaw(r rawEnvelope) envelope {
	return envelope{
		retryable:      r.Retryable,
		code:           first(r.Code, r.ErrorCode, r.ErrCodeCC),
		message:        first(r.Message, r.Detail),
		traceID:        first(r.TraceID, r.TraceIDCC, r.RunID, r.RunIDCC),
		transmissionID: first(r.TransmissionID, r.TransmissionIDCC),
	}
}

func merge(dst *envelope, src envelope) {
	if dst.retryable == nil {
		dst.retryable = src.retryable
	}
	if dst.code == "" {
		dst.code = src.code
	}
	if dst.message == "" {
		dst.message = src.message
	}
	if dst.traceID == "" {
		dst.traceID = src.traceID
	}
	if dst.transmissionID == "" {
		dst.transmissionID = src.transmissionID
	}
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
