package types

import "encoding/json"

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// RawSuccessEnvelope wraps pre-serialized data so replayed responses stay byte-identical.
type RawSuccessEnvelope struct {
	Data json.RawMessage `json:"data"`
	Meta map[string]any  `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

