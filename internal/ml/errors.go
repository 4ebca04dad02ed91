package ml

import "errors"

var (
	ErrBackendUnavailable = errors.New("ml backend unavailable")
	ErrInferenceTimeout   = errors.New("ml inference timeout")
	ErrInvalidResponse    = errors.New("ml backend returned invalid response")
)
