package llm

import (
	"errors"
	"fmt"
)

var (
	ErrProviderNotFound   = errors.New("provider not found")
	ErrNoAPIKey           = errors.New("no API key configured")
	ErrRateLimited        = errors.New("rate limited")
	ErrTruncated          = errors.New("response truncated")
	ErrEmptyResponse      = errors.New("empty response")
	ErrNoProviders        = errors.New("no LLM providers configured")
	ErrAllProvidersFailed = errors.New("all LLM providers failed")
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindTransport     ErrorKind = "transport"
	KindMalformed     ErrorKind = "malformed_output"
	KindTruncated     ErrorKind = "truncated"
)

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Model    string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first ProviderError in err's chain.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func transportErr(provider, model string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Model: model, Kind: KindTransport, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
