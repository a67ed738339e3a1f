package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrTemporary             = errors.New("temporary failure")
	ErrProvider              = errors.New("chat provider failure")
	ErrUnsupportedSourceType = errors.New("unsupported source type")
)

var errEmptyDocumentID = errors.New("document id is required")

type errEmptyDocumentText struct{ id string }

func (e errEmptyDocumentText) Error() string { return fmt.Sprintf("document %q has empty text", e.id) }

type errDuplicateDocumentID struct{ id string }

func (e errDuplicateDocumentID) Error() string { return fmt.Sprintf("duplicate document id %q", e.id) }

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Operations reported by ProviderError.
const (
	ProviderOpChat  = "chat"
	ProviderOpEmbed = "embed"
)

// ProviderError reports a failed chat completion. Retryable is set for
// timeouts, rate limits, upstream 5xx and transport failures.
type ProviderError struct {
	Provider  string
	Operation string
	Retryable bool
	Err       error
}

func NewProviderError(provider, operation string, retryable bool, err error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Retryable: retryable,
		Err:       err,
	}
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "chat provider error"
	}
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Provider, e.Operation, kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is lets callers match provider failures by kind; retryable failures also
// count as ErrTemporary.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrProvider:
		return true
	case ErrTemporary:
		return e.Retryable
	default:
		return false
	}
}

// AsProviderError extracts a ProviderError from a wrapped chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}
