package fetch

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the provider does not know the identifier. Providers
// wrap it so errors.Is works across packages.
var ErrNotFound = errors.New("identifier not found")

// ProviderError is any other failed provider call.
type ProviderError struct {
	ID   string
	View View
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s view of %s: %v", e.View, e.ID, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the identifier does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsProviderError reports whether err is an unexpected provider failure.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
