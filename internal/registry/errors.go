package registry

import "fmt"

// ValidationError reports a rejected target configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError reports a lookup of an address that is not configured.
type NotFoundError struct {
	Address string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("contract %s not found", e.Address)
}
