// File: internal/config/errors.go
package config

import "fmt"

// ConfigError reports a missing or invalid setting. It is fatal at construction time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}
