package schema

import "fmt"

// ConfigError marks a contract that is itself unsound: no validation can
// proceed against it, so callers abort the whole run instead of treating
// it as a per-file failure.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema: unsound contract: %v", e.Err)
	}
	return fmt.Sprintf("schema: unsound contract %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
