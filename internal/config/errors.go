package config

import "fmt"

func errRequired(name string) error {
	return fmt.Errorf("config: %s is required", name)
}

func errPositive(name string) error {
	return fmt.Errorf("config: %s must be positive", name)
}

func errInvalid(name, got string, want ...string) error {
	return fmt.Errorf("config: %s must be one of %v, got %q", name, want, got)
}
