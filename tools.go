//go:build tools

package tools

// mockery runs as an installed binary, so nothing is imported here.
// Run it from the repository root to regenerate mocks/ from .mockery.yaml.
