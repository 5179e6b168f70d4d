//go:build tools

// Pins the linter used on this module in go.mod.
// Install with: go install github.com/golangci/golangci-lint/cmd/golangci-lint
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
)
