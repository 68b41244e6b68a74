//go:build tools
// +build tools

// Package relay pins the code generators used by `go generate` so that
// mockgen resolves to the version recorded in go.mod.
package relay

import (
	_ "go.uber.org/mock/mockgen"
)
