// Package id provides centralized ID generation for the shell.
//
// This package offers type-safe ULID generation with:
//   - Lexicographic sortability: subscriptions and errors sort by creation time
//   - Prefixed types: Type-specific prefixes for debugging (sub_*, run_*, err_*, req_*)
//   - Type safety: Separate types prevent ID misuse
//
// App instances use UUIDs (see the loader); everything the shell mints for
// its own bookkeeping uses ULIDs from this package.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// SubscriptionID identifies an event bus subscription
type SubscriptionID string

// RunID identifies a single boot sequence execution
type RunID string

// ErrorID identifies a recorded error in the error handler history
type ErrorID string

// RequestID identifies one HTTP request
type RequestID string

// ============================================================================
// ID Prefixes (for debugging and type identification)
// ============================================================================

const (
	SubscriptionPrefix = "sub"
	RunPrefix          = "run"
	ErrorPrefix        = "err"
	RequestPrefix      = "req"
)

// ============================================================================
// ULID Generator (Primary)
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewSubscriptionID generates a new subscription ID
func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(Default().GenerateWithPrefix(SubscriptionPrefix))
}

// NewRunID generates a new boot run ID
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// NewErrorID generates a new error record ID
func NewErrorID() ErrorID {
	return ErrorID(Default().GenerateWithPrefix(ErrorPrefix))
}

// NewRequestID generates a new HTTP request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id SubscriptionID) String() string { return string(id) }
func (id RunID) String() string          { return string(id) }
func (id ErrorID) String() string        { return string(id) }
func (id RequestID) String() string      { return string(id) }
