package testutil

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/roach88/bgproces/internal/engine"
	"github.com/roach88/bgproces/internal/spec"
)

// DefaultSessionID is the id NewSession gives its session.
const DefaultSessionID = "test-session"

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// LogBuffer collects log output at debug level for assertions.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything logged so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Logger returns a text logger writing to the buffer.
func (b *LogBuffer) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// NewSession opens a session with a fixed id and a silent logger, closed
// when the test ends. Later options override the defaults.
func NewSession(tb testing.TB, opts ...spec.SessionOption) *spec.Session {
	tb.Helper()
	opts = append([]spec.SessionOption{
		spec.WithIDGenerator(engine.NewFixedGenerator(DefaultSessionID)),
		spec.WithSessionLogger(DiscardLogger()),
	}, opts...)
	s := spec.NewSession(opts...)
	tb.Cleanup(s.Close)
	return s
}
