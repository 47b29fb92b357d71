package server_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

// TestMain runs all tests in the server_test package and checks for
// goroutine leaks after all tests complete.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
