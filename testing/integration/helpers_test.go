package integration

import (
	"os"
	"testing"

	"github.com/zoobzio/tether"
	"github.com/zoobzio/tether/internal/logger"
)

// newPipeChannel returns a channel whose writes loop back to its reader.
func newPipeChannel(t *testing.T) *tether.Channel {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	ch := tether.NewChannel(r, w).Logger(logger.Discard())
	t.Cleanup(func() {
		_ = ch.Close() //nolint:errcheck // test cleanup
	})
	return ch
}
