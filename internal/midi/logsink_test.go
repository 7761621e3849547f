package midi

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/logging"
)

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(logging.NewWithWriter(&buf, slog.LevelDebug))

	require.NoError(t, s.SendCC(0, 23, 64))
	require.NoError(t, s.SendCC(0, 24, 255))
	assert.ErrorIs(t, s.SendCC(16, 20, 1), ErrInvalidChannel)

	assert.Equal(t, uint64(2), s.Sent())
	assert.Contains(t, buf.String(), "ch1 CC23=64")
	assert.Contains(t, buf.String(), "ch1 CC24=127")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.SendCC(0, 20, 1), ErrClosed)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("dry run finished")))
}
