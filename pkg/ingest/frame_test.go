package ingest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := eventmodel.Frame{Type: eventmodel.FrameHeartbeat, Timestamp: 123, SessionID: "s1"}

	require.NoError(t, WriteFrame(&buf, in))

	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.Equal(t, in.Timestamp, out.Timestamp)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	_, err := ReadFrame(&buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
}
