package ingest

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

// maxFrameSize bounds a single inbound frame to guard against a
// misbehaving or malicious client exhausting memory with a bogus length
// prefix (protocol error per spec §7).
const maxFrameSize = 16 * 1024 * 1024

// ReadFrame reads one length-prefixed JSON frame: a 4-byte big-endian
// length followed by that many bytes of JSON.
func ReadFrame(r io.Reader) (eventmodel.Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return eventmodel.Frame{}, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size == 0 || size > maxFrameSize {
		return eventmodel.Frame{}, fmt.Errorf("%w: frame size %d out of bounds", ErrProtocol, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return eventmodel.Frame{}, err
	}

	var f eventmodel.Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return eventmodel.Frame{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return f, nil
}

// WriteFrame writes f using the same length-prefixed JSON framing as ReadFrame.
func WriteFrame(w io.Writer, f eventmodel.Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("%w: outbound frame too large", ErrProtocol)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
