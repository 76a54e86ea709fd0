package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/runtimescope/pkg/ingest"
)

func TestMapCommandError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"disconnected", ingest.ErrDisconnected, http.StatusConflict},
		{"shutdown", ingest.ErrShutdown, http.StatusServiceUnavailable},
		{"timeout", ingest.ErrTimeout, http.StatusGatewayTimeout},
		{"command error wraps timeout", &ingest.CommandError{RequestID: "req-1", Err: ingest.ErrTimeout}, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapCommandError(tt.err)
			assert.Equal(t, tt.wantCode, he.Code)
		})
	}
}
