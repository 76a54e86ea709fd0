package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

func unmarshalPayload(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}

func jsonMarshal(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}

func newEventID() string { return uuid.NewString() }

func newRequestID() string { return uuid.NewString() }
