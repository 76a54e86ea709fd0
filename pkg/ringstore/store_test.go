package ringstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

func consoleEvent(sessionID, msg string) eventmodel.Event {
	body, _ := json.Marshal(eventmodel.ConsoleBody{Level: "log", Message: msg})
	return eventmodel.Event{
		EventID:   msg,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
		Kind:      eventmodel.KindConsole,
		Data:      body,
	}
}

func TestRingEviction(t *testing.T) {
	s := New(3)
	s.Add(consoleEvent("s1", "m1"))
	s.Add(consoleEvent("s1", "m2"))
	s.Add(consoleEvent("s1", "m3"))
	s.Add(consoleEvent("s1", "m4"))

	events := s.Console(Filter{})
	require.Len(t, events, 3)

	var msgs []string
	for _, e := range events {
		body, err := e.DecodeConsole()
		require.NoError(t, err)
		msgs = append(msgs, body.Message)
	}
	assert.Equal(t, []string{"m2", "m3", "m4"}, msgs)
}

func TestRingZeroCapacityEvictsImmediately(t *testing.T) {
	s := New(0)
	s.Add(consoleEvent("s1", "m1"))
	assert.Empty(t, s.Console(Filter{}))
}

func TestClearEmptiesStore(t *testing.T) {
	s := New(10)
	s.Add(consoleEvent("s1", "m1"))
	s.Add(consoleEvent("s1", "m2"))

	cleared := s.Clear()
	assert.Equal(t, 2, cleared)
	assert.Empty(t, s.Console(Filter{}))
}

func TestBusDropOnSlowSubscriber(t *testing.T) {
	s := New(10)
	sub := s.Bus().Subscribe()
	defer s.Bus().Unsubscribe(sub)

	// Never drain sub.C — every publish beyond the queue size must drop
	// rather than block Add.
	for i := 0; i < subscriberQueueSize+5; i++ {
		s.Add(consoleEvent("s1", "m"))
	}

	assert.Greater(t, sub.Dropped(), int64(0))
}

func TestBusDeliversToActiveSubscriber(t *testing.T) {
	s := New(10)
	sub := s.Bus().Subscribe()
	defer s.Bus().Unsubscribe(sub)

	s.Add(consoleEvent("s1", "hello"))

	select {
	case e := <-sub.C:
		assert.Equal(t, "s1", e.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber delivery")
	}
}
