package notify

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func event(owner, session, label string) Event {
	return Event{SessionID: session, OwnerID: owner, NewLabel: label, EmittedAt: time.Now().UTC()}
}

func TestHub_DeliversToOwnerOnly(t *testing.T) {
	hub := NewHub(4, testLogger())
	a := hub.Subscribe("owner-a")
	defer a.Close()
	b := hub.Subscribe("owner-b")
	defer b.Close()

	hub.Publish(event("owner-a", "s1", "Knee Pain"))

	select {
	case got := <-a.C:
		assert.Equal(t, "s1", got.SessionID)
		assert.Equal(t, "Knee Pain", got.NewLabel)
	default:
		t.Fatal("owner-a did not receive the event")
	}
	assert.Empty(t, b.C)
}

func TestHub_FanOutToEveryObserver(t *testing.T) {
	hub := NewHub(4, testLogger())
	first := hub.Subscribe("owner-a")
	defer first.Close()
	second := hub.Subscribe("owner-a")
	defer second.Close()

	hub.Publish(event("owner-a", "s1", "Rash"))

	assert.Len(t, first.C, 1)
	assert.Len(t, second.C, 1)
}

func TestHub_NoObserverDrops(t *testing.T) {
	hub := NewHub(4, testLogger())
	assert.NotPanics(t, func() { hub.Publish(event("nobody", "s1", "Cough")) })
	assert.Zero(t, hub.Observers("nobody"))
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(1, testLogger())
	sub := hub.Subscribe("owner-a")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Publish(event("owner-a", "s1", "First"))
		hub.Publish(event("owner-a", "s2", "Second"))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full observer")
	}

	got := <-sub.C
	assert.Equal(t, "First", got.NewLabel)
	assert.Empty(t, sub.C)
}

func TestSubscription_Close(t *testing.T) {
	hub := NewHub(4, testLogger())
	sub := hub.Subscribe("owner-a")
	require.Equal(t, 1, hub.Observers("owner-a"))

	sub.Close()
	sub.Close()

	assert.Zero(t, hub.Observers("owner-a"))
	_, open := <-sub.C
	assert.False(t, open)

	assert.NotPanics(t, func() { hub.Publish(event("owner-a", "s1", "Late")) })
}
