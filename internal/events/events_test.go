package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(NoticeQueued, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(NoticeQueued, NoticePayload{RecordingID: "rec-1", Attempt: 3})
	require.NoError(t, err)

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, NoticeQueued, received.Type)
	assert.NotZero(t, received.ID)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded NoticePayload
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, "rec-1", decoded.RecordingID)
	assert.Equal(t, 3, decoded.Attempt)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2, all int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })
	bus.SubscribeAll(func(_ *Event) error { all++; return nil })

	bus.Publish(&Event{Type: "event"})
	bus.Publish(&Event{Type: "other"})

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
	assert.Equal(t, 2, all)
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NotPanics(t, func() { bus.Publish(&Event{Type: "unknown"}) })
	assert.NoError(t, bus.PublishJSON("unknown", nil))

	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON(NoticeDelivered, nil))
}

func TestJournal(t *testing.T) {
	bus := NewEventBus()
	journal := NewJournal(2)
	bus.SubscribeAll(journal.Record)

	require.NoError(t, bus.PublishJSON(NoticeRetrying, NoticePayload{Attempt: 1}))
	require.NoError(t, bus.PublishJSON(NoticeRetrying, NoticePayload{Attempt: 2}))
	require.NoError(t, bus.PublishJSON(NoticeQueued, NoticePayload{RecordingID: "x"}))

	recent := journal.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, NoticeRetrying, recent[0].Type)
	assert.Equal(t, NoticeQueued, recent[1].Type)

	last := journal.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, NoticeQueued, last[0].Type)
}
