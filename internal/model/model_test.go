package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
)

func TestTime_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{"rfc3339", `"2025-03-01T10:00:00Z"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"offset", `"2025-03-01T12:00:00+02:00"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"naive with micros", `"2025-03-01T10:00:00.250000"`, time.Date(2025, 3, 1, 10, 0, 0, 250000000, time.UTC)},
		{"naive space", `"2025-03-01 10:00:00"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"null", `null`, time.Time{}},
		{"empty", `""`, time.Time{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got Time
			require.NoError(t, json.Unmarshal([]byte(tc.input), &got))
			assert.True(t, tc.expected.Equal(got.Time), "got %s", got.Time)
		})
	}

	var bad Time
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestOrder_MergeKeepsKnownFields(t *testing.T) {
	created := NewTime(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	updated := NewTime(created.Add(5 * time.Minute))

	stored := Order{
		ID:            "A",
		Status:        lifecycle.Ready,
		SupplierName:  Str("Luigi"),
		CustomerName:  Str("Mario"),
		SupplierPrice: Float(10),
		CreatedAt:     created,
		UpdatedAt:     created,
	}

	stored.Merge(Order{
		ID:         "A",
		Status:     lifecycle.Dispatched,
		DriverName: Str("Toad"),
		Timeline:   &Timeline{DispatchedAt: updated},
		UpdatedAt:  updated,
	})

	assert.Equal(t, lifecycle.Dispatched, stored.Status)
	assert.Equal(t, "Luigi", Deref(stored.SupplierName))
	assert.Equal(t, "Mario", Deref(stored.CustomerName))
	assert.Equal(t, "Toad", Deref(stored.DriverName))
	assert.Equal(t, 10.0, *stored.SupplierPrice)
	require.NotNil(t, stored.Timeline)
	assert.True(t, stored.Timeline.DispatchedAt.Equal(updated.Time))
	assert.True(t, stored.CreatedAt.Equal(created.Time))
	assert.True(t, stored.UpdatedAt.Equal(updated.Time))

	stored.Merge(Order{ID: "A", Timeline: &Timeline{InTransitAt: updated}, UpdatedAt: created})
	assert.True(t, stored.Timeline.DispatchedAt.Equal(updated.Time), "timeline entries accrete")
	assert.True(t, stored.UpdatedAt.Equal(updated.Time), "updated_at must not regress")
}

func TestOrder_CloneIsDeep(t *testing.T) {
	o := Order{ID: "A", DriverName: Str("Toad"), Timeline: &Timeline{}}
	c := o.Clone()

	*c.DriverName = "Yoshi"
	c.Timeline.DeliveredAt = NewTime(time.Now())

	assert.Equal(t, "Toad", *o.DriverName)
	assert.True(t, o.Timeline.DeliveredAt.IsZero())
}

func TestDecodeEvent(t *testing.T) {
	t.Run("full event", func(t *testing.T) {
		ev, err := DecodeEvent([]byte(`{
			"event_type": "order.dispatched",
			"order": {"id": "A", "status": "dispatched", "timeline": {"dispatched_at": "2025-03-01T10:00:00Z"}},
			"timestamp": "2025-03-01T10:00:00Z"
		}`))
		require.NoError(t, err)
		assert.Equal(t, "A", ev.Order.ID)
		assert.Equal(t, lifecycle.Dispatched, ev.Order.Status)
		require.NotNil(t, ev.Order.Timeline)
		assert.False(t, ev.Order.Timeline.DispatchedAt.IsZero())
		assert.Nil(t, ev.Order.CustomerName)
	})

	t.Run("status from event type", func(t *testing.T) {
		ev, err := DecodeEvent([]byte(`{"event_type":"order.ready","order":{"id":"A"},"timestamp":"2025-03-01T10:00:00Z"}`))
		require.NoError(t, err)
		assert.Equal(t, lifecycle.Ready, ev.Order.Status)
	})

	t.Run("timestamp from updated_at", func(t *testing.T) {
		ev, err := DecodeEvent([]byte(`{"event_type":"order.ready","order":{"id":"A","updated_at":"2025-03-01T10:00:00"}}`))
		require.NoError(t, err)
		assert.True(t, ev.Timestamp.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"event_type":`))
		assert.Error(t, err)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"event_type":"order.ready","order":{},"timestamp":"2025-03-01T10:00:00Z"}`))
		assert.ErrorIs(t, err, ErrMissingOrderID)
	})

	t.Run("missing timestamp", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"event_type":"order.ready","order":{"id":"A"}}`))
		assert.ErrorIs(t, err, ErrMissingTimestamp)
	})
}

func TestEventFromSnapshot(t *testing.T) {
	created := NewTime(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	ev := EventFromSnapshot(Order{ID: "A", Status: lifecycle.Ready, CreatedAt: created})

	assert.Equal(t, "order.ready", ev.EventType)
	assert.True(t, ev.Timestamp.Equal(created.Time))
}
