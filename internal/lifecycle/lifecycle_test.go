package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		SupplierRejected: true,
		Delivered:        true,
		Cancelled:        true,
	}

	for _, s := range All {
		t.Run(string(s), func(t *testing.T) {
			assert.Equal(t, terminal[s], IsTerminal(s))
		})
	}
}

func TestActionableBy(t *testing.T) {
	tests := []struct {
		status   Status
		expected []Role
	}{
		{Created, []Role{Supplier}},
		{PendingSupplier, []Role{Supplier}},
		{SupplierAccepted, []Role{Customer}},
		{CustomerAccepted, []Role{Kitchen}},
		{Preparing, []Role{Kitchen}},
		{Ready, []Role{Dispatcher}},
		{Dispatched, []Role{Dispatcher}},
		{InTransit, []Role{Dispatcher}},
		{Delivered, []Role{}},
		{SupplierRejected, []Role{}},
		{Cancelled, []Role{}},
		{Status("bogus"), []Role{}},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expected, ActionableBy(tc.status))
		})
	}
}

func TestActionableBy_ReturnsCopy(t *testing.T) {
	roles := ActionableBy(Ready)
	roles[0] = Customer

	assert.Equal(t, []Role{Dispatcher}, ActionableBy(Ready))
	assert.True(t, IsActionableBy(Ready, Dispatcher))
	assert.False(t, IsActionableBy(Ready, Customer))
}

func TestNext(t *testing.T) {
	assert.Equal(t, []Status{SupplierAccepted, SupplierRejected, Cancelled}, Next(PendingSupplier))
	assert.Equal(t, []Status{Delivered, Cancelled}, Next(InTransit))
	assert.Nil(t, Next(Delivered))
	assert.Nil(t, Next(Status("unknown")))

	for _, s := range All {
		if IsTerminal(s) {
			continue
		}
		assert.True(t, CanTransition(s, Cancelled), "cancel must be reachable from %s", s)
	}
	assert.False(t, CanTransition(Ready, Preparing))
	assert.False(t, CanTransition(Cancelled, Created))
}

func TestParse(t *testing.T) {
	s, err := Parse(" In_Transit ")
	require.NoError(t, err)
	assert.Equal(t, InTransit, s)

	_, err = Parse("teleported")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestEventType(t *testing.T) {
	assert.Equal(t, "order.dispatched", EventType(Dispatched))

	s, err := StatusFromEventType("order.ready")
	require.NoError(t, err)
	assert.Equal(t, Ready, s)

	_, err = StatusFromEventType("driver.ready")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Ready for Pickup", Label(Ready))
	assert.Equal(t, "mystery", Label(Status("mystery")))
}
