package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

func TestTransitionTable_Default(t *testing.T) {
	table := MustDefaultTransitions()

	allowed := []struct{ from, to domain.OrderStatus }{
		{domain.OrderStatusPending, domain.OrderStatusProcessing},
		{domain.OrderStatusPending, domain.OrderStatusConfirmed},
		{domain.OrderStatusPending, domain.OrderStatusCancelled},
		{domain.OrderStatusProcessing, domain.OrderStatusCompleted},
		{domain.OrderStatusProcessing, domain.OrderStatusCancelled},
		{domain.OrderStatusConfirmed, domain.OrderStatusProcessing},
		{domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	}
	for _, tt := range allowed {
		assert.NoError(t, table.Validate(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	rejected := []struct{ from, to domain.OrderStatus }{
		{domain.OrderStatusPending, domain.OrderStatusCompleted},
		{domain.OrderStatusPending, domain.OrderStatusPending},
		{domain.OrderStatusConfirmed, domain.OrderStatusCompleted},
		{domain.OrderStatusProcessing, domain.OrderStatusConfirmed},
		{domain.OrderStatusCompleted, domain.OrderStatusCancelled},
		{domain.OrderStatusCompleted, domain.OrderStatusProcessing},
		{domain.OrderStatusCancelled, domain.OrderStatusPending},
		{domain.OrderStatusCancelled, domain.OrderStatusCompleted},
	}
	for _, tt := range rejected {
		err := table.Validate(tt.from, tt.to)
		require.ErrorIs(t, err, domain.ErrInvalidTransition, "%s -> %s", tt.from, tt.to)
		assert.Contains(t, err.Error(), string(tt.to))
	}
}

func TestParseTransitions_Custom(t *testing.T) {
	table, err := ParseTransitions("pending:processing|cancelled ; PROCESSING:COMPLETED")
	require.NoError(t, err)

	assert.True(t, table.Allows(domain.OrderStatusPending, domain.OrderStatusProcessing))
	assert.True(t, table.Allows(domain.OrderStatusProcessing, domain.OrderStatusCompleted))
	assert.False(t, table.Allows(domain.OrderStatusPending, domain.OrderStatusConfirmed))
	assert.False(t, table.Allows(domain.OrderStatusConfirmed, domain.OrderStatusProcessing))
}

func TestParseTransitions_EmptyUsesDefault(t *testing.T) {
	table, err := ParseTransitions("  ")
	require.NoError(t, err)
	assert.Equal(t, MustDefaultTransitions(), table)
}

func TestParseTransitions_Invalid(t *testing.T) {
	for _, input := range []string{
		"PENDING",
		"PENDING:SHIPPED",
		"UNKNOWN:PENDING",
		"COMPLETED:PENDING",
		"CANCELLED:PENDING",
	} {
		_, err := ParseTransitions(input)
		assert.Error(t, err, input)
	}
}
