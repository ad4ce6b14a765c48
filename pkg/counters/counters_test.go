package counters

import (
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/gangplankhq/gangplank/pkg/models"
)

// deadClient points at a closed port so any redis round-trip fails. Events
// that queue no counter bumps must return before touching redis at all.
func deadClient() redis.UniversalClient {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
}

func TestCounters_RecordInteraction_NoBumpNoRoundTrip(t *testing.T) {
	c := NewCounters(deadClient(), slog.Default())

	tests := []struct {
		name  string
		event *models.InteractionEvent
	}{
		{
			name:  "wizard event without task",
			event: &models.InteractionEvent{ID: "evt-1", Type: models.InteractionWizardOpened},
		},
		{
			name:  "task started bumps nothing",
			event: &models.InteractionEvent{ID: "evt-2", Type: models.InteractionTaskStarted, TaskID: "task-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, c.RecordInteraction(t.Context(), tt.event))
		})
	}
}

func TestCounters_RecordInteraction_DedupMarkerBeforeBumps(t *testing.T) {
	c := NewCounters(deadClient(), slog.Default())

	event := &models.InteractionEvent{
		ID:       "evt-3",
		Type:     models.InteractionTaskViewed,
		FlowID:   "flow-1",
		TenantID: "acme",
		TaskID:   "task-1",
	}

	// The per-event marker write is the first redis command issued.
	err := c.RecordInteraction(t.Context(), event)
	assert.ErrorContains(t, err, "failed to mark interaction as counted")
}
