package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/google/uuid"
)

// EventRepository handles append-only interaction event file operations.
type EventRepository struct {
	root string
}

// NewEventRepository creates a new event repository.
func NewEventRepository(root string) *EventRepository {
	return &EventRepository{root: root}
}

// Append stores an interaction event. Events are never updated or deleted.
func (er *EventRepository) Append(_ context.Context, event *models.InteractionEvent) error {
	if err := os.MkdirAll(er.root+"/events", 0750); err != nil {
		return fmt.Errorf("failed to create events directory: %w", err)
	}

	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate event ID: %w", err)
		}

		event.ID = id.String()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	filePath := filepath.Clean(path.Join(er.root, "events", event.ID+".json"))

	return os.WriteFile(filePath, data, 0600)
}

func (er *EventRepository) all() ([]*models.InteractionEvent, error) {
	root := os.DirFS(er.root + "/events")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list event files: %w", err)
	}

	events := make([]*models.InteractionEvent, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		body, err := os.ReadFile(filepath.Clean(path.Join(er.root, "events", file)))
		if err != nil {
			return nil, fmt.Errorf("failed to read event %s: %w", file, err)
		}

		var event models.InteractionEvent

		if err := json.Unmarshal(body, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %s: %w", file, err)
		}

		events = append(events, &event)
	}

	return events, nil
}

// SeenTypes returns the distinct interaction types observed for a (tenant,
// user) pair.
func (er *EventRepository) SeenTypes(_ context.Context, tenantID, userID string) ([]models.InteractionType, error) {
	events, err := er.all()
	if err != nil {
		return nil, err
	}

	seen := make(map[models.InteractionType]bool)
	types := make([]models.InteractionType, 0)

	for _, event := range events {
		if event.TenantID != tenantID || event.UserID != userID {
			continue
		}

		if !seen[event.Type] {
			seen[event.Type] = true

			types = append(types, event.Type)
		}
	}

	return types, nil
}

// ListRecent returns a tenant's most recent events, newest first.
func (er *EventRepository) ListRecent(_ context.Context, tenantID string, limit int) ([]*models.InteractionEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	events, err := er.all()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.InteractionEvent, 0)

	for _, event := range events {
		if event.TenantID == tenantID {
			matched = append(matched, event)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// CountByTaskAndType aggregates event counts per (task, type) for a flow.
func (er *EventRepository) CountByTaskAndType(_ context.Context, flowID string, window persistence.TimeWindow) ([]models.TaskEventCount, error) {
	events, err := er.all()
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		taskID string
		typ    models.InteractionType
	}

	counts := make(map[groupKey]int64)
	order := make([]groupKey, 0)

	for _, event := range events {
		if event.FlowID != flowID || event.TaskID == "" || !window.Contains(event.OccurredAt) {
			continue
		}

		key := groupKey{taskID: event.TaskID, typ: event.Type}
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}

		counts[key]++
	}

	result := make([]models.TaskEventCount, 0, len(order))
	for _, key := range order {
		result = append(result, models.TaskEventCount{
			TaskID: key.taskID,
			Type:   key.typ,
			Count:  counts[key],
		})
	}

	return result, nil
}

// AvgTimeSpent returns the mean recorded time per task for a flow.
func (er *EventRepository) AvgTimeSpent(_ context.Context, flowID string, window persistence.TimeWindow) ([]models.TaskTimeSpent, error) {
	events, err := er.all()
	if err != nil {
		return nil, err
	}

	sums := make(map[string]float64)
	counts := make(map[string]int64)
	order := make([]string, 0)

	for _, event := range events {
		if event.FlowID != flowID || event.TaskID == "" || event.TimeSpentSeconds <= 0 {
			continue
		}

		if !window.Contains(event.OccurredAt) {
			continue
		}

		if _, ok := sums[event.TaskID]; !ok {
			order = append(order, event.TaskID)
		}

		sums[event.TaskID] += event.TimeSpentSeconds
		counts[event.TaskID]++
	}

	result := make([]models.TaskTimeSpent, 0, len(order))
	for _, taskID := range order {
		result = append(result, models.TaskTimeSpent{
			TaskID:     taskID,
			AvgSeconds: sums[taskID] / float64(counts[taskID]),
		})
	}

	return result, nil
}
