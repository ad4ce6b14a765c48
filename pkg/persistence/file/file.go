// Package file provides file-based persistence for flows, overrides,
// statuses, and events. Intended for development and tests; entities are
// stored as one JSON document per row.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	flowRepo     *FlowRepository
	overrideRepo *OverrideRepository
	statusRepo   *StatusRepository
	stateRepo    *StateRepository
	eventRepo    *EventRepository
	auditRepo    *AuditRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		flowRepo:     NewFlowRepository(cleanRoot),
		overrideRepo: NewOverrideRepository(cleanRoot),
		statusRepo:   NewStatusRepository(cleanRoot),
		stateRepo:    NewStateRepository(cleanRoot),
		eventRepo:    NewEventRepository(cleanRoot),
		auditRepo:    NewAuditRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) FlowRepository() persistence.FlowRepository {
	return fp.flowRepo
}

func (fp *Persistence) OverrideRepository() persistence.OverrideRepository {
	return fp.overrideRepo
}

func (fp *Persistence) StatusRepository() persistence.StatusRepository {
	return fp.statusRepo
}

func (fp *Persistence) StateRepository() persistence.StateRepository {
	return fp.stateRepo
}

func (fp *Persistence) EventRepository() persistence.EventRepository {
	return fp.eventRepo
}

func (fp *Persistence) AuditRepository() persistence.AuditRepository {
	return fp.auditRepo
}
