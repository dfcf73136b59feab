// Package store persists classified items, snapshots, section versions, and
// validation flags.
//
// Two implementations share the Store contract: MemoryStore for tests and
// single-process runs, and PostgresStore for durable deployments.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

var (
	// ErrNotFound is returned when an item, snapshot, or section does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSectionLocked is returned when an automated write targets a section
	// whose latest version was edited by a human.
	ErrSectionLocked = errors.New("section is locked by a human edit")

	// ErrInvalidInput is returned for writes missing required fields.
	ErrInvalidInput = errors.New("invalid input")
)

// Store is the knowledge store contract used by classification, synthesis,
// and validation.
type Store interface {
	// Store persists items. Duplicate ids are no-ops.
	Store(ctx context.Context, items []signal.ClassifiedItem) error

	// Item returns a single item by id.
	Item(ctx context.Context, itemID string) (signal.ClassifiedItem, error)

	// QueryActive returns non-suppressed or restored items, oldest first.
	QueryActive(ctx context.Context, sessionID string) ([]signal.ClassifiedItem, error)

	// QuerySuppressed returns suppressed items that were never restored.
	QuerySuppressed(ctx context.Context, sessionID string) ([]signal.ClassifiedItem, error)

	// Restore marks an item manually restored. It is never reverted.
	Restore(ctx context.Context, itemID string) error

	// CreateSnapshot freezes the session's active item ids.
	CreateSnapshot(ctx context.Context, sessionID string) (string, error)

	// Snapshot returns the frozen snapshot record.
	Snapshot(ctx context.Context, snapshotID string) (signal.Snapshot, error)

	// ResolveSnapshot returns the snapshot's members in frozen order,
	// restricted to labels when any are given.
	ResolveSnapshot(ctx context.Context, snapshotID string, labels ...signal.Label) ([]signal.ClassifiedItem, error)

	// StoreSection appends the next version of a section.
	StoreSection(ctx context.Context, in SectionInput) (signal.SectionVersion, error)

	// LatestSections maps section name to the content of its latest version.
	LatestSections(ctx context.Context, sessionID string) (map[string]string, error)

	// LatestSectionVersions maps section name to its latest version.
	LatestSectionVersions(ctx context.Context, sessionID string) (map[string]signal.SectionVersion, error)

	// SectionHistory returns every version of a section in ascending order.
	SectionHistory(ctx context.Context, sessionID, sectionName string) ([]signal.SectionVersion, error)

	// StoreFlag appends a validation flag.
	StoreFlag(ctx context.Context, flag signal.ValidationFlag) error

	// ListFlags returns flags ordered by severity, then creation time.
	ListFlags(ctx context.Context, sessionID string) ([]signal.ValidationFlag, error)

	Close() error
}

// SectionInput is the payload for StoreSection. The store assigns the id,
// version number, and generation time.
type SectionInput struct {
	SessionID     string
	SnapshotID    string
	SectionName   string
	Content       string
	SourceItemIDs []string
	HumanEdited   bool
}

// Validate checks required fields.
func (in SectionInput) Validate() error {
	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	case strings.TrimSpace(in.SectionName) == "":
		return fmt.Errorf("%w: section name is required", ErrInvalidInput)
	}
	return nil
}

// sortFlags orders flags high severity first, then oldest first.
func sortFlags(flags []signal.ValidationFlag) {
	sort.SliceStable(flags, func(i, j int) bool {
		ri, rj := flags[i].Severity.Rank(), flags[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return flags[i].CreatedAt.Before(flags[j].CreatedAt)
	})
}

func labelSet(labels []signal.Label) map[signal.Label]bool {
	if len(labels) == 0 {
		return nil
	}
	set := make(map[signal.Label]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return set
}
