package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

// MemoryStore is an in-process Store. Items keep their insertion order, which
// breaks ties between equal creation times.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[string]*signal.ClassifiedItem
	order     []string
	snapshots map[string]signal.Snapshot
	sections  map[sectionKey][]signal.SectionVersion
	flags     map[string][]signal.ValidationFlag
	now       func() time.Time
}

type sectionKey struct {
	session string
	section string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string]*signal.ClassifiedItem),
		snapshots: make(map[string]signal.Snapshot),
		sections:  make(map[sectionKey][]signal.SectionVersion),
		flags:     make(map[string][]signal.ValidationFlag),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Store(ctx context.Context, items []signal.ClassifiedItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("%w: item id is required", ErrInvalidInput)
		}
		if _, ok := s.items[it.ID]; ok {
			continue
		}
		s.items[it.ID] = &it
		s.order = append(s.order, it.ID)
	}
	return nil
}

func (s *MemoryStore) Item(_ context.Context, itemID string) (signal.ClassifiedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.items[itemID]
	if !ok {
		return signal.ClassifiedItem{}, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	return *m, nil
}

func (s *MemoryStore) QueryActive(_ context.Context, sessionID string) ([]signal.ClassifiedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(sessionID, func(it signal.ClassifiedItem) bool { return it.Active() }), nil
}

func (s *MemoryStore) QuerySuppressed(_ context.Context, sessionID string) ([]signal.ClassifiedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(sessionID, func(it signal.ClassifiedItem) bool {
		return it.Suppressed && !it.ManuallyRestored
	}), nil
}

// filter walks items in insertion order, stable-sorted by creation time.
// Callers hold the lock.
func (s *MemoryStore) filter(sessionID string, keep func(signal.ClassifiedItem) bool) []signal.ClassifiedItem {
	out := make([]signal.ClassifiedItem, 0)
	for _, id := range s.order {
		it := *s.items[id]
		if it.SessionID == sessionID && keep(it) {
			out = append(out, it)
		}
	}
	sortByCreated(out)
	return out
}

func (s *MemoryStore) Restore(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	m.Restore()
	return nil
}

func (s *MemoryStore) CreateSnapshot(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.filter(sessionID, func(it signal.ClassifiedItem) bool { return it.Active() })
	ids := make([]string, len(active))
	for i, it := range active {
		ids[i] = it.ID
	}
	snap := signal.Snapshot{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CreatedAt: s.now(),
		MemberIDs: ids,
	}
	s.snapshots[snap.ID] = snap
	return snap.ID, nil
}

func (s *MemoryStore) Snapshot(_ context.Context, snapshotID string) (signal.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[snapshotID]
	if !ok {
		return signal.Snapshot{}, fmt.Errorf("snapshot %s: %w", snapshotID, ErrNotFound)
	}
	snap.MemberIDs = append([]string(nil), snap.MemberIDs...)
	return snap, nil
}

func (s *MemoryStore) ResolveSnapshot(_ context.Context, snapshotID string, labels ...signal.Label) ([]signal.ClassifiedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[snapshotID]
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", snapshotID, ErrNotFound)
	}
	want := labelSet(labels)
	out := make([]signal.ClassifiedItem, 0, len(snap.MemberIDs))
	for _, id := range snap.MemberIDs {
		m, ok := s.items[id]
		if !ok {
			continue
		}
		if want != nil && !want[m.Label] {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) StoreSection(_ context.Context, in SectionInput) (signal.SectionVersion, error) {
	if err := in.Validate(); err != nil {
		return signal.SectionVersion{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sectionKey{in.SessionID, in.SectionName}
	history := s.sections[key]
	if n := len(history); n > 0 && history[n-1].Locked() && !in.HumanEdited {
		return signal.SectionVersion{}, fmt.Errorf("section %s: %w", in.SectionName, ErrSectionLocked)
	}

	v := signal.SectionVersion{
		ID:            uuid.NewString(),
		SessionID:     in.SessionID,
		SnapshotID:    in.SnapshotID,
		SectionName:   in.SectionName,
		VersionNumber: len(history) + 1,
		Content:       in.Content,
		SourceItemIDs: append([]string{}, in.SourceItemIDs...),
		HumanEdited:   in.HumanEdited,
		GeneratedAt:   s.now(),
	}
	s.sections[key] = append(history, v)
	return v, nil
}

func (s *MemoryStore) LatestSections(ctx context.Context, sessionID string) (map[string]string, error) {
	latest, err := s.LatestSectionVersions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(latest))
	for name, v := range latest {
		out[name] = v.Content
	}
	return out, nil
}

func (s *MemoryStore) LatestSectionVersions(_ context.Context, sessionID string) (map[string]signal.SectionVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]signal.SectionVersion)
	for key, history := range s.sections {
		if key.session != sessionID || len(history) == 0 {
			continue
		}
		out[key.section] = history[len(history)-1]
	}
	return out, nil
}

func (s *MemoryStore) SectionHistory(_ context.Context, sessionID, sectionName string) ([]signal.SectionVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.sections[sectionKey{sessionID, sectionName}]
	return append([]signal.SectionVersion{}, history...), nil
}

func (s *MemoryStore) StoreFlag(_ context.Context, flag signal.ValidationFlag) error {
	if flag.SessionID == "" {
		return fmt.Errorf("%w: flag session id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if flag.ID == "" {
		flag.ID = uuid.NewString()
	}
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = s.now()
	}
	s.flags[flag.SessionID] = append(s.flags[flag.SessionID], flag)
	return nil
}

func (s *MemoryStore) ListFlags(_ context.Context, sessionID string) ([]signal.ValidationFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]signal.ValidationFlag{}, s.flags[sessionID]...)
	sortFlags(out)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func sortByCreated(items []signal.ClassifiedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

var _ Store = (*MemoryStore)(nil)
