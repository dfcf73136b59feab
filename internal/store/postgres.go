package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fyrsmithlabs/brdforge/internal/config"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

const itemColumns = `id, session_id, source_ref, speaker, raw_text, cleaned_text, label,
	confidence, reasoning, suppressed, manually_restored, flagged_for_review, created_at`

const sectionColumns = `id, session_id, snapshot_id, section_name, version_number, content,
	source_item_ids, human_edited, generated_at`

// PostgresStore is a Store backed by PostgreSQL through the pgx stdlib driver.
type PostgresStore struct {
	db     *sql.DB
	logger *logging.Logger
	now    func() time.Time
}

// OpenPostgres opens a connection pool, optionally migrates, and pings.
func OpenPostgres(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	dsn := cfg.DSN.Value()
	if cfg.MigrateOnStart {
		if err := MigrateUp(dsn); err != nil {
			return nil, err
		}
		logger.Info(ctx, "database migrations applied")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info(ctx, "database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return NewPostgresStore(db, logger), nil
}

// NewPostgresStore wraps an open pool. The schema must already exist.
func NewPostgresStore(db *sql.DB, logger *logging.Logger) *PostgresStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PostgresStore{
		db:     db,
		logger: logger.Named("store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *PostgresStore) Store(ctx context.Context, items []signal.ClassifiedItem) error {
	if len(items) == 0 {
		return nil
	}
	const q = `INSERT INTO classified_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	_, err := withTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return struct{}{}, fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, it := range items {
			if it.ID == "" {
				return struct{}{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
			}
			if _, err := stmt.ExecContext(ctx,
				it.ID, it.SessionID, it.SourceRef, it.Speaker, it.RawText, it.CleanedText,
				string(it.Label), it.Confidence, it.Reasoning,
				it.Suppressed, it.ManuallyRestored, it.FlaggedForReview, it.CreatedAt,
			); err != nil {
				return struct{}{}, fmt.Errorf("insert item %s: %w", it.ID, err)
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return mapError(err, ErrNotFound)
	}
	s.logger.Debug(ctx, "items stored", zap.Int("count", len(items)))
	return nil
}

func (s *PostgresStore) Item(ctx context.Context, itemID string) (signal.ClassifiedItem, error) {
	q := `SELECT ` + itemColumns + ` FROM classified_items WHERE id = $1`
	it, err := queryOne(ctx, s.db, q, []any{itemID}, scanItem)
	if err != nil {
		return signal.ClassifiedItem{}, fmt.Errorf("item %s: %w", itemID, mapError(err, ErrNotFound))
	}
	return it, nil
}

func (s *PostgresStore) QueryActive(ctx context.Context, sessionID string) ([]signal.ClassifiedItem, error) {
	q := `SELECT ` + itemColumns + ` FROM classified_items
		WHERE session_id = $1 AND (suppressed = FALSE OR manually_restored = TRUE)
		ORDER BY created_at ASC, seq ASC`
	items, err := queryMany(ctx, s.db, q, []any{sessionID}, scanItem)
	if err != nil {
		return nil, fmt.Errorf("query active items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) QuerySuppressed(ctx context.Context, sessionID string) ([]signal.ClassifiedItem, error) {
	q := `SELECT ` + itemColumns + ` FROM classified_items
		WHERE session_id = $1 AND suppressed = TRUE AND manually_restored = FALSE
		ORDER BY created_at ASC, seq ASC`
	items, err := queryMany(ctx, s.db, q, []any{sessionID}, scanItem)
	if err != nil {
		return nil, fmt.Errorf("query suppressed items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Restore(ctx context.Context, itemID string) error {
	err := execExpectOne(ctx, s.db,
		`UPDATE classified_items SET suppressed = FALSE, manually_restored = TRUE WHERE id = $1`,
		itemID)
	if err != nil {
		return fmt.Errorf("item %s: %w", itemID, mapError(err, ErrNotFound))
	}
	return nil
}

// CreateSnapshot freezes member ids in a single statement so concurrent
// inserts either land wholly before or wholly after the snapshot.
func (s *PostgresStore) CreateSnapshot(ctx context.Context, sessionID string) (string, error) {
	const q = `INSERT INTO brd_snapshots (id, session_id, created_at, member_ids)
		SELECT $1, $2, $3, COALESCE(jsonb_agg(id ORDER BY created_at, seq), '[]'::jsonb)
		FROM classified_items
		WHERE session_id = $2 AND (suppressed = FALSE OR manually_restored = TRUE)`

	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, q, id, sessionID, s.now()); err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, snapshotID string) (signal.Snapshot, error) {
	const q = `SELECT id, session_id, created_at, member_ids FROM brd_snapshots WHERE id = $1`
	snap, err := queryOne(ctx, s.db, q, []any{snapshotID}, scanSnapshot)
	if err != nil {
		return signal.Snapshot{}, fmt.Errorf("snapshot %s: %w", snapshotID, mapError(err, ErrNotFound))
	}
	return snap, nil
}

func (s *PostgresStore) ResolveSnapshot(ctx context.Context, snapshotID string, labels ...signal.Label) ([]signal.ClassifiedItem, error) {
	if _, err := s.Snapshot(ctx, snapshotID); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(`SELECT `)
	for i, col := range strings.Split(itemColumns, ",") {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("i." + strings.TrimSpace(col))
	}
	b.WriteString(` FROM brd_snapshots s
		CROSS JOIN LATERAL jsonb_array_elements_text(s.member_ids) WITH ORDINALITY AS m(item_id, pos)
		JOIN classified_items i ON i.id = m.item_id
		WHERE s.id = $1`)

	args := []any{snapshotID}
	if len(labels) > 0 {
		placeholders := make([]string, len(labels))
		for i, l := range labels {
			args = append(args, string(l))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		b.WriteString(` AND i.label IN (` + strings.Join(placeholders, ", ") + `)`)
	}
	b.WriteString(` ORDER BY m.pos`)

	items, err := queryMany(ctx, s.db, b.String(), args, scanItem)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot %s: %w", snapshotID, err)
	}
	return items, nil
}

// StoreSection bumps the section head and inserts the version in one
// transaction. The head upsert only succeeds when the section is unlocked or
// the write is itself a human edit; no returned row means locked.
func (s *PostgresStore) StoreSection(ctx context.Context, in SectionInput) (signal.SectionVersion, error) {
	if err := in.Validate(); err != nil {
		return signal.SectionVersion{}, err
	}

	const headQ = `INSERT INTO brd_section_heads (session_id, section_name, latest_version, locked)
		VALUES ($1, $2, 1, $3::boolean)
		ON CONFLICT (session_id, section_name) DO UPDATE
		SET latest_version = brd_section_heads.latest_version + 1,
			locked = EXCLUDED.locked
		WHERE $3::boolean OR NOT brd_section_heads.locked
		RETURNING latest_version`

	const insertQ = `INSERT INTO brd_sections (` + sectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	sources := in.SourceItemIDs
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return signal.SectionVersion{}, fmt.Errorf("marshal source ids: %w", err)
	}

	v, err := withTx(ctx, s.db, func(tx *sql.Tx) (signal.SectionVersion, error) {
		var version int
		if err := tx.QueryRowContext(ctx, headQ, in.SessionID, in.SectionName, in.HumanEdited).Scan(&version); err != nil {
			return signal.SectionVersion{}, mapError(err, ErrSectionLocked)
		}

		v := signal.SectionVersion{
			ID:            uuid.NewString(),
			SessionID:     in.SessionID,
			SnapshotID:    in.SnapshotID,
			SectionName:   in.SectionName,
			VersionNumber: version,
			Content:       in.Content,
			SourceItemIDs: sources,
			HumanEdited:   in.HumanEdited,
			GeneratedAt:   s.now(),
		}
		if _, err := tx.ExecContext(ctx, insertQ,
			v.ID, v.SessionID, v.SnapshotID, v.SectionName, v.VersionNumber,
			v.Content, sourcesJSON, v.HumanEdited, v.GeneratedAt,
		); err != nil {
			return signal.SectionVersion{}, fmt.Errorf("insert section version: %w", err)
		}
		return v, nil
	})
	if err != nil {
		return signal.SectionVersion{}, fmt.Errorf("section %s: %w", in.SectionName, err)
	}
	return v, nil
}

func (s *PostgresStore) LatestSections(ctx context.Context, sessionID string) (map[string]string, error) {
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

func (s *PostgresStore) LatestSectionVersions(ctx context.Context, sessionID string) (map[string]signal.SectionVersion, error) {
	q := `SELECT DISTINCT ON (section_name) ` + sectionColumns + `
		FROM brd_sections WHERE session_id = $1
		ORDER BY section_name, version_number DESC`
	versions, err := queryMany(ctx, s.db, q, []any{sessionID}, scanSection)
	if err != nil {
		return nil, fmt.Errorf("query latest sections: %w", err)
	}
	out := make(map[string]signal.SectionVersion, len(versions))
	for _, v := range versions {
		out[v.SectionName] = v
	}
	return out, nil
}

func (s *PostgresStore) SectionHistory(ctx context.Context, sessionID, sectionName string) ([]signal.SectionVersion, error) {
	q := `SELECT ` + sectionColumns + ` FROM brd_sections
		WHERE session_id = $1 AND section_name = $2
		ORDER BY version_number ASC`
	versions, err := queryMany(ctx, s.db, q, []any{sessionID, sectionName}, scanSection)
	if err != nil {
		return nil, fmt.Errorf("query section history: %w", err)
	}
	return versions, nil
}

func (s *PostgresStore) StoreFlag(ctx context.Context, flag signal.ValidationFlag) error {
	if flag.SessionID == "" {
		return fmt.Errorf("%w: flag session id is required", ErrInvalidInput)
	}
	if flag.ID == "" {
		flag.ID = uuid.NewString()
	}
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = s.now()
	}
	const q = `INSERT INTO brd_validation_flags
		(id, session_id, section_name, flag_type, severity, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.db.ExecContext(ctx, q,
		flag.ID, flag.SessionID, flag.SectionName, string(flag.FlagType),
		string(flag.Severity), flag.Description, flag.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert flag: %w", mapError(err, ErrNotFound))
	}
	return nil
}

func (s *PostgresStore) ListFlags(ctx context.Context, sessionID string) ([]signal.ValidationFlag, error) {
	const q = `SELECT id, session_id, section_name, flag_type, severity, description, created_at
		FROM brd_validation_flags WHERE session_id = $1
		ORDER BY CASE severity WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
			created_at ASC, id ASC`
	flags, err := queryMany(ctx, s.db, q, []any{sessionID}, scanFlag)
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}
	return flags, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanItem(sc scanner) (signal.ClassifiedItem, error) {
	var it signal.ClassifiedItem
	var label string
	err := sc.Scan(
		&it.ID, &it.SessionID, &it.SourceRef, &it.Speaker, &it.RawText, &it.CleanedText,
		&label, &it.Confidence, &it.Reasoning,
		&it.Suppressed, &it.ManuallyRestored, &it.FlaggedForReview, &it.CreatedAt,
	)
	it.Label = signal.ParseLabel(label)
	return it, err
}

func scanSnapshot(sc scanner) (signal.Snapshot, error) {
	var snap signal.Snapshot
	var members []byte
	if err := sc.Scan(&snap.ID, &snap.SessionID, &snap.CreatedAt, &members); err != nil {
		return snap, err
	}
	if err := json.Unmarshal(members, &snap.MemberIDs); err != nil {
		return snap, fmt.Errorf("decode member ids: %w", err)
	}
	return snap, nil
}

func scanSection(sc scanner) (signal.SectionVersion, error) {
	var v signal.SectionVersion
	var sources []byte
	if err := sc.Scan(
		&v.ID, &v.SessionID, &v.SnapshotID, &v.SectionName, &v.VersionNumber, &v.Content,
		&sources, &v.HumanEdited, &v.GeneratedAt,
	); err != nil {
		return v, err
	}
	if err := json.Unmarshal(sources, &v.SourceItemIDs); err != nil {
		return v, fmt.Errorf("decode source ids: %w", err)
	}
	return v, nil
}

func scanFlag(sc scanner) (signal.ValidationFlag, error) {
	var f signal.ValidationFlag
	var flagType, severity string
	err := sc.Scan(&f.ID, &f.SessionID, &f.SectionName, &flagType, &severity, &f.Description, &f.CreatedAt)
	f.FlagType = signal.FlagType(flagType)
	f.Severity = signal.Severity(severity)
	return f, err
}

var _ Store = (*PostgresStore)(nil)
