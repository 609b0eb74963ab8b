package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/shree2160/sahayakAIv1/internal/models"
	"github.com/shree2160/sahayakAIv1/internal/observability"
)

// Store retrieves procedural knowledge entries.
type Store interface {
	Search(ctx context.Context, query, category string, limit int) ([]models.KnowledgeEntry, error)
	Add(ctx context.Context, entry models.KnowledgeEntry) error
	Ping(ctx context.Context) error
	Ready() bool
}

// PostgresStore implements Store over a managed Postgres database (the
// Supabase free tier exposes one). A missing or unreachable database is not
// fatal: Search falls back to the built-in guides.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore opens the connection pool and verifies it with a ping.
// An empty databaseURL or a failed ping returns a store in fallback mode
// along with the error so the caller can log it.
func NewPostgresStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresStore, error) {
	s := &PostgresStore{logger: logger}
	if databaseURL == "" {
		return s, fmt.Errorf("database URL not configured")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return s, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return s, fmt.Errorf("ping database: %w", err)
	}

	s.db = db
	return s, nil
}

// Ready reports whether the database connection is live.
func (s *PostgresStore) Ready() bool {
	return s.db != nil
}

// Search looks up knowledge entries whose content matches the query
// case-insensitively, optionally filtered by category. Database errors and
// empty result sets both fall back to the built-in guides, so callers always
// get something to inject as context.
func (s *PostgresStore) Search(ctx context.Context, query, category string, limit int) ([]models.KnowledgeEntry, error) {
	if s.db == nil {
		observability.KnowledgeLookupsTotal.WithLabelValues("fallback").Inc()
		return FallbackSearch(query), nil
	}

	q := `SELECT id, content, category, COALESCE(location, '') FROM local_knowledge WHERE content ILIKE $1`
	args := []interface{}{"%" + strings.TrimSpace(query) + "%"}
	if category != "" && category != "general" {
		q += ` AND category = $2`
		args = append(args, category)
	}
	q += fmt.Sprintf(` LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("knowledge search failed, using fallback", zap.Error(err))
		}
		observability.KnowledgeLookupsTotal.WithLabelValues("fallback").Inc()
		return FallbackSearch(query), nil
	}
	defer rows.Close()

	var entries []models.KnowledgeEntry
	for rows.Next() {
		var e models.KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.Content, &e.Category, &e.Location); err != nil {
			return nil, fmt.Errorf("scan knowledge row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge rows: %w", err)
	}

	if len(entries) == 0 {
		observability.KnowledgeLookupsTotal.WithLabelValues("fallback").Inc()
		return FallbackSearch(query), nil
	}
	observability.KnowledgeLookupsTotal.WithLabelValues("database").Inc()
	return entries, nil
}

// Add inserts a new knowledge entry. Returns an error in fallback mode.
func (s *PostgresStore) Add(ctx context.Context, entry models.KnowledgeEntry) error {
	if s.db == nil {
		return fmt.Errorf("database not connected")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_knowledge (content, category, location) VALUES ($1, $2, NULLIF($3, ''))`,
		entry.Content, entry.Category, entry.Location)
	if err != nil {
		return fmt.Errorf("insert knowledge entry: %w", err)
	}
	return nil
}

// Seed creates the guides table if needed and loads the built-in guides
// into an empty table, so a fresh database starts with usable content.
func (s *PostgresStore) Seed(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not connected")
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS local_knowledge (
			id SERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			location TEXT
		)`)
	if err != nil {
		return fmt.Errorf("create knowledge table: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM local_knowledge`).Scan(&count); err != nil {
		return fmt.Errorf("count knowledge rows: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, g := range fallbackGuides {
		if err := s.Add(ctx, g); err != nil {
			return err
		}
	}
	if s.logger != nil {
		s.logger.Info("seeded knowledge table", zap.Int("guides", len(fallbackGuides)))
	}
	return nil
}

// Ping checks database reachability. Used by health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not connected")
	}
	return s.db.PingContext(ctx)
}

// Close releases the connection pool. Call during shutdown.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
