// Package postgres provides the Postgres-backed article store.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/news-harvester/internal/crawler"
)

//go:embed schema.sql
var schemaSQL string

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const uniqueViolation = "23505"

var articleColumns = []string{
	"id",
	"url",
	"domain",
	"source_type",
	"title",
	"publication_date",
	"crawled_at",
	"inserted_at",
	"document",
}

// ArticleStoreConfig controls the Postgres connection pool used for articles.
type ArticleStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
	Close()
}

// ArticleStore persists article documents in a Postgres table.
type ArticleStore struct {
	pool  pool
	table string
	ids   crawler.IDGenerator
	clock crawler.Clock
}

// NewArticleStore connects a pool using the provided config.
func NewArticleStore(ctx context.Context, cfg ArticleStoreConfig, ids crawler.IDGenerator, clock crawler.Clock) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", classify(err))
	}
	return &ArticleStore{pool: p, table: table, ids: ids, clock: clock}, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(p pool, table string, ids crawler.IDGenerator, clock crawler.Clock) (*ArticleStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ArticleStore{pool: p, table: table, ids: ids, clock: clock}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the articles table and its indexes if missing.
func (s *ArticleStore) EnsureSchema(ctx context.Context) error {
	ddl := strings.ReplaceAll(schemaSQL, "{{table}}", s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", classify(err))
	}
	return nil
}

// Exists reports whether an article with this identifying URL is stored.
func (s *ArticleStore) Exists(ctx context.Context, url string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE url = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("check article exists: %w", classify(err))
	}
	return exists, nil
}

// DomainHasAnyArticle reports whether any article from domain is stored.
func (s *ArticleStore) DomainHasAnyArticle(ctx context.Context, domain string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE domain = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, strings.ToLower(domain)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check domain: %w", classify(err))
	}
	return exists, nil
}

// InsertMany copies all records in one statement. Either every record is
// stored or none is; failures come back as *crawler.BulkInsertError.
func (s *ArticleStore) InsertMany(ctx context.Context, records []crawler.ArticleRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(records))
	var invalid []crawler.RecordError
	for _, rec := range records {
		row, err := s.row(rec)
		if err != nil {
			invalid = append(invalid, crawler.RecordError{URL: rec.IdentifyingURL(), Err: err})
			continue
		}
		rows = append(rows, row)
	}
	if len(invalid) > 0 {
		return 0, &crawler.BulkInsertError{Failures: invalid, Err: crawler.ErrValidationFailed}
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.table}, articleColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, &crawler.BulkInsertError{Err: classify(err)}
	}
	return int(n), nil
}

// InsertOne stores a single record. A URL already present yields crawler.ErrDuplicate.
func (s *ArticleStore) InsertOne(ctx context.Context, record crawler.ArticleRecord) error {
	row, err := s.row(record)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	url,
	domain,
	source_type,
	title,
	publication_date,
	crawled_at,
	inserted_at,
	document
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.table)
	if _, err := s.pool.Exec(ctx, query, row...); err != nil {
		return fmt.Errorf("insert article %s: %w", record.IdentifyingURL(), classify(err))
	}
	return nil
}

func (s *ArticleStore) row(rec crawler.ArticleRecord) ([]any, error) {
	url := rec.IdentifyingURL()
	if url == "" {
		return nil, fmt.Errorf("record without url: %w", crawler.ErrValidationFailed)
	}
	domain, err := crawler.DomainOf(url)
	if err != nil {
		return nil, err
	}
	id, err := s.recordID(rec.ID)
	if err != nil {
		return nil, err
	}
	rec.ID = id.String()
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}

	var title *string
	if t := strings.TrimSpace(rec.Title); t != "" {
		title = &t
	}
	var published *time.Time
	if ts, err := crawler.ParseTimestamp(rec.PublicationDate); err == nil {
		published = &ts
	}
	return []any{
		pgtype.UUID{Bytes: id, Valid: true},
		url,
		domain,
		string(rec.SourceType),
		title,
		published,
		rec.CrawledAt,
		s.now(),
		doc,
	}, nil
}

func (s *ArticleStore) recordID(existing string) (uuid.UUID, error) {
	if existing != "" {
		id, err := uuid.Parse(existing)
		if err != nil {
			return uuid.Nil, fmt.Errorf("record id %q: %w", existing, crawler.ErrValidationFailed)
		}
		return id, nil
	}
	if s.ids == nil {
		id, err := uuid.NewV7()
		if err != nil {
			return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
		}
		return id, nil
	}
	raw, err := s.ids.NewID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate id: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("generated id %q: %w", raw, err)
	}
	return id, nil
}

func (s *ArticleStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

// classify maps driver errors onto the crawler taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %w", crawler.ErrDuplicate, err)
	}
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) ||
		errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", crawler.ErrStoreUnavailable, err)
	}
	return err
}
