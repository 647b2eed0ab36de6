package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	DSN string `envconfig:"DSN" split_words:"true"`
}

type artifactRow struct {
	bun.BaseModel `bun:"table:artifacts,alias:a"`

	Key       string    `bun:"key,pk"`
	RunID     string    `bun:"run_id,notnull"`
	Author    string    `bun:"author,notnull"`
	Title     string    `bun:"title,notnull"`
	Content   string    `bun:"content,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// PostgresStore persists artifacts in a single upserted table.
type PostgresStore struct {
	db *bun.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*artifactRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create artifacts table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, a *Artifact) error {
	if err := validate(a); err != nil {
		return err
	}
	row := &artifactRow{
		Key:       a.Key,
		RunID:     a.RunID,
		Author:    a.Author,
		Title:     a.Title,
		Content:   a.Content,
		UpdatedAt: a.UpdatedAt,
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("title = EXCLUDED.title").
		Set("author = EXCLUDED.author").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert artifact=%s: %w", a.Key, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Artifact, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrInvalidKey
	}
	row := new(artifactRow)
	err := s.db.NewSelect().Model(row).Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select artifact=%s: %w", key, err)
	}
	return &Artifact{
		Key:       row.Key,
		RunID:     row.RunID,
		Author:    row.Author,
		Title:     row.Title,
		Content:   row.Content,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
