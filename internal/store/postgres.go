package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyagen/mbient/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ReplaceChannels upserts the source and swaps its channels in one transaction.
func (p *Postgres) ReplaceChannels(ctx context.Context, sourceURL, name string, channels []models.Channel) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ReplaceChannels: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO sources (url, name, channel_count, last_updated)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (url) DO UPDATE SET
		   name = COALESCE(NULLIF(EXCLUDED.name, ''), sources.name),
		   channel_count = EXCLUDED.channel_count,
		   last_updated = NOW()
		 RETURNING id`,
		sourceURL, name, len(channels),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ReplaceChannels: upsert source: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM channels WHERE source_id = $1`, id); err != nil {
		return 0, fmt.Errorf("ReplaceChannels: delete channels: %w", err)
	}

	rows := make([][]any, len(channels))
	for i, ch := range channels {
		rows[i] = []any{id, i, ch.StreamURL, ch.Title, ch.LogoURL}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"channels"},
		[]string{"source_id", "position", "stream_url", "title", "logo_url"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("ReplaceChannels: copy channels: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ReplaceChannels: commit: %w", err)
	}
	return id, nil
}

// ListChannels returns channels for the source ordered by playlist position.
func (p *Postgres) ListChannels(ctx context.Context, sourceURL string) ([]models.Channel, error) {
	src, err := p.GetSourceByURL(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx,
		`SELECT stream_url, title, logo_url FROM channels WHERE source_id = $1 ORDER BY position`,
		src.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	channels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Channel, error) {
		var ch models.Channel
		err := row.Scan(&ch.StreamURL, &ch.Title, &ch.LogoURL)
		return ch, err
	})
	if err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	return channels, nil
}

// GetSourceByURL returns the source stored under sourceURL, or ErrNotFound.
func (p *Postgres) GetSourceByURL(ctx context.Context, sourceURL string) (*models.Source, error) {
	var s models.Source
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, url, channel_count, last_updated, created_at FROM sources WHERE url = $1`,
		sourceURL,
	).Scan(&s.ID, &s.Name, &s.URL, &s.ChannelCount, &s.LastUpdated, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("GetSourceByURL: %w", err)
	}
	return &s, nil
}

// ListSources returns all sources, most recently updated first.
func (p *Postgres) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, url, channel_count, last_updated, created_at
		 FROM sources ORDER BY last_updated DESC NULLS LAST, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListSources: %w", err)
	}
	sources, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Source, error) {
		var s models.Source
		err := row.Scan(&s.ID, &s.Name, &s.URL, &s.ChannelCount, &s.LastUpdated, &s.CreatedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("ListSources: %w", err)
	}
	return sources, nil
}
