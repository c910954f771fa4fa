package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/database"
)

var assetColumns = []string{"id", "title", "manifest_url", "size", "thumbnail_url", "duration", "format", "created_at"}

type Store struct{}

func NewStore() *Store { return &Store{} }

func (store *Store) Insert(ctx context.Context, db database.Queryable, record Record) (*Asset, error) {
	asset := &Asset{ID: uuid.New(), Record: record}
	query, args, err := squirrel.
		Insert("assets").
		Columns("id", "title", "manifest_url", "size", "thumbnail_url", "duration", "format").
		Values(asset.ID, record.Title, record.ManifestURL, record.Size, record.ThumbnailURL, record.Duration, record.Format).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct insert asset query: %w", err)
	}

	if err := db.GetContext(ctx, &asset.CreatedAt, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to insert asset: %w", err)
	}

	return asset, nil
}

func (store *Store) List(ctx context.Context, db database.Queryable) ([]*Asset, error) {
	query, args, err := selectAssetBuilder().OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list assets query: %w", err)
	}

	var results []*Asset
	if err := db.SelectContext(ctx, &results, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	return results, nil
}

// GetByTitle returns the most recently registered asset with the
// exact title provided, or ErrAssetNotFound.
func (store *Store) GetByTitle(ctx context.Context, db database.Queryable, title string) (*Asset, error) {
	query, args, err := selectAssetBuilder().
		Where(squirrel.Eq{"title": title}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select asset query: %w", err)
	}

	var asset Asset
	if err := db.GetContext(ctx, &asset, db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to find asset with title %s: %w", title, err)
	}

	return &asset, nil
}

func selectAssetBuilder() squirrel.SelectBuilder {
	return squirrel.Select(assetColumns...).From("assets")
}
