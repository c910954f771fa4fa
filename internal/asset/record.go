package asset

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAssetNotFound = errors.New("asset does not exist")

type (
	// Record describes a streamable asset produced by a successful
	// transcode. ThumbnailURL is empty when no thumbnail could be derived.
	Record struct {
		Title        string  `db:"title" json:"title"`
		ManifestURL  string  `db:"manifest_url" json:"manifestUrl"`
		Size         int64   `db:"size" json:"size"`
		ThumbnailURL string  `db:"thumbnail_url" json:"thumbnailUrl"`
		Duration     float64 `db:"duration" json:"duration"`
		Format       string  `db:"format" json:"format"`
	}

	// Asset is a Record as it exists in a catalog.
	Asset struct {
		ID uuid.UUID `db:"id" json:"id"`
		Record
		CreatedAt time.Time `db:"created_at" json:"createdAt"`
	}

	// Registration is the outcome of registering a Record with a catalog.
	// Error carries the catalog's failure reason verbatim.
	Registration struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error,omitempty"`
	}

	// Catalog is the persistence collaborator for assets. Register has
	// insert semantics: registering the same record twice yields two assets.
	Catalog interface {
		Register(ctx context.Context, record Record) Registration
		List(ctx context.Context) ([]*Asset, error)
		GetByTitle(ctx context.Context, title string) (*Asset, error)
	}
)

func failedRegistration(message string, err error) Registration {
	return Registration{Success: false, Message: message, Error: err.Error()}
}
