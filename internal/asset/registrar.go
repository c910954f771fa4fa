package asset

import (
	"context"

	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/jmoiron/sqlx"
)

var log = logger.Get("Catalog")

type (
	DatabaseManager interface {
		GetSqlxDb() *sqlx.DB
		WrapTx(context.Context, func(*sqlx.Tx) error) error
	}

	// StoreRegistrar is a Catalog backed by the local Postgres database.
	StoreRegistrar struct {
		db    DatabaseManager
		store *Store
	}
)

func NewStoreRegistrar(db DatabaseManager, store *Store) *StoreRegistrar {
	return &StoreRegistrar{db, store}
}

func (registrar *StoreRegistrar) Register(ctx context.Context, record Record) Registration {
	var inserted *Asset
	err := registrar.db.WrapTx(ctx, func(tx *sqlx.Tx) error {
		asset, err := registrar.store.Insert(ctx, tx, record)
		inserted = asset
		return err
	})
	if err != nil {
		log.Emit(logger.ERROR, "Failed to register asset %q: %v\n", record.Title, err)
		return failedRegistration("Failed to register asset", err)
	}

	log.Emit(logger.SUCCESS, "Registered asset %q (%s)\n", record.Title, inserted.ID)
	return Registration{Success: true, Message: "Asset registered"}
}

func (registrar *StoreRegistrar) List(ctx context.Context) ([]*Asset, error) {
	return registrar.store.List(ctx, registrar.db.GetSqlxDb())
}

func (registrar *StoreRegistrar) GetByTitle(ctx context.Context, title string) (*Asset, error) {
	return registrar.store.GetByTitle(ctx, registrar.db.GetSqlxDb(), title)
}
