package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-calendar-sync/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	integrationStore *IntegrationStore
	syncLogStore     *SyncLogStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.IntegrationStoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.integrationStore != nil && f.syncLogStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) IntegrationStore() core.IntegrationStore {
	if f == nil || f.integrationStore == nil {
		return nil
	}
	return f.integrationStore
}

func (f *RepositoryFactory) SyncLogStore() core.SyncLogStore {
	if f == nil || f.syncLogStore == nil {
		return nil
	}
	return f.syncLogStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	integrationRepo := repository.NewRepository[*integrationRecord](f.db, integrationHandlers())
	if validator, ok := integrationRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid integration repository wiring: %w", err)
		}
	}

	syncLogRepo := repository.NewRepository[*syncLogRecord](f.db, syncLogHandlers())
	if validator, ok := syncLogRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid sync log repository wiring: %w", err)
		}
	}

	f.integrationStore = &IntegrationStore{
		db:   f.db,
		repo: integrationRepo,
	}
	f.syncLogStore = &SyncLogStore{
		db:   f.db,
		repo: syncLogRepo,
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
