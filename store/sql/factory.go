package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sendgate/core"
)

// RepositoryFactory builds every SQL-backed store off one bun handle.
type RepositoryFactory struct {
	db *bun.DB

	policyStore       *PolicyStore
	sendLogStore      *SendLogStore
	rateCounterStore  *RateCounterStore
	credentialStore   *CredentialStore
	jobStore          *JobStore
	webhookEventStore *WebhookEventStore
	usageStore        *UsageStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.policyStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) PolicyStore() core.PolicyStore {
	if f == nil {
		return nil
	}
	return f.policyStore
}

func (f *RepositoryFactory) SendLogStore() core.SendLogStore {
	if f == nil {
		return nil
	}
	return f.sendLogStore
}

func (f *RepositoryFactory) RateCounterStore() core.RateCounterStore {
	if f == nil {
		return nil
	}
	return f.rateCounterStore
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) JobStore() core.JobStore {
	if f == nil {
		return nil
	}
	return f.jobStore
}

func (f *RepositoryFactory) WebhookEventStore() core.WebhookEventStore {
	if f == nil {
		return nil
	}
	return f.webhookEventStore
}

func (f *RepositoryFactory) UsageStore() core.UsageStore {
	if f == nil {
		return nil
	}
	return f.usageStore
}

func (f *RepositoryFactory) initStores() error {
	policyStore, err := NewPolicyStore(f.db)
	if err != nil {
		return err
	}
	f.policyStore = policyStore

	sendLogStore, err := NewSendLogStore(f.db)
	if err != nil {
		return err
	}
	f.sendLogStore = sendLogStore

	rateCounterStore, err := NewRateCounterStore(f.db)
	if err != nil {
		return err
	}
	f.rateCounterStore = rateCounterStore

	credentialStore, err := NewCredentialStore(f.db)
	if err != nil {
		return err
	}
	f.credentialStore = credentialStore

	jobStore, err := NewJobStore(f.db)
	if err != nil {
		return err
	}
	f.jobStore = jobStore

	webhookEventStore, err := NewWebhookEventStore(f.db)
	if err != nil {
		return err
	}
	f.webhookEventStore = webhookEventStore

	usageStore, err := NewUsageStore(f.db)
	if err != nil {
		return err
	}
	f.usageStore = usageStore

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
