// Package app builds the collaborators shared by the auction binaries.
package app

import (
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/internal/infrastructure/mysql"
	"auction-engine/internal/infrastructure/rabbitmq"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Backend is the configured persistence for auctions and the product catalog.
type Backend struct {
	Store   domain.Store
	Catalog domain.ProductCatalog
	// DB is nil for the memory driver.
	DB *sql.DB
}

func (b *Backend) Close() error {
	if b.DB == nil {
		return nil
	}
	return b.DB.Close()
}

// OpenBackend connects the store selected by store.driver. The MySQL schema is
// migrated first when mysql.auto_migrate is set.
func OpenBackend(ctx context.Context, cfg *config.Config, log logger.Logger) (*Backend, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		store := memory.NewStore()
		if err := seedProducts(store, cfg.Store.SeedProducts); err != nil {
			return nil, err
		}
		log.Warn("Using in-memory store, state is lost on restart", "products", len(cfg.Store.SeedProducts))
		return &Backend{Store: store, Catalog: store}, nil

	case config.StoreMySQL:
		db, err := utils.InitializeMysql(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if cfg.MySQL.AutoMigrate {
			if err := mysql.MigrateUp(db, log); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		log.Info("Connected to MySQL")
		store := mysql.NewStore(db)
		return &Backend{Store: store, Catalog: store, DB: db}, nil

	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.Store.Driver)
	}
}

func seedProducts(store *memory.Store, pairs []string) error {
	for _, pair := range pairs {
		productID, ownerID, ok := strings.Cut(pair, ":")
		if !ok || productID == "" || ownerID == "" {
			return fmt.Errorf("app: seed product %q is not product_id:owner_id", pair)
		}
		store.AddProduct(productID, ownerID)
	}
	return nil
}

// NewNotifier returns the RabbitMQ notifier, or a log-only notifier when no broker URL is set.
// The returned func releases the broker connection.
func NewNotifier(cfg *config.Config, log logger.Logger) (domain.Notifier, func(), error) {
	if cfg.RabbitMQ.URL == "" {
		log.Warn("No RabbitMQ URL configured, notifications are only logged")
		return services.NewLogNotifier(log), func() {}, nil
	}

	n, err := rabbitmq.NewNotifier(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log)
	if err != nil {
		return nil, nil, err
	}
	return n, n.Close, nil
}

// Services bundles the auction services over one backend.
type Services struct {
	Dispatcher    *services.EventDispatcher
	Auctions      *services.AuctionManager
	Bids          *services.BidService
	Participation *services.ParticipationService
}

func NewServices(backend *Backend, publisher domain.EventPublisher, notifier domain.Notifier,
	cfg *config.Config, clock domain.Clock, log logger.Logger) *Services {
	policy := domain.Policy{AdminCanCancel: cfg.Auction.AdminCanCancel}
	dispatcher := services.NewEventDispatcher(backend.Store, publisher, notifier, clock, log)

	return &Services{
		Dispatcher:    dispatcher,
		Auctions:      services.NewAuctionManager(backend.Store, backend.Catalog, dispatcher, policy, clock, log),
		Bids:          services.NewBidService(backend.Store, dispatcher, policy, clock, log),
		Participation: services.NewParticipationService(backend.Store, dispatcher, policy, clock, log),
	}
}

// SchedulerOptions maps the scheduler section of cfg.
func SchedulerOptions(cfg *config.Config) services.SchedulerOptions {
	return services.SchedulerOptions{
		InstanceID: cfg.Instance.ID,
		CloseSpec:  cfg.Scheduler.CloseSpec,
		RelaySpec:  cfg.Scheduler.RelaySpec,
		BatchSize:  cfg.Scheduler.BatchSize,
		RelayDelay: cfg.Scheduler.RelayDelay,
	}
}
