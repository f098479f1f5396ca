package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/app"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/leader"
	"auction-engine/internal/infrastructure/mysql"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/services"
	"auction-engine/pkg/utils"

	"github.com/spf13/cobra"
)

const commandTimeout = 2 * time.Minute

func (c *cli) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the MySQL schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			db, err := utils.InitializeMysql(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer db.Close()
			return mysql.MigrateUp(db, c.log)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return errors.New("--steps must be positive")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			db, err := utils.InitializeMysql(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer db.Close()
			return mysql.MigrateDown(db, steps, c.log)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

// withScheduler runs fn against a scheduler built from the configured backend.
// No leader election is involved: the operator asked for exactly one run.
func (c *cli) withScheduler(ctx context.Context, fn func(ctx context.Context, s *services.CronAuctionScheduler) error) error {
	if c.cfg.Store.Driver != config.StoreMySQL {
		return fmt.Errorf("auctionctl needs the mysql store, configured driver is %q", c.cfg.Store.Driver)
	}

	backend, err := app.OpenBackend(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer backend.Close()

	rdb, err := utils.InitializeRedis(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	notifier, closeNotifier, err := app.NewNotifier(c.cfg, c.log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	clock := domain.SystemClock{}
	svc := app.NewServices(backend, redis.NewEventPublisher(rdb), notifier, c.cfg, clock, c.log)
	scheduler := services.NewCronAuctionScheduler(backend.Store, svc.Auctions, svc.Dispatcher,
		nil, app.SchedulerOptions(c.cfg), clock, c.log)

	return fn(ctx, scheduler)
}

func (c *cli) closeDueCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "close-due",
		Short: "Close every auction whose bidding window has elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if !force {
				if err := c.ensureNoLeader(ctx); err != nil {
					return err
				}
			}

			return c.withScheduler(ctx, func(ctx context.Context, s *services.CronAuctionScheduler) error {
				closed, err := s.SweepOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "closed %d auction(s)\n", closed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "sweep even while a service instance holds the scheduler lease")
	return cmd
}

// ensureNoLeader refuses to sweep next to a running scheduler. Closing is idempotent,
// so this only avoids duplicate work and log noise.
func (c *cli) ensureNoLeader(ctx context.Context) error {
	rdb, err := utils.InitializeRedis(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	holder, err := leader.CurrentLeader(ctx, rdb)
	if err != nil {
		return err
	}
	if holder != "" {
		return fmt.Errorf("instance %q holds the scheduler lease, rerun with --force to sweep anyway", holder)
	}
	return nil
}

func (c *cli) relayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish outbox events that missed their immediate dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			return c.withScheduler(ctx, func(ctx context.Context, s *services.CronAuctionScheduler) error {
				published, err := s.RelayOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %d event(s)\n", published)
				return nil
			})
		},
	}
}

func (c *cli) productCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage the product catalog mirror",
	}

	var id, owner, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register or update a product and its owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			db, err := utils.InitializeMysql(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := mysql.NewStore(db).AddProduct(ctx, id, owner, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "product %s owned by %s\n", id, owner)
			return nil
		},
	}
	add.Flags().StringVar(&id, "id", "", "product id")
	add.Flags().StringVar(&owner, "owner", "", "owner user id")
	add.Flags().StringVar(&name, "name", "", "display name")
	_ = add.MarkFlagRequired("id")
	_ = add.MarkFlagRequired("owner")
	cmd.AddCommand(add)

	return cmd
}
