package main

import (
	"os"

	"auction-engine/internal/config"
	"auction-engine/pkg/logger"

	"github.com/spf13/cobra"
)

type cli struct {
	configPath string
	cfg        *config.Config
	log        logger.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "auctionctl",
		Short:         "Operate the auction engine: schema migrations, sweeps and the event outbox",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a config file (defaults to config.yaml lookup and the environment)")

	root.AddCommand(
		c.migrateCommand(),
		c.closeDueCommand(),
		c.relayCommand(),
		c.productCommand(),
	)
	return root
}

func (c *cli) load() error {
	var err error
	if c.configPath != "" {
		c.cfg, err = config.LoadFromFile(c.configPath)
	} else {
		c.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	c.log = logger.NewWithLevel(c.cfg.Log.Level)
	return nil
}
