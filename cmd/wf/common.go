package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/wayfare/internal/booking"
	"github.com/zulandar/wayfare/internal/config"
	"github.com/zulandar/wayfare/internal/db"
	"github.com/zulandar/wayfare/internal/messaging"
	"github.com/zulandar/wayfare/internal/realtime"
	"gorm.io/gorm"
)

// timeNow is swapped in tests.
var timeNow = time.Now

// configFlags are shared by every command that touches the store.
type configFlags struct {
	path    string
	envFile string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "config", "c", "wayfare.yaml", "path to Wayfare config file")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "optional .env file with WAYFARE_* overrides")
}

func (f *configFlags) load() (*config.Config, error) {
	if err := config.LoadEnvFile(f.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// connectFromConfig loads the config and opens the configured store.
func connectFromConfig(f *configFlags) (*config.Config, *gorm.DB, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s store: %w", cfg.Database.Driver, err)
	}
	return cfg, gormDB, nil
}

func newManager(cfg *config.Config, gormDB *gorm.DB) *booking.Manager {
	return booking.NewManager(gormDB, booking.ManagerOpts{Tiers: cfg.Tiers})
}

func newMessages(cfg *config.Config, gormDB *gorm.DB, hub *realtime.Hub) *messaging.Service {
	return messaging.NewService(gormDB, messaging.ServiceOpts{
		Hub:           hub,
		TTL:           cfg.Chat.TTL,
		EnforceExpiry: cfg.Chat.EnforceExpiry,
	})
}

// partyFlag adds the required --as flag naming the acting party.
func partyFlag(cmd *cobra.Command, as *string) {
	cmd.Flags().StringVar(as, "as", "", "party id to act as (required)")
	cmd.MarkFlagRequired("as")
}
