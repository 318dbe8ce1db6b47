package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/wayfare/internal/api"
	"github.com/zulandar/wayfare/internal/config"
	"github.com/zulandar/wayfare/internal/db"
	"github.com/zulandar/wayfare/internal/identity"
	"github.com/zulandar/wayfare/internal/realtime"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var (
		flags  configFlags
		port   int
		memory bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serves the booking and chat API, including the per-booking event stream.

With a realtime.amqp_url configured, message changes are relayed through
RabbitMQ so that several API processes share one event stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &flags, port, memory)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&memory, "memory", false, "use a throwaway in-memory SQLite store")
	return cmd
}

func runServe(cmd *cobra.Command, flags *configFlags, port int, memory bool) error {
	out := cmd.OutOrStdout()

	var (
		cfg    *config.Config
		gormDB *gorm.DB
		err    error
	)
	if memory {
		if err := config.LoadEnvFile(flags.envFile); err != nil {
			return err
		}
		cfg = config.Default()
		if gormDB, err = db.OpenMemory(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Using in-memory store; data is lost on exit")
	} else if cfg, gormDB, err = connectFromConfig(flags); err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	hub := realtime.NewHub(cfg.Realtime.Buffer)
	defer hub.Close()

	if cfg.Realtime.AMQPURL != "" {
		relay, err := realtime.NewRelay(cfg.Realtime.AMQPURL, cfg.Realtime.Exchange, hub)
		if err != nil {
			return err
		}
		defer relay.Close()
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Printf("serve: relay stopped: %v", err)
			}
		}()
		fmt.Fprintf(out, "Relaying changes through exchange %s\n", cfg.Realtime.Exchange)
	}

	deps := api.Deps{
		Bookings: newManager(cfg, gormDB),
		Messages: newMessages(cfg, gormDB, hub),
		Hub:      hub,
		TTL:      cfg.Chat.TTL,
	}
	if cfg.Server.JWTSecret != "" {
		if deps.Verifier, err = identity.NewVerifier(cfg.Server.JWTSecret); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "No server.jwt_secret set; trusting the %s header\n", api.PartyHeader)
	}

	return api.Start(ctx, api.StartOpts{Deps: deps, Port: cfg.Server.Port, Out: out})
}
