// Package api exposes bookings and chat over HTTP with gin, including a
// server-sent event stream of per-viewer message changes.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/wayfare/internal/booking"
	"github.com/zulandar/wayfare/internal/identity"
	"github.com/zulandar/wayfare/internal/messaging"
	"github.com/zulandar/wayfare/internal/realtime"
)

// Deps are the services the handlers call.
type Deps struct {
	Bookings *booking.Manager
	Messages *messaging.Service
	Hub      *realtime.Hub
	Verifier *identity.Verifier // nil trusts the X-Party-ID header
	TTL      time.Duration
	Now      func() time.Time
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Deps
	Port int
	Out  io.Writer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, &handlers{Deps: d})
	return router
}

// Start launches the API server. It blocks until ctx is cancelled, then shuts
// down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Bookings == nil || opts.Messages == nil {
		return fmt.Errorf("api: bookings and messages services are required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts.Deps),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Wayfare API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
