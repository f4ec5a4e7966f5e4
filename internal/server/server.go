// Package server runs the HTTP listener next to the background workers and
// shuts both down in order.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dmitrymomot/mailqueue/pkg/logger"
)

const (
	defaultAddr              = ":8080"
	defaultShutdownTimeout   = 30 * time.Second
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 5 * time.Minute
	defaultIdleTimeout       = 60 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultMaxHeaderBytes    = 1 << 20
)

// Hook runs during startup or shutdown.
type Hook func(context.Context) error

// Config configures Run.
type Config struct {
	Handler         http.Handler
	Logger          *slog.Logger
	Addr            string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	// Run in order before the listener accepts requests.
	StartupHooks []Hook
	// Run in order after the listener stopped.
	ShutdownHooks []Hook
	// Receives the bound address; useful with port 0.
	OnListen func(addr net.Addr)
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.NewNope()
	}
}

// Run serves until ctx is done, then shuts down gracefully. Shutdown hooks
// run even when a startup hook failed, so partially started workers stop.
func Run(ctx context.Context, cfg Config) error {
	cfg.defaults()
	log := cfg.Logger

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cfg.Handler,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	for _, hook := range cfg.StartupHooks {
		if err := hook(ctx); err != nil {
			return errors.Join(err, shutdown(cfg, nil))
		}
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return errors.Join(err, shutdown(cfg, nil))
	}
	if cfg.OnListen != nil {
		cfg.OnListen(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	return errors.Join(serveErr, shutdown(cfg, srv))
}

func shutdown(cfg Config, srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, hook := range cfg.ShutdownHooks {
		if err := hook(ctx); err != nil {
			errs = append(errs, err)
			cfg.Logger.Error("shutdown hook failed", slog.Any("error", err))
		}
	}

	if len(errs) > 0 {
		cfg.Logger.Error("shutdown completed with errors")
		return errors.Join(errs...)
	}
	cfg.Logger.Info("shutdown completed")
	return nil
}
