package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Serve sweeps the scratch area, then accepts connections on ln until ctx is
// done. Shutdown stops accepting, lets in-flight requests finish within the
// configured shutdown timeout, and waits for their runs to drain.
func (a *PhotoboxApp) Serve(ctx context.Context, ln net.Listener) error {
	if n, err := a.Sweep(); err != nil {
		a.logger.Warn("startup sweep incomplete", "removed", n, "error", err)
	} else if n > 0 {
		a.logger.Info("startup sweep", "removed", n)
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Runs outlive the signal that starts shutdown; Shutdown bounds them.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return a.service.Drain(sctx)
	})

	return g.Wait()
}

// ListenAndServe listens on the configured address and calls Serve.
func (a *PhotoboxApp) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Server.Listen, err)
	}
	return a.Serve(ctx, ln)
}
