package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/ytfetch/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve starts the HTTP API, the notification bridge and the proxy refresher, and blocks until
// interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = int(port)
	}

	st, err := r.build(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if st.refresher != nil {
		go st.refresher.Run(ctx)
	}

	handler := r.newRouter(st)
	srv := server.New(r.config.Server.Addr(), handler, r.logger)
	r.logger.Info("serving downloads", "addr", srv.Addr(), "root", r.config.Downloads.Root)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// newRouter mounts the API on a router with recovery, logging and CORS middleware.
func (r *Runner) newRouter(st *stack) *server.BasicRouter {
	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger), server.Logging(r.logger), server.CORS())

	opts := server.APIOpts{
		Tasks:   st.orch,
		Live:    st.bridge,
		History: st.repo,
		Logger:  r.logger,
	}
	if st.proxies != nil {
		opts.Proxies = st.proxies
		opts.Refresher = st.refresher
	}
	server.NewAPI(opts).Register(router)
	return router
}
