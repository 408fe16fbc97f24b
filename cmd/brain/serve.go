package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/easeaico/brain-agent/internal/api"
	"github.com/easeaico/brain-agent/internal/mcpserver"
	"github.com/easeaico/brain-agent/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	var (
		addr    string
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if migrate {
				cfg, err := c.loadConfig()
				if err != nil {
					return err
				}
				if err := runMigrations(ctx, cfg, c.logger); err != nil {
					return err
				}
			}

			a, err := c.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			srv := &http.Server{
				Addr: addr,
				Handler: api.NewRouter(api.Deps{
					Dispatcher:     a.dispatcher,
					Chat:           service.NewChatService(a.loader, a.router, a.toolNames(), c.logger),
					Loader:         a.loader,
					Qdrant:         a.qdrant,
					APIToken:       a.cfg.APIToken,
					RateLimitRPS:   a.cfg.RateLimitRPS,
					RateLimitBurst: a.cfg.RateLimitBurst,
					Logger:         c.logger,
				}),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 120 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				c.logger.Info("brain server starting", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			c.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				c.logger.Error("shutdown error", zap.Error(err))
				return err
			}
			c.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR or :8080)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before serving")
	return cmd
}

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the brain tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c.logger.Info("mcp server starting on stdio")
			return mcpserver.New(a.dispatcher, c.logger).ServeStdio()
		},
	}
}
