package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/config"
	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/easeaico/brain-agent/internal/vectorstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *cli) contextCmd() *cobra.Command {
	var (
		maxTokens  int
		skipErrors bool
		enforce    bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Print the brain context for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			bc := a.loader.LoadContext(cmd.Context(), query, nil, brain.LoadOptions{
				MaxTokens:     maxTokens,
				SkipErrors:    skipErrors,
				EnforceBudget: enforce,
			})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(bc)
			}
			_, err = fmt.Fprintln(out, brain.FormatContext(bc))
			return err
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", brain.DefaultMaxTokens, "context token budget")
	cmd.Flags().BoolVar(&skipErrors, "skip-errors", false, "do not look up known error solutions")
	cmd.Flags().BoolVar(&enforce, "enforce-budget", false, "drop relevant memories until the estimate fits max-tokens")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw context as JSON")
	return cmd
}

// runMigrations brings the configured backend's schema up to date.
func runMigrations(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	switch cfg.DBType {
	case config.DBPostgres:
		if err := memory.MigratePostgres(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
	case config.DBSQLite:
		s, err := memory.NewSQLiteStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.InitSchema(ctx); err != nil {
			return err
		}
	case config.DBQdrant:
		client := vectorstore.NewClient(cfg.QdrantURL, cfg.QdrantAPIKey)
		store := memory.NewQdrantStore(client, cfg.QdrantCollection, embeddingDimension(cfg))
		if err := store.EnsureCollections(ctx); err != nil {
			return err
		}
	}
	logger.Info("schema up to date", zap.String("db_type", cfg.DBType))
	return nil
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return runMigrations(cmd.Context(), cfg, c.logger)
		},
	}
}

func (c *cli) migrateQdrantCmd() *cobra.Command {
	var (
		collection string
		batch      int
	)
	cmd := &cobra.Command{
		Use:   "migrate-qdrant",
		Short: "Copy a legacy Qdrant collection into the SQL store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.DBType == config.DBQdrant {
				return errors.New("migrate-qdrant needs a postgres or sqlite DB_TYPE as the target")
			}
			if cfg.QdrantURL == "" {
				return errors.New("QDRANT_URL is required")
			}

			ctx := cmd.Context()
			target, err := openStore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer target.Close()

			userID := cfg.UserID
			if userID == "" {
				userID = "default"
			}
			stats, err := (&memory.QdrantMigration{
				Client:     vectorstore.NewClient(cfg.QdrantURL, cfg.QdrantAPIKey),
				Collection: collection,
				Target:     target,
				ProjectID:  cfg.ProjectID,
				UserID:     userID,
				BatchSize:  batch,
				Logger:     c.logger,
			}).Run(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrated %d of %d points (%d failed)\n", stats.Migrated, stats.Total, stats.Failed)
			return err
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "brain_memory", "source Qdrant collection")
	cmd.Flags().IntVar(&batch, "batch", 100, "points per scroll page")
	return cmd
}

func (c *cli) envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Report which environment variables are set",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := config.EnvReport(os.LookupEnv)
			out := cmd.OutOrStdout()
			for _, v := range report {
				mark := "✗"
				if v.Set {
					mark = "✓"
				}
				kind := "optional"
				if v.Required {
					kind = "required"
				}
				fmt.Fprintf(out, "%s %-22s %s\n", mark, v.Name, kind)
			}
			if missing := config.MissingRequired(report); len(missing) > 0 {
				return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}
