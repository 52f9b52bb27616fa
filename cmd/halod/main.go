package main

import (
	"context"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/halo-research/halo/config"
	"github.com/halo-research/halo/internal/agent"
	"github.com/halo-research/halo/internal/server"
	"github.com/halo-research/halo/internal/store"
	"github.com/halo-research/halo/provider/llm"
	"github.com/halo-research/halo/tools/webscrape"
)

func main() {
	root := &cobra.Command{
		Use:   "halod",
		Short: "Halo research graph service",
	}
	root.AddCommand(serveCMD(), migrateCMD(), agentCMD())
	if err := root.Execute(); err != nil {
		log.Fatalf("halod: %v", err)
	}
}

func serveCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return server.Run(cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config)")
	return cmd
}

func migrateCMD() *cobra.Command {
	var cfgPath, dir, direction string
	var steps int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return server.Migrate(dir, cfg.Databases.Postgres.DSN(), direction, steps)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file")
	cmd.Flags().StringVar(&dir, "dir", "file://migrations", "migrations source")
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return cmd
}

func agentCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "agent <project-id>",
		Short: "Run one pipeline cycle for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			st, err := store.NewWithDSN(ctx, cfg.Databases.Postgres.DSN())
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer st.DB.Close()
			llmClient, err := llm.New(cfg.Providers.LLM)
			if err != nil {
				return err
			}
			scraper := webscrape.New(cfg.Providers.Firecrawl)
			logger := log.New(os.Stderr, "[ORCH] ", log.LstdFlags)
			orch := agent.New(cfg, st, scraper, llmClient, nil, logger)
			return orch.Run(ctx, args[0])
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file")
	return cmd
}
