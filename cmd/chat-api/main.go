package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/PabloGalante/gemini-chat/internal/adapters/http"
	"github.com/PabloGalante/gemini-chat/internal/app/conversation"
	"github.com/PabloGalante/gemini-chat/internal/app/history"
	"github.com/PabloGalante/gemini-chat/internal/config"
	"github.com/PabloGalante/gemini-chat/internal/domain"
	"github.com/PabloGalante/gemini-chat/internal/observability"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "chat-api",
		Short:        "Multi-turn Gemini chat with persisted session history",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configFile)
			},
		},
		&cobra.Command{
			Use:   "describe-table",
			Short: "Print the status of the history table",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withHistory(cmd.Context(), configFile, func(ctx context.Context, svc *history.Service) error {
					status, err := svc.DescribeTable(ctx)
					if err != nil {
						return err
					}
					if !status.Found {
						return fmt.Errorf("table %s not found", svc.Table())
					}
					return printJSON(cmd, map[string]string{"table": status.Table, "status": status.Status})
				})
			},
		},
		&cobra.Command{
			Use:   "get-item <session_id>",
			Short: "Print the stored history of a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withHistory(cmd.Context(), configFile, func(ctx context.Context, svc *history.Service) error {
					records, err := svc.GetSessionHistory(ctx, domain.SessionID(args[0]))
					if err != nil {
						return err
					}
					blob, err := domain.EncodeHistory(records)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), blob)
					return err
				})
			},
		},
	)
	return root
}

func loadConfig(file string) (*config.Config, error) {
	cfg, err := config.Load(file)
	if err != nil {
		return nil, err
	}
	if err := observability.Configure(os.Stdout, cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withHistory(ctx context.Context, file string, fn func(context.Context, *history.Service) error) error {
	cfg, err := loadConfig(file)
	if err != nil {
		return err
	}
	d, err := buildDeps(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer d.close()

	return fn(ctx, history.NewService(d.store, cfg.Store.Table))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServe(parent context.Context, file string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(file)
	if err != nil {
		return err
	}
	log := observability.Logger()

	d, err := buildDeps(ctx, cfg, true)
	if err != nil {
		log.Error("startup failed", "error", err)
		return err
	}
	defer d.close()

	chatSvc := conversation.NewService(d.store, d.chats, d.locker)
	histSvc := history.NewService(d.store, cfg.Store.Table)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      httpadapter.NewServer(chatSvc, histSvc, d.gen),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("chat api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		return err
	}
	return nil
}
