package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/hedgefund/internal/config"
	"github.com/elys-network/hedgefund/internal/state"
)

func serveCmd() *cobra.Command {
	var noKeeper bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the vault node: runtime, keeper and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(); err != nil {
				return err
			}
			log.Info().Msg("Hedge fund vault node starting...")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if config.DBHost != "" {
				dbCfg := state.DBConfig{
					Host: config.DBHost, Port: config.DBPort,
					User: config.DBUser, Password: config.DBPassword,
					DBName: config.DBName, SSLMode: config.DBSSLMode,
				}
				if err := state.InitDB(dbCfg); err != nil {
					return err
				}
				defer state.CloseDB()
				if err := state.EnsureSchema(); err != nil {
					return err
				}
			} else {
				log.Warn().Msg("DB_HOST not set, running without persistence")
			}

			n, err := newNode(ctx)
			if err != nil {
				return err
			}

			if !noKeeper {
				if err := n.keeper.Start(ctx); err != nil {
					return err
				}
				defer n.keeper.Stop()
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting vault API")
				errCh <- n.web.Start()
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("Shutdown signal received")
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := n.web.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Web server shutdown failed")
			}
			if !noKeeper {
				n.keeper.Stop()
			}
			if n.recorder != nil {
				if err := n.recorder.Persist(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Final state persist failed")
				}
			}
			log.Info().Msg("Hedge fund vault node stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noKeeper, "no-keeper", false, "do not schedule autonomous rebalance cycles")
	return cmd
}
