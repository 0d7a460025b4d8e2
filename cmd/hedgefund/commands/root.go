package commands

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/hedgefund/internal/logger"
)

var (
	envFile  string
	logLevel string
)

// NewRootCommand builds the hedgefund command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "hedgefund",
		Short:         "Pooled vault node splitting deposits across swap and lending venues",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil {
				log.Debug().Str("file", envFile).Msg("No env file loaded, relying on OS environment variables")
			}
			level := logLevel
			if level == "" {
				level = os.Getenv("LOG_LEVEL")
			}
			logger.InitializeWithWriter(level, zerolog.ConsoleWriter{
				Out:        cmd.ErrOrStderr(),
				TimeFormat: "2006-01-02 15:04:05",
			})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default $LOG_LEVEL or info)")

	root.AddCommand(serveCmd(), selectorsCmd(), splitCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		return err
	}
	return nil
}
