package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/pkg/config"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	debug      bool

	cfg    *config.Config
	logger *zap.Logger
}

// RootCmd returns the bankwatch command tree.
func RootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "bankwatch",
		Short: "Find bank transaction SMS in an inbox and watch for new ones",
		Long: `bankwatch reads an SMS inbox (an Android mmssms.db, a Postgres mirror or
memory), picks out the messages that look like bank transactions and can
notify you about new ones as they arrive.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to config.yaml")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(messagesCmd(a))
	cmd.AddCommand(bankCmd(a))
	cmd.AddCommand(watchCmd(a))
	cmd.AddCommand(permissionCmd(a))
	cmd.AddCommand(botCmd(a))

	return cmd
}

func (a *app) init() error {
	var (
		logger *zap.Logger
		err    error
	)
	if a.debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
