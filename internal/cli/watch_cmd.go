package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/bot"
	"github.com/xaenox/bankwatch/internal/notify"
	"github.com/xaenox/bankwatch/internal/permission"
)

func watchCmd(a *app) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print new bank transactions as they arrive",
		Long: `Watch the spool directory for arriving SMS and poll the message store,
printing every new bank transaction once. Notifications also go to Telegram
and email when those are configured.

Examples:
  bankwatch watch
  bankwatch watch --for 10m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			var tg notify.TelegramSender
			if a.cfg.Telegram.Token != "" {
				api, err := bot.NewAPI(a.cfg.Telegram.Token)
				if err != nil {
					return err
				}
				tg = api
			}

			sink := buildSinks(a.cfg, cmd.OutOrStdout(), tg, a.logger)
			prompter := permission.TerminalPrompter{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
			p, err := a.assemble(prompter, sink)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := ensurePermission(ctx, p.plugin); err != nil {
				a.logger.Warn("Watching without message access; only live arrivals will be reported", zap.Error(err))
			}

			if _, err := p.plugin.StartListening(ctx); err != nil {
				return fmt.Errorf("failed to start listening: %w", err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Watching for bank transactions. Press Ctrl+C to stop.")

			<-ctx.Done()
			p.plugin.StopListening()
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (default: until interrupted)")
	return cmd
}

func permissionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "permission",
		Short: "Show or request message access",
		Long: `Show whether bankwatch may read the message store. In prompt mode
(permission.mode: prompt) this asks on the terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.queryPipeline(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			if p.plugin.CheckPermission(ctx).Granted {
				fmt.Fprintf(out, "Message access: %s\n", bankColor.Sprint("granted"))
				return nil
			}

			res, err := p.plugin.RequestPermission(ctx)
			if err != nil {
				return err
			}
			if res.Granted {
				fmt.Fprintf(out, "Message access: %s\n", bankColor.Sprint("granted"))
			} else {
				fmt.Fprintf(out, "Message access: %s\n", alertColor.Sprint("denied"))
			}
			return nil
		},
	}
}

func botCmd(a *app) *cobra.Command {
	var listen bool

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		Long: `Run a Telegram bot that answers /messages and /bank, asks for message
access with inline buttons and pushes new transactions to telegram.chat_id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Telegram.Token == "" {
				return fmt.Errorf("telegram.token (or TELEGRAM_TOKEN) is required")
			}
			if a.cfg.Telegram.ChatID == 0 {
				a.logger.Warn("telegram.chat_id is not set; the bot answers every chat and pushes nowhere")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			api, err := bot.NewAPI(a.cfg.Telegram.Token)
			if err != nil {
				return err
			}

			prompter := bot.NewPrompter(api, a.cfg.Telegram.ChatID, a.logger)
			sink := buildSinks(a.cfg, nil, api, a.logger)
			p, err := a.assemble(prompter, sink)
			if err != nil {
				return err
			}
			defer p.Close()

			b := bot.New(api, p.plugin, prompter, a.cfg.Telegram.ChatID, a.logger)
			defer p.plugin.StopListening()
			if listen {
				if _, err := p.plugin.StartListening(ctx); err != nil {
					return fmt.Errorf("failed to start listening: %w", err)
				}
			}
			return b.Run(ctx, api)
		},
	}

	cmd.Flags().BoolVar(&listen, "listen", false, "Start listening immediately instead of waiting for /listen")
	return cmd
}
