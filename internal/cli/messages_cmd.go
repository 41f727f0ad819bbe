package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/xaenox/bankwatch/internal/inbox"
	"github.com/xaenox/bankwatch/internal/permission"
	"github.com/xaenox/bankwatch/internal/retrieval"
)

func messagesCmd(a *app) *cobra.Command {
	var (
		limit int
		since int64
	)

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List recent inbox messages",
		Long: `List the most recent inbox messages, newest first.

Messages that look like bank transactions are marked with ●.

Examples:
  bankwatch messages                     # default limit
  bankwatch messages --limit 20
  bankwatch messages --since 1718420000000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				limit = a.cfg.Retrieval.DefaultLimit
			}
			p, err := a.queryPipeline(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx := cmd.Context()
			if err := ensurePermission(ctx, p.plugin); err != nil {
				return err
			}
			res, err := p.plugin.GetMessages(ctx, inbox.MessagesRequest{Limit: limit, Since: since})
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), res.Messages, p.service.Matches)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of messages (default from retrieval.default_limit)")
	cmd.Flags().Int64Var(&since, "since", 0, "Only messages received after this time (ms since epoch)")
	return cmd
}

func bankCmd(a *app) *cobra.Command {
	var limit, days int

	cmd := &cobra.Command{
		Use:   "bank",
		Short: "List bank transaction messages",
		Long: `List inbox messages from known banks that describe a transaction.

Examples:
  bankwatch bank                # last retrieval.default_days days
  bankwatch bank --days 7 -n 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				limit = a.cfg.Retrieval.DefaultLimit
			}
			if days <= 0 {
				days = a.cfg.Retrieval.DefaultDays
			}
			p, err := a.queryPipeline(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx := cmd.Context()
			if err := ensurePermission(ctx, p.plugin); err != nil {
				return err
			}
			res, err := p.plugin.GetBankMessages(ctx, inbox.BankMessagesRequest{Limit: limit, Days: days})
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), res.Messages, nil)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of messages (default from retrieval.default_limit)")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "How many days back to look (default from retrieval.default_days)")
	return cmd
}

// queryPipeline assembles a pipeline whose permission dialog runs on the
// command's terminal.
func (a *app) queryPipeline(cmd *cobra.Command) (*pipeline, error) {
	prompter := permission.TerminalPrompter{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
	return a.assemble(prompter, nil)
}

// ensurePermission asks for access if it has not been granted yet.
func ensurePermission(ctx context.Context, plugin *inbox.Plugin) error {
	if plugin.CheckPermission(ctx).Granted {
		return nil
	}
	res, err := plugin.RequestPermission(ctx)
	if err != nil {
		return err
	}
	if !res.Granted {
		return retrieval.ErrPermissionDenied
	}
	return nil
}
