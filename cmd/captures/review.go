package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/smart-captures/internal/cli"
	"github.com/Veraticus/smart-captures/internal/config"
	"github.com/Veraticus/smart-captures/internal/ledger"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/service"
	"github.com/Veraticus/smart-captures/internal/sms"
	"github.com/Veraticus/smart-captures/internal/tui"
)

func pendingCmd() *cobra.Command {
	var (
		all     bool
		clearIt bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List candidates waiting for review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			q, err := a.loadedQueue(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if clearIt {
				if !yes {
					ok, err := cli.Confirm(ctx, cli.NewNonBlockingReader(cmd.InOrStdin()), out,
						fmt.Sprintf("Remove all %d candidate(s), including reviewed ones?", len(q.List())))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, cli.FormatInfo("Nothing removed"))
						return nil
					}
				}
				if err := q.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, cli.FormatSuccess("Queue cleared"))
				return nil
			}

			items := q.ListPending()
			if all {
				items = q.List()
			}
			if len(items) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No pending transactions"))
				return nil
			}
			return cli.RenderCandidates(out, items)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include added and ignored candidates")
	cmd.Flags().BoolVar(&clearIt, "clear", false, "remove every candidate from the queue")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func acceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <id>",
		Short: "Add a pending candidate to the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			q, err := a.loadedQueue(ctx)
			if err != nil {
				return err
			}
			w, err := a.workflow(ctx, q)
			if err != nil {
				return err
			}

			txn, err := w.Accept(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added %s ₹%s on %s as %s",
				txn.Name, txn.Amount.StringFixed(2), txn.Date.Local().Format("Jan 2"), txn.Category)))
			return nil
		},
	}
}

func ignoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ignore <id>",
		Aliases: []string{"reject"},
		Short:   "Dismiss a pending candidate",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			q, err := a.loadedQueue(ctx)
			if err != nil {
				return err
			}
			w, err := a.workflow(ctx, q)
			if err != nil {
				return err
			}

			if err := w.Reject(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Ignored "+args[0]))
			return nil
		},
	}
}

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Review pending candidates interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			q, err := a.loadedQueue(ctx)
			if err != nil {
				return err
			}
			w, err := a.workflow(ctx, q)
			if err != nil {
				return err
			}

			added, ignored, err := tui.Run(ctx, w, q)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("Added %d, ignored %d, %d still pending", added, ignored, len(q.ListPending()))))
			return nil
		},
	}
}

func ledgerCmd() *cobra.Command {
	var (
		limit  int
		userID string
		since  string
	)

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List confirmed transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			l, err := a.openLedger(ctx)
			if err != nil {
				return err
			}

			filter := service.TransactionFilter{Limit: limit, UserID: userID}
			if filter.UserID == "" {
				filter.UserID = a.cfg.Ledger.UserID
			}
			if since != "" {
				start, err := time.ParseInLocation("2006-01-02", since, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --since date %q: %w", since, err)
				}
				filter.StartDate = &start
			}

			txns, err := l.ListTransactions(ctx, filter)
			if err != nil {
				return err
			}
			if len(txns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No transactions yet"))
				return nil
			}
			return cli.RenderTransactions(cmd.OutOrStdout(), txns)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows to show (0 for all)")
	cmd.Flags().StringVar(&userID, "user", "", "owner to list (default: ledger.user_id)")
	cmd.Flags().StringVar(&since, "since", "", "only transactions on or after this date (YYYY-MM-DD)")
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Show the amount and category suggested for a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			c, err := a.classifier()
			if err != nil {
				return err
			}

			text := args[0]
			amount := sms.ParseAmount(text)
			suggestion := c.Classify(ctx, text, amount)

			table := cli.NewTable("Field", "Value")
			if amount != nil {
				table.Row("Amount", "₹"+amount.StringFixed(2))
			} else {
				table.Row("Amount", "none found")
			}
			if bank := sms.ParseBank(text); bank != "" {
				table.Row("Bank", bank)
			}
			category := suggestion.Category
			if category == "" {
				category = model.CategoryMisc
			}
			table.Row("Category", category)
			if suggestion.Source != "" {
				table.Row("Source", fmt.Sprintf("%s (%.2f)", suggestion.Source, suggestion.Confidence))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), table.Render())
			return err
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store and ledger schemas",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			// openApp migrates the SQLite store.
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if a.sqlite != nil {
				fmt.Fprintln(out, cli.FormatSuccess("SQLite store is up to date: "+a.sqlite.Path()))
			}

			if a.cfg.Ledger.Backend == config.BackendPostgres {
				l, err := a.openLedger(ctx)
				if err != nil {
					return err
				}
				pg, ok := l.(*ledger.Postgres)
				if !ok {
					return fmt.Errorf("unexpected ledger type %T", l)
				}
				if err := pg.EnsureSchema(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, cli.FormatSuccess("Postgres ledger schema is up to date"))
			}
			return nil
		},
	}
}
