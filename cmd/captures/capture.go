package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/smart-captures/internal/capture"
	"github.com/Veraticus/smart-captures/internal/cli"
	"github.com/Veraticus/smart-captures/internal/engine"
	"github.com/Veraticus/smart-captures/internal/metrics"
	"github.com/Veraticus/smart-captures/internal/model"
)

func receiveCmd() *cobra.Command {
	var (
		body   string
		sender string
		at     int64
	)

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Hand an incoming SMS to the relay",
		Long: `Receive stores an incoming SMS in the relay for the next sync.

With --body the message comes from flags. Otherwise each line of stdin is read
as a JSON object with body, originatingAddress and timestamp fields.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			receiver := capture.NewReceiver(a.relay(), a.clock, a.logger)

			if body != "" {
				payload := map[string]any{"body": body, "originatingAddress": sender}
				if at > 0 {
					payload["timestamp"] = at
				}
				if !receiver.Deliver(ctx, payload) {
					return fmt.Errorf("message was not accepted")
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Message stored in relay"))
				return nil
			}

			stats, err := capture.NewLineSource(receiver, a.logger).Run(ctx, cmd.InOrStdin())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("Stored %d message(s), skipped %d", stats.Delivered, stats.Skipped)))
			return nil
		},
	}

	cmd.Flags().StringVar(&body, "body", "", "message text")
	cmd.Flags().StringVar(&sender, "from", "", "originating address")
	cmd.Flags().Int64Var(&at, "timestamp", 0, "receipt time in epoch milliseconds (default: now)")
	return cmd
}

func syncCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest messages waiting in the relay",
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
			pipeline, err := a.pipeline(q)
			if err != nil {
				return err
			}

			var progress func(done, total int)
			if !quiet {
				progress = newProgress(cmd, "Ingesting messages")
			}

			result := pipeline.DrainAndIngest(ctx, a.relay(), progress)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatBatch(result))
			if len(result.Queued) > 0 {
				return cli.RenderCandidates(out, result.Queued)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

// newProgress returns a progress callback that creates its bar on first use,
// once the batch size is known.
func newProgress(cmd *cobra.Command, description string) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)
		}
		_ = bar.Set(done)
	}
}

func watchCmd() *cobra.Command {
	var stdin bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Capture messages live and drain the relay on an interval",
		Long: `Watch starts the capture engine: it waits for the store, ingests anything left
in the relay, then (when live capture is allowed) processes new messages as they
arrive. Messages come from NATS when capture.nats_url is set, and from stdin
JSON lines with --stdin. Press Ctrl+C to stop.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx := handler.HandleInterrupts(cmd.Context())

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			q := a.queue()
			pipeline, err := a.pipeline(q)
			if err != nil {
				return err
			}

			r := a.relay()
			receiver := capture.NewReceiver(r, a.clock, a.logger)
			eng := engine.New(a.engineConfig(), engine.Deps{
				Relay:       r,
				Queue:       q,
				Pipeline:    pipeline,
				Receiver:    receiver,
				Hub:         capture.NewHub(capture.DefaultSubscriptionBuffer, a.logger),
				Preferences: a.preferences(),
				Permissions: a.permissions(),
				Logger:      a.logger,
			})

			out := cmd.OutOrStdout()
			result, err := eng.Start(ctx)
			if err != nil {
				return err
			}
			defer eng.Stop()

			fmt.Fprintln(out, cli.FormatBatch(result))
			if eng.Live() {
				fmt.Fprintln(out, cli.FormatInfo("Live capture is on"))
			} else {
				fmt.Fprintln(out, cli.FormatWarning("Live capture is off, messages are picked up on each resume"))
			}

			var natsSource *capture.NATSSource
			if url := a.cfg.Capture.NATSURL; url != "" {
				conn, err := capture.ConnectNATS(url)
				if err != nil {
					return err
				}
				defer conn.Close()
				natsSource = capture.NewNATSSource(conn, a.cfg.Capture.NATSSubject, receiver, a.logger)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return eng.Run(gctx, a.cfg.Engine.ResumeInterval)
			})
			if natsSource != nil {
				g.Go(func() error {
					return natsSource.Run(gctx)
				})
			}

			if addr := a.cfg.Metrics.Addr; addr != "" {
				g.Go(func() error {
					return serveMetrics(gctx, addr)
				})
			}

			if stdin {
				// Not part of the group: a blocked stdin read must not hold up shutdown.
				source := capture.NewLineSource(receiver, a.logger)
				go func() {
					if _, err := source.Run(gctx, cmd.InOrStdin()); err != nil && !errors.Is(err, context.Canceled) {
						a.logger.Warn("Stdin source stopped", "error", err)
					}
				}()
			}

			err = g.Wait()
			if handler.WasInterrupted() {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&stdin, "stdin", false, "read JSON message lines from stdin")
	return cmd
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func liveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "live [on|off|status]",
		Short:     "Show or change the live capture preference",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			prefs := a.preferences()
			out := cmd.OutOrStdout()

			action := "status"
			if len(args) == 1 {
				action = args[0]
			}

			switch action {
			case "on", "off":
				if err := prefs.SetLiveCapture(ctx, action == "on"); err != nil {
					return err
				}
				fmt.Fprintln(out, cli.FormatSuccess("Live capture turned "+action))
				return nil
			case "status":
				enabled, set, err := prefs.LiveCapture(ctx)
				if err != nil {
					return err
				}
				if !set {
					enabled = a.cfg.Capture.LiveEnabled
				}
				state := "off"
				if enabled || a.cfg.Capture.ForceLive {
					state = "on"
				}
				origin := "stored preference"
				switch {
				case a.cfg.Capture.ForceLive:
					origin = "forced by config"
				case !set:
					origin = "config default"
				}
				fmt.Fprintf(out, "%s Live capture is %s (%s)\n", cli.InfoIcon, state, origin)
				return nil
			default:
				return fmt.Errorf("unknown action %q, expected on, off or status", action)
			}
		},
	}
	return cmd
}

func relayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Inspect the relay of undelivered messages",
	}

	peek := &cobra.Command{
		Use:   "peek",
		Short: "List messages waiting in the relay without draining them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			msgs, err := a.relay().Peek(ctx)
			if err != nil {
				return err
			}
			return renderMessages(cmd, msgs)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every message waiting in the relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.relay().Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Relay cleared"))
			return nil
		},
	}

	cmd.AddCommand(peek, clearCmd)
	return cmd
}

func renderMessages(cmd *cobra.Command, msgs []model.RawMessage) error {
	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("Relay is empty"))
		return nil
	}
	table := cli.NewTable("Received", "From", "Message")
	for _, m := range msgs {
		table.Row(m.ObservedAt.Local().Format("2006-01-02 15:04"), m.Sender, cli.Truncate(m.Body, 60))
	}
	_, err := fmt.Fprintln(out, table.Render())
	return err
}

func dedupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Inspect the recently processed message history",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "List recent message fingerprints, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			keys := a.history().Snapshot(ctx)
			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No messages processed yet"))
				return nil
			}
			for _, k := range keys {
				fmt.Fprintln(out, cli.Truncate(k, 100))
			}
			fmt.Fprintf(out, "%d of %d\n", len(keys), a.cfg.Ingest.DedupCapacity)
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget processed messages so they can be ingested again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.history().Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("History cleared"))
			return nil
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}
