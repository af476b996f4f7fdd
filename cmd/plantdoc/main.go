package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rahul/plantdoc/internal/agent"
	"github.com/rahul/plantdoc/internal/gateway"
	"github.com/rahul/plantdoc/internal/observability"
	"github.com/rahul/plantdoc/internal/tools"
	"github.com/rahul/plantdoc/pkg/config"
	"github.com/spf13/cobra"
)

func main() {
	// Route all log output through the terminal mutex so it never
	// interleaves with a review prompt.
	log.SetOutput(observability.NewTermWriter(os.Stderr))

	var cfgPath string
	var gateMode string

	root := &cobra.Command{
		Use:           "plantdoc",
		Short:         "Human-gated diagnostics over plant sensor data and technical manuals",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "plantdoc.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&gateMode, "gate", "", "review gate: console, telegram, discord or auto (overrides config)")

	// withApp loads config, builds the app and hands it a signal-aware context.
	withApp := func(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if gateMode != "" {
				cfg.Gate.Mode = gateMode
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return fn(ctx, a)
		}
	}

	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run one diagnostic query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				gate, closeGate, err := a.gate(a.cfg.Gate.Mode)
				if err != nil {
					return err
				}
				defer closeGate()
				return a.runOnce(ctx, a.orchestrator(gate), strings.Join(args, " "), cmd.OutOrStdout())
			})(cmd, args)
		},
	}

	repl := &cobra.Command{
		Use:   "repl",
		Short: "Interactive console session",
		RunE: withApp(func(ctx context.Context, a *app) error {
			if observability.IsInteractive(os.Stdout) {
				observability.PrintBanner(os.Stdout)
			}
			console := gateway.NewConsoleMessenger(os.Stdin, os.Stdout)
			defer console.Close()

			orch := a.orchestrator(gateway.NewChatGate(console, a.cfg.Gate.Timeout))
			srv := &gateway.Server{
				Messenger: console,
				Run:       renderRun(orch),
				Greeting:  "Ask about any unit's sensor history or its manuals. Type 'exit' to leave.",
				ExitWords: []string{"exit", "quit"},
			}
			return srv.Serve(ctx)
		}),
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Answer questions over Telegram or Discord",
		RunE: withApp(func(ctx context.Context, a *app) error {
			mode := a.cfg.Gate.Mode
			if mode != "telegram" && mode != "discord" {
				return fmt.Errorf("serve needs --gate telegram or --gate discord, got %q", mode)
			}
			m, err := a.messenger(mode)
			if err != nil {
				return err
			}
			defer m.Close()

			// Chat runs and watches share one messenger: one at a time.
			var turn sync.Mutex
			orch := a.orchestrator(gateway.NewChatGate(m, a.cfg.Gate.Timeout))
			sched := agent.NewScheduler(a.unattended(), a.store, m)
			sched.Turn = &turn
			go sched.Start(ctx)
			go heartbeat(ctx, 5*time.Minute)

			log.Printf("[Gateway] serving on %s", mode)
			srv := &gateway.Server{
				Messenger: m,
				Run:       renderRun(orch),
				Greeting:  "PlantDoc is online. Send a question to start a diagnostic run.",
				Turn:      &turn,
			}
			return srv.Serve(ctx)
		}),
	}

	var limit int
	runs := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent runs, or the steps of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				defer out.Flush()

				if len(args) == 1 {
					steps, err := a.store.RunSteps(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(out, "#\tKIND\tSTATUS\tSTEP")
					for i, st := range steps {
						status := "ok"
						if !st.Succeeded {
							status = "failed: " + st.Error
						}
						fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", i+1, st.Step.Kind, status, st.Step.Description)
					}
					return nil
				}

				list, err := a.store.RecentRuns(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "ID\tSTARTED\tPHASE\tSTEPS\tQUERY")
				for _, r := range list {
					phase := r.Phase
					if r.AbortKind != "" {
						phase += " (" + r.AbortKind + ")"
					}
					fmt.Fprintf(out, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), phase, r.Steps, r.Query)
				}
				return nil
			})(cmd, args)
		},
	}
	runs.Flags().IntVar(&limit, "limit", 20, "number of runs to list")

	var pageURL string
	index := &cobra.Command{
		Use:   "index",
		Short: "Index the manual directory, or one manual page by URL",
		RunE: withApp(func(ctx context.Context, a *app) error {
			if a.cfg.Manual.Backend != "keyword" {
				return fmt.Errorf("indexing is only supported for the keyword backend")
			}
			idx, err := a.keywordIndex()
			if err != nil {
				return err
			}
			if pageURL != "" {
				doc, err := tools.FetchManualPage(ctx, pageURL)
				if err != nil {
					return err
				}
				n, err := idx.AddDocument(doc)
				if err != nil {
					return err
				}
				fmt.Printf("Indexed %d passages from %s\n", n, doc.Title)
				return nil
			}
			n, err := idx.IndexDir(a.cfg.Manual.Dir)
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %d passages from %s\n", n, a.cfg.Manual.Dir)
			return nil
		}),
	}
	index.Flags().StringVar(&pageURL, "url", "", "fetch and index a single manual page")

	root.AddCommand(ask, repl, serve, runs, index, watchCommand(withApp))

	if err := root.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func watchCommand(withApp func(func(context.Context, *app) error) func(*cobra.Command, []string) error) *cobra.Command {
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Manage scheduled diagnostic queries",
	}

	var every time.Duration
	add := &cobra.Command{
		Use:   "add <question>",
		Short: "Schedule a query (one-shot unless --every is set)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				id, err := a.store.AddWatch(ctx, strings.Join(args, " "), every)
				if err != nil {
					return err
				}
				fmt.Printf("Watch #%d scheduled\n", id)
				return nil
			})(cmd, args)
		},
	}
	add.Flags().DurationVar(&every, "every", 0, "repeat interval, e.g. 1h")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active watches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				watches, err := a.store.ListWatches(ctx)
				if err != nil {
					return err
				}
				out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				defer out.Flush()
				fmt.Fprintln(out, "ID\tEVERY\tLAST RUN\tQUERY")
				for _, w := range watches {
					every, last := "once", "never"
					if w.Interval > 0 {
						every = w.Interval.String()
					}
					if !w.LastRun.IsZero() {
						last = w.LastRun.Local().Format("2006-01-02 15:04")
					}
					fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", w.ID, every, last, w.Query)
				}
				return nil
			})(cmd, args)
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a watch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid watch id %q", args[0])
			}
			return withApp(func(ctx context.Context, a *app) error {
				return a.store.DeleteWatch(ctx, id)
			})(cmd, args)
		},
	}

	var once bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Run due watches unattended",
		RunE: withApp(func(ctx context.Context, a *app) error {
			var notifier agent.Notifier = stdoutNotifier{}
			if mode := a.cfg.Gate.Mode; mode == "telegram" || mode == "discord" {
				m, err := a.messenger(mode)
				if err != nil {
					return err
				}
				defer m.Close()
				notifier = m
			}
			sched := agent.NewScheduler(a.unattended(), a.store, notifier)
			if once {
				n := sched.RunDue(ctx)
				log.Printf("[Scheduler] ran %d watch(es)", n)
				return nil
			}
			go heartbeat(ctx, 5*time.Minute)
			sched.Start(ctx)
			return nil
		}),
	}
	run.Flags().BoolVar(&once, "once", false, "run what is due now and exit")

	watch.AddCommand(add, list, rm, run)
	return watch
}

// unattended builds an orchestrator for runs nobody is watching live.
func (a *app) unattended() *agent.Orchestrator {
	return a.orchestrator(agent.AutoGate{MaxIterations: a.cfg.Orchestrator.MaxIterations})
}

func renderRun(orch *agent.Orchestrator) func(context.Context, string) string {
	return func(ctx context.Context, query string) string {
		return orch.Run(ctx, query).Render()
	}
}

type stdoutNotifier struct{}

func (stdoutNotifier) Send(ctx context.Context, text string) error {
	_, err := fmt.Println(text)
	return err
}

func heartbeat(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("[Status] %s", observability.StatusLine())
		}
	}
}
