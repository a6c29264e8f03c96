package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"cde-sql/internal/auth"
	"cde-sql/internal/cde"
	"cde-sql/internal/config"
	"cde-sql/internal/history"
	"cde-sql/internal/session"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		inlineSQL string
		every     string
	)

	cmd := &cobra.Command{
		Use:   "run [file...]",
		Short: "Run SQL statements as Spark jobs and print the results",
		Long: `Submits each SQL statement as a remote Spark job, waits for it to
finish and prints the parsed result table. Statements come from files given
as arguments or from --sql. Multiple files run concurrently.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inlineSQL == "" && len(args) == 0 {
				return fmt.Errorf("nothing to run: give SQL files as arguments or use --sql")
			}
			if inlineSQL != "" && len(args) > 0 {
				return fmt.Errorf("--sql and file arguments are mutually exclusive")
			}

			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				return err
			}

			stmts, err := collectStatements(inlineSQL, args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			format := resolveOutputFormat(cmd, flags)
			if err := validateOutputFormat(format); err != nil {
				return err
			}
			runner, err := newRunner(cfg, format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer runner.Close()

			if every != "" {
				return runner.runOnSchedule(ctx, every, stmts)
			}
			return runner.runAll(ctx, stmts)
		},
	}

	cmd.Flags().StringVar(&inlineSQL, "sql", "", "SQL statement to run")
	cmd.Flags().StringVar(&every, "every", "", "Cron schedule to re-run the statements on (e.g. \"@hourly\")")

	return cmd
}

// statement is one unit of work: a SQL text and the label it reports under.
type statement struct {
	label string
	sql   string
}

func collectStatements(inlineSQL string, files []string) ([]statement, error) {
	if inlineSQL != "" {
		return []statement{{label: "inline", sql: inlineSQL}}, nil
	}
	stmts := make([]statement, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		stmts = append(stmts, statement{label: filepath.Base(f), sql: string(data)})
	}
	return stmts, nil
}

// runner owns the shared client, history store and output stream for one
// invocation of the run command.
type runner struct {
	client   *cde.Client
	recorder session.RunRecorder
	store    *history.Store
	cfg      *config.Config
	format   string
	out      *lockedWriter
}

func newRunner(cfg *config.Config, format string, out io.Writer) (*runner, error) {
	var tokens cde.TokenSource
	if cfg.Token != "" {
		tokens = cde.StaticToken(cfg.Token)
	} else {
		tokens = auth.NewTokenSource(cfg.AuthURL, cfg.User, cfg.Password)
	}

	client := cde.NewClient(cfg.APIURL, tokens, cde.Options{
		RateLimit:      rate.Limit(cfg.RateLimitRPS),
		RateBurst:      cfg.RateLimitBurst,
		LogSettleDelay: cfg.LogSettleDelay,
	})

	r := &runner{
		client: client,
		cfg:    cfg,
		format: format,
		out:    &lockedWriter{w: out},
	}

	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		r.store = store
		r.recorder = store
	}
	return r, nil
}

func (r *runner) Close() {
	if r.store != nil {
		//nolint:errcheck
		r.store.Close()
	}
}

// runAll executes every statement concurrently, each on its own cursor, and
// prints each result as a single block.
func (r *runner) runAll(ctx context.Context, stmts []statement) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, stmt := range stmts {
		g.Go(func() error {
			return r.runOne(ctx, stmt)
		})
	}
	return g.Wait()
}

func (r *runner) runOne(ctx context.Context, stmt statement) error {
	cur := session.NewCursor(r.client, session.Options{
		PollInterval: r.cfg.PollInterval,
		Timeout:      r.cfg.JobTimeout,
		Recorder:     r.recorder,
	})
	defer cur.Close()

	if err := cur.Execute(ctx, stmt.sql); err != nil {
		return fmt.Errorf("%s: %w", stmt.label, err)
	}

	var buf []byte
	buf = append(buf, fmt.Sprintf("-- %s\n", stmt.label)...)
	rendered, err := Render(r.format, cur.Description(), cur.FetchAll())
	if err != nil {
		return err
	}
	buf = append(buf, rendered...)
	_, err = r.out.Write(buf)
	return err
}

// runOnSchedule re-runs the statements on a cron schedule until the context
// is cancelled. Failed runs are logged and the schedule keeps going.
func (r *runner) runOnSchedule(ctx context.Context, spec string, stmts []statement) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := r.runAll(ctx, stmts); err != nil {
			slog.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	slog.Info("running on schedule", "schedule", spec, "statements", len(stmts))
	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

// lockedWriter serializes whole-block writes from concurrent statements so
// result tables never interleave.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
