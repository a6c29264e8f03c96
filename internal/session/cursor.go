// Package session drives a SQL statement through the full remote job
// lifecycle: package the SQL and its wrapper script as resources, submit
// and run a Spark job, poll the run to a terminal state under a ceiling,
// parse the driver's stdout into a typed result set and clean everything
// up again. The Cursor at the top of the package is the query interface
// the rest of the system talks to.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"cde-sql/internal/cde"
	"cde-sql/internal/output"
	"cde-sql/internal/resource"
	"cde-sql/internal/timer"
)

// Polling defaults; both are deliberately generous because Spark cluster
// spin-up routinely takes minutes.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultTimeout      = 900 * time.Second
)

// jobNamePrefix namespaces every job and resource this client creates.
const jobNamePrefix = "cde-sql"

// RunRecord summarizes one completed Execute for history recording.
type RunRecord struct {
	JobName      string
	SQL          string
	Outcome      string // "succeeded", "failed", "timed_out" or "error"
	StartedAt    time.Time
	Duration     time.Duration
	RowsReturned int
	Error        string
}

// RunRecorder persists RunRecords. Recording failures are logged, never
// escalated.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
}

// Options tunes a Cursor. The zero value gives production defaults.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration // polling ceiling
	Logger       *slog.Logger
	Recorder     RunRecorder // optional run-history sink
}

// Cursor executes SQL statements as remote jobs and exposes the
// materialized result. Execute is fully synchronous: the caller blocks for
// the whole job lifetime including every polling sleep. A Cursor is not
// safe for concurrent use; concurrent queries need one Cursor each, which
// also keeps their job names and resource namespaces disjoint.
type Cursor struct {
	client   *cde.Client
	poll     time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	recorder RunRecorder

	schema  output.Schema
	rows    []output.Row
	next    int
	lastRun cde.Run
	hasRun  bool
}

// NewCursor builds a Cursor over the given job client.
func NewCursor(client *cde.Client, opts ...Options) *Cursor {
	var options Options
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Cursor{
		client:   client,
		poll:     options.PollInterval,
		timeout:  options.Timeout,
		logger:   options.Logger,
		recorder: options.Recorder,
	}
}

// NewJobName generates a job name from a millisecond timestamp and a
// zero-padded random suffix. Not globally unique, but collision-resistant
// across concurrent submissions from one process.
func NewJobName() string {
	return fmt.Sprintf("%s-%d-%08d", jobNamePrefix, time.Now().UnixMilli(), rand.IntN(100000000))
}

// Execute runs the SQL statement as a remote job and materializes its
// result set. Bindings, if any, are coerced to SQL text and substituted
// into printf-style placeholders before submission. A trailing semicolon
// is stripped; the wrapper script submits a single statement.
func (c *Cursor) Execute(ctx context.Context, sql string, bindings ...any) error {
	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")
	sql = substituteBindings(sql, bindings)

	jobName := NewJobName()
	logger := c.logger.With("job", jobName)
	logger.Debug("executing statement", "sql", sql)

	started := time.Now()
	schema, rows, run, err := c.orchestrate(ctx, logger, jobName, sql)
	c.record(ctx, logger, RunRecord{
		JobName:      jobName,
		SQL:          sql,
		Outcome:      outcomeOf(err),
		StartedAt:    started,
		Duration:     time.Since(started),
		RowsReturned: len(rows),
		Error:        errText(err),
	})
	if err != nil {
		return err
	}

	c.schema = schema
	c.rows = rows
	c.next = 0
	c.lastRun = run
	c.hasRun = true
	logger.Debug("statement complete", "columns", len(schema), "rows", len(rows))
	return nil
}

// orchestrate walks one statement through the job state machine. Whatever
// the outcome, cleanup of the job and its resource namespace is attempted
// exactly once after the run terminates (or aborts), and cleanup failures
// never mask the primary result.
func (c *Cursor) orchestrate(ctx context.Context, logger *slog.Logger, jobName, sql string) (output.Schema, []output.Row, cde.Run, error) {
	timers := timer.NewRegistry(logger)
	defer timers.LogSummary(jobName)

	timers.Start("create-resource")
	if err := c.client.CreateResource(ctx, jobName); err != nil {
		return nil, nil, cde.Run{}, fmt.Errorf("create resource namespace: %w", err)
	}
	timers.End("create-resource")
	defer c.cleanup(ctx, logger, timers, jobName)

	sqlRes := resource.NewSQLResource(jobName, sql)
	wrapperRes := resource.NewWrapperResource(jobName, sqlRes)

	timers.Start("upload-resources")
	if err := c.client.UploadResource(ctx, jobName, sqlRes); err != nil {
		return nil, nil, cde.Run{}, fmt.Errorf("upload SQL resource: %w", err)
	}
	if err := c.client.UploadResource(ctx, jobName, wrapperRes); err != nil {
		return nil, nil, cde.Run{}, fmt.Errorf("upload wrapper resource: %w", err)
	}
	timers.End("upload-resources")

	timers.Start("submit-job")
	if err := c.client.SubmitJob(ctx, jobName, jobName, sqlRes, wrapperRes); err != nil {
		return nil, nil, cde.Run{}, fmt.Errorf("submit job: %w", err)
	}
	timers.End("submit-job")

	timers.Start("run-job")
	run, err := c.client.RunJob(ctx, jobName)
	if err != nil {
		return nil, nil, cde.Run{}, fmt.Errorf("run job: %w", err)
	}
	timers.End("run-job")
	logger.Debug("job running", "run_id", run.ID)

	timers.Start("poll-status")
	status, err := c.pollUntilTerminal(ctx, logger, jobName, run)
	timers.End("poll-status")
	if err != nil {
		return nil, nil, cde.Run{}, err
	}

	if status.Status == cde.StatusFailed {
		// Best-effort diagnostics; a log-fetch failure must not replace
		// the job failure itself.
		diag, logErr := c.client.GetRunLogs(ctx, run, cde.LogStdout)
		if logErr != nil {
			logger.Warn("could not fetch logs of failed job", "error", logErr)
		} else {
			logger.Error("failed job output", "output", diag)
		}
		return nil, nil, cde.Run{}, &JobFailedError{
			JobName:       jobName,
			StatusPayload: status.Raw,
			Diagnostic:    diag,
		}
	}

	timers.Start("fetch-output")
	logs, err := c.client.GetRunLogs(ctx, run, cde.LogStdout)
	if err != nil {
		return nil, nil, cde.Run{}, fmt.Errorf("fetch job output: %w", err)
	}
	timers.End("fetch-output")

	parsed, err := output.Parse(output.LogTabular, logs)
	if err != nil {
		return nil, nil, cde.Run{}, fmt.Errorf("parse job output: %w", err)
	}
	return parsed.Schema, parsed.Rows, run, nil
}

// pollUntilTerminal re-checks run status on a fixed interval until the run
// finishes. Accumulated wait time reaching the ceiling is a
// JobTimeoutError; this is the guard against polling a stuck run forever.
func (c *Cursor) pollUntilTerminal(ctx context.Context, logger *slog.Logger, jobName string, run cde.Run) (cde.RunStatus, error) {
	var waited time.Duration

	for {
		status, err := c.client.GetRunStatus(ctx, run)
		if err != nil {
			return cde.RunStatus{}, fmt.Errorf("fetch run status: %w", err)
		}
		logger.Debug("run status", "status", status.Status, "waited", waited)

		if status.Terminal() {
			return status, nil
		}
		if waited >= c.timeout {
			logger.Error("run did not finish within ceiling", "ceiling", c.timeout, "last_status", status.Status)
			return cde.RunStatus{}, &JobTimeoutError{
				JobName:    jobName,
				Ceiling:    c.timeout,
				LastStatus: status.Status,
			}
		}

		select {
		case <-ctx.Done():
			return cde.RunStatus{}, fmt.Errorf("wait for run: %w", ctx.Err())
		case <-time.After(c.poll):
		}
		waited += c.poll
	}
}

// cleanupOutcome records how post-run deletion went. It is logged and
// deliberately never returned: cleanup must not mask the run's primary
// outcome.
type cleanupOutcome struct {
	jobErr      error
	resourceErr error
}

func (c *Cursor) cleanup(ctx context.Context, logger *slog.Logger, timers *timer.Registry, jobName string) {
	// Run cleanup even when the caller's context is already canceled.
	ctx = context.WithoutCancel(ctx)

	timers.Start("cleanup")
	outcome := cleanupOutcome{
		jobErr:      c.client.DeleteJob(ctx, jobName),
		resourceErr: c.client.DeleteResource(ctx, jobName),
	}
	timers.End("cleanup")

	if outcome.jobErr != nil {
		logger.Warn("job deletion failed", "error", outcome.jobErr)
	}
	if outcome.resourceErr != nil {
		logger.Warn("resource deletion failed", "error", outcome.resourceErr)
	}
}

func (c *Cursor) record(ctx context.Context, logger *slog.Logger, rec RunRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("run history recording failed", "error", err)
	}
}

func outcomeOf(err error) string {
	switch err.(type) {
	case nil:
		return "succeeded"
	case *JobFailedError:
		return "failed"
	case *JobTimeoutError:
		return "timed_out"
	default:
		return "error"
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Description returns the result schema as column descriptors, or nil when
// no statement has produced a result yet.
func (c *Cursor) Description() []output.Column {
	if c.schema == nil {
		return nil
	}
	out := make([]output.Column, len(c.schema))
	copy(out, c.schema)
	return out
}

// FetchAll returns the complete materialized row sequence. It does not
// consume rows: the underlying sequence is immutable and FetchOne tracks
// its own position, so mixing both fetch styles is safe.
func (c *Cursor) FetchAll() []output.Row {
	return c.rows
}

// FetchOne returns the next unconsumed row. The second return is false
// once the result is exhausted, and stays false on further calls.
func (c *Cursor) FetchOne() (output.Row, bool) {
	if c.next >= len(c.rows) {
		return nil, false
	}
	row := c.rows[c.next]
	c.next++
	return row, true
}

// SparkEvents fetches and parses the event log of the most recent run,
// logging each event name with its timestamp. Event logs remain queryable
// by run id after job cleanup.
func (c *Cursor) SparkEvents(ctx context.Context) ([]output.Event, error) {
	if !c.hasRun {
		return nil, fmt.Errorf("no run to fetch events for")
	}
	logs, err := c.client.GetRunLogs(ctx, c.lastRun, cde.LogEvent)
	if err != nil {
		return nil, fmt.Errorf("fetch event log: %w", err)
	}
	parsed, err := output.Parse(output.LogEvent, logs)
	if err != nil {
		return nil, err
	}
	events := parsed.Events
	for _, ev := range events {
		if ts, ok := ev.Time(); ok {
			c.logger.Debug("spark event", "event", ev.Name(), "at", ts.Format("15:04:05.000"))
		}
	}
	return events, nil
}

// Close releases the materialized result. It does not cancel an in-flight
// remote job; cancellation is unsupported.
func (c *Cursor) Close() {
	c.rows = nil
	c.schema = nil
	c.next = 0
}
