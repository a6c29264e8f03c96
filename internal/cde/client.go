// Package cde is a typed client for the job-execution service's REST API:
// resource namespaces, file uploads, Spark job submission, run status and
// driver logs. Each method is one synchronous call; retry policy, polling
// and cleanup sequencing live a layer up in the session orchestrator.
package cde

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cde-sql/internal/resource"
)

// Run statuses reported by the service. Only succeeded and failed are
// terminal.
const (
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// LogType selects which driver log stream to fetch.
type LogType string

// Driver log streams exposed by the service.
const (
	LogStdout LogType = "stdout"
	LogStderr LogType = "stderr"
	LogEvent  LogType = "event"
)

// Run identifies one triggered job run; its ID keys all status and log
// queries.
type Run struct {
	ID int64 `json:"id"`
}

// RunStatus is the status payload of a job run. Raw keeps the full response
// body so failure errors can carry it for diagnosis.
type RunStatus struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Raw    string `json:"-"`
}

// Terminal reports whether the run has finished, successfully or not.
func (s RunStatus) Terminal() bool {
	return s.Status == StatusSucceeded || s.Status == StatusFailed
}

// TokenSource yields the bearer token attached to every API call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Options tunes a Client. The zero value gives production defaults.
type Options struct {
	HTTPClient     *http.Client
	Logger         *slog.Logger
	RateLimit      rate.Limit    // sustained API calls per second (default 10)
	RateBurst      int           // burst capacity (default 20)
	LogSettleDelay time.Duration // wait before fetching logs (default 40s; negative disables)
}

// DefaultLogSettleDelay is how long GetRunLogs waits before fetching: run
// logs are indexed asynchronously and can lag a terminal status by several
// seconds.
const DefaultLogSettleDelay = 40 * time.Second

// Client calls the job-execution service.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      TokenSource
	limiter     *rate.Limiter
	logger      *slog.Logger
	settleDelay time.Duration
}

// NewClient builds a Client for the API rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Options) *Client {
	var options Options
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.RateLimit == 0 {
		options.RateLimit = 10
	}
	if options.RateBurst == 0 {
		options.RateBurst = 20
	}
	settle := options.LogSettleDelay
	if settle == 0 {
		settle = DefaultLogSettleDelay
	} else if settle < 0 {
		settle = 0
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  options.HTTPClient,
		tokens:      tokens,
		limiter:     rate.NewLimiter(options.RateLimit, options.RateBurst),
		logger:      options.Logger,
		settleDelay: settle,
	}
}

// CreateResource creates the named file-resource namespace.
func (c *Client) CreateResource(ctx context.Context, name string) error {
	body := map[string]any{"hidden": false, "name": name, "type": "files"}
	_, err := c.doJSON(ctx, http.MethodPost, "/resources", body, nil)
	return err
}

// DeleteResource deletes the named resource namespace and every file in it.
func (c *Client) DeleteResource(ctx context.Context, name string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/resources/"+url.PathEscape(name), nil, nil)
	return err
}

// UploadResource uploads one file resource into the given namespace as a
// multipart body with a single "file" field.
func (c *Client) UploadResource(ctx context.Context, namespace string, res resource.Resource) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, res.FileName))
	header.Set("Content-Type", "text/plain")
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(res.Content); err != nil {
		return fmt.Errorf("build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("build multipart body: %w", err)
	}

	path := "/resources/" + url.PathEscape(namespace) + "/" + url.PathEscape(res.FileName)
	_, err = c.do(ctx, http.MethodPut, path, writer.FormDataContentType(), &buf, nil)
	return err
}

// SubmitJob registers a Spark job that mounts the resource namespace at the
// root prefix, uses the wrapper script as entry file and ships the SQL file
// alongside it. The wrapper's recorded read path must agree with the mount
// convention; a mismatch would fail remotely with an opaque file-not-found,
// so it is rejected here instead.
func (c *Client) SubmitJob(ctx context.Context, jobName, namespace string, sqlRes, wrapperRes resource.Resource) error {
	if want := resource.MountPath(sqlRes.FileName); wrapperRes.ReadsPath != want {
		return fmt.Errorf("submit job %s: wrapper reads %q but the SQL resource mounts at %q",
			jobName, wrapperRes.ReadsPath, want)
	}

	body := map[string]any{
		"name": jobName,
		"mounts": []map[string]any{
			{"dirPrefix": "/", "resourceName": namespace},
		},
		"type": "spark",
		"spark": map[string]any{
			"file":  wrapperRes.FileName,
			"files": []string{sqlRes.FileName},
			"conf":  map[string]string{"spark.pyspark.python": "python3"},
		},
	}
	_, err := c.doJSON(ctx, http.MethodPost, "/jobs", body, nil)
	return err
}

// RunJob triggers execution of a submitted job and returns its run handle.
func (c *Client) RunJob(ctx context.Context, jobName string) (Run, error) {
	data, err := c.doJSON(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobName)+"/run", map[string]any{}, nil)
	if err != nil {
		return Run{}, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("decode run response: %w", err)
	}
	return run, nil
}

// GetRunStatus fetches the current status payload of a run.
func (c *Client) GetRunStatus(ctx context.Context, run Run) (RunStatus, error) {
	data, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/job-runs/%d", run.ID), nil, nil)
	if err != nil {
		return RunStatus{}, err
	}
	var status RunStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return RunStatus{}, fmt.Errorf("decode run status: %w", err)
	}
	status.Raw = string(data)
	return status, nil
}

// GetRunLogs fetches one driver log stream as raw text. It always waits the
// settle delay first; logs are not guaranteed to be available immediately
// after a terminal status is observed.
func (c *Client) GetRunLogs(ctx context.Context, run Run, logType LogType) (string, error) {
	if err := c.waitSettle(ctx); err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("type", "driver/"+string(logType))
	query.Set("follow", "true")
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/job-runs/%d/logs", run.ID), "", nil, query)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DeleteJob deletes a submitted job definition.
func (c *Client) DeleteJob(ctx context.Context, jobName string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(jobName), nil, nil)
	return err
}

func (c *Client) waitSettle(ctx context.Context) error {
	if c.settleDelay <= 0 {
		return nil
	}
	c.logger.Debug("waiting for logs to settle", "delay", c.settleDelay)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.settleDelay):
		return nil
	}
}

// doJSON sends an optional JSON body and returns the response body bytes.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, query url.Values) ([]byte, error) {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json;charset=UTF-8"
	}
	return c.do(ctx, method, path, contentType, reader, query)
}

const maxErrorBody = 2048

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, query url.Values) ([]byte, error) {
	op := method + " " + path

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("acquire token: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/plain; charset=utf-8")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := string(data)
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(excerpt)}
	}

	return data, nil
}
