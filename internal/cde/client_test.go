package cde_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cde-sql/internal/cde"
	"cde-sql/internal/cdetest"
	"cde-sql/internal/resource"
)

func newTestClient(t *testing.T, svc *cdetest.Service) *cde.Client {
	t.Helper()
	server := httptest.NewServer(svc.Handler())
	t.Cleanup(server.Close)
	return cde.NewClient(server.URL, cde.StaticToken("tok"), cde.Options{
		LogSettleDelay: -1,
	})
}

func TestClient_ResourceLifecycle(t *testing.T) {
	svc := cdetest.New()
	svc.SetToken("tok")
	client := newTestClient(t, svc)
	ctx := context.Background()

	require.NoError(t, client.CreateResource(ctx, "job-1"))

	sqlRes := resource.NewSQLResource("job-1", "SELECT 1")
	require.NoError(t, client.UploadResource(ctx, "job-1", sqlRes))

	uploaded, ok := svc.ResourceFile("job-1", sqlRes.FileName)
	require.True(t, ok)
	assert.Equal(t, "SELECT 1", string(uploaded))

	require.NoError(t, client.DeleteResource(ctx, "job-1"))
	_, ok = svc.ResourceFile("job-1", sqlRes.FileName)
	assert.False(t, ok)
}

func TestClient_SubmitJob(t *testing.T) {
	t.Run("spec_shape", func(t *testing.T) {
		svc := cdetest.New()
		client := newTestClient(t, svc)
		ctx := context.Background()

		require.NoError(t, client.CreateResource(ctx, "job-2"))
		sqlRes := resource.NewSQLResource("job-2", "SELECT 2")
		wrapper := resource.NewWrapperResource("job-2", sqlRes)
		require.NoError(t, client.UploadResource(ctx, "job-2", sqlRes))
		require.NoError(t, client.UploadResource(ctx, "job-2", wrapper))

		require.NoError(t, client.SubmitJob(ctx, "job-2", "job-2", sqlRes, wrapper))

		spec, ok := svc.SubmittedJob("job-2")
		require.True(t, ok)
		assert.Equal(t, "spark", spec["type"])
		spark := spec["spark"].(map[string]any)
		assert.Equal(t, wrapper.FileName, spark["file"])
		assert.Equal(t, []any{sqlRes.FileName}, spark["files"])
		conf := spark["conf"].(map[string]any)
		assert.Equal(t, "python3", conf["spark.pyspark.python"])
		mounts := spec["mounts"].([]any)
		require.Len(t, mounts, 1)
		assert.Equal(t, "/", mounts[0].(map[string]any)["dirPrefix"])
	})

	t.Run("rejects_mount_path_mismatch", func(t *testing.T) {
		svc := cdetest.New()
		client := newTestClient(t, svc)

		sqlRes := resource.NewSQLResource("job-3", "SELECT 3")
		wrapper := resource.NewWrapperResource("job-3", sqlRes)
		wrapper.ReadsPath = "/somewhere/else.sql"

		err := client.SubmitJob(context.Background(), "job-3", "job-3", sqlRes, wrapper)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mounts at")
	})
}

func TestClient_RunAndLogs(t *testing.T) {
	svc := cdetest.New()
	svc.SetStatusScript("starting", "running", "succeeded")
	svc.SetLog("stdout", "+---+\n| id|\n+---+\n|  1|\n+---+\n")
	client := newTestClient(t, svc)
	ctx := context.Background()

	require.NoError(t, client.CreateResource(ctx, "job-4"))
	sqlRes := resource.NewSQLResource("job-4", "SELECT 4")
	wrapper := resource.NewWrapperResource("job-4", sqlRes)
	require.NoError(t, client.UploadResource(ctx, "job-4", sqlRes))
	require.NoError(t, client.UploadResource(ctx, "job-4", wrapper))
	require.NoError(t, client.SubmitJob(ctx, "job-4", "job-4", sqlRes, wrapper))

	run, err := client.RunJob(ctx, "job-4")
	require.NoError(t, err)
	require.NotZero(t, run.ID)

	status, err := client.GetRunStatus(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, cde.StatusStarting, status.Status)
	assert.False(t, status.Terminal())
	assert.Contains(t, status.Raw, `"status"`)

	status, err = client.GetRunStatus(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, cde.StatusRunning, status.Status)

	status, err = client.GetRunStatus(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, cde.StatusSucceeded, status.Status)
	assert.True(t, status.Terminal())

	logs, err := client.GetRunLogs(ctx, run, cde.LogStdout)
	require.NoError(t, err)
	assert.Contains(t, logs, "| id|")

	require.NoError(t, client.DeleteJob(ctx, "job-4"))
}

func TestClient_TransportErrors(t *testing.T) {
	t.Run("http_error_status", func(t *testing.T) {
		svc := cdetest.New()
		client := newTestClient(t, svc)

		err := client.DeleteJob(context.Background(), "missing")
		require.Error(t, err)
		var transportErr *cde.TransportError
		require.True(t, errors.As(err, &transportErr))
		assert.Equal(t, http.StatusNotFound, transportErr.StatusCode)
		assert.Contains(t, transportErr.Op, "DELETE /jobs/")
	})

	t.Run("unauthorized", func(t *testing.T) {
		svc := cdetest.New()
		svc.SetToken("other")
		client := newTestClient(t, svc)

		err := client.CreateResource(context.Background(), "x")
		var transportErr *cde.TransportError
		require.True(t, errors.As(err, &transportErr))
		assert.Equal(t, http.StatusUnauthorized, transportErr.StatusCode)
	})

	t.Run("connection_refused", func(t *testing.T) {
		client := cde.NewClient("http://127.0.0.1:1", cde.StaticToken("tok"), cde.Options{LogSettleDelay: -1})
		err := client.CreateResource(context.Background(), "x")
		var transportErr *cde.TransportError
		require.True(t, errors.As(err, &transportErr))
		assert.Zero(t, transportErr.StatusCode)
	})
}
