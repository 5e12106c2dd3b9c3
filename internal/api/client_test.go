package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, 5*time.Second,
		[]string{"application/pdf", "image/jpeg", "image/png"}, 20*1024*1024)
	return client, srv
}

func writeTempPDF(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.pdf")
	content := append([]byte("%PDF-1.4\n"), make([]byte, size)...)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestClient_JobStatus_DecodesJSON(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/j1/status", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"done","ready":true,"downloadUrl":"/api/jobs/j1/download"}`))
	}))

	status, err := client.JobStatus(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "done", status.Status)
	assert.True(t, status.Ready)
	assert.Equal(t, "/api/jobs/j1/download", status.DownloadURL)
}

func TestClient_ServerErrorEnvelopeIsTyped(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","code":"RATE_LIMITED"}}`))
	}))

	_, err := client.JobStatus(context.Background(), "j1")
	require.Error(t, err)

	apiErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "RATE_LIMITED", apiErr.Code)
	assert.Equal(t, "slow down", apiErr.Message)
}

func TestClient_ErrorDefaultsWithoutEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream broke"))
	}))

	_, err := client.JobStatus(context.Background(), "j1")
	require.Error(t, err)

	apiErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, CodeHTTPError, apiErr.Code)
	assert.NotEmpty(t, apiErr.Message)
}

func TestClient_UnreachableServerIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing listening anymore

	client := NewClient(srv.URL, time.Second, []string{"application/pdf"}, 1024)
	_, err := client.JobStatus(context.Background(), "j1")
	require.Error(t, err)

	assert.True(t, IsNetwork(err))
	apiErr := err.(*Error)
	assert.Equal(t, 0, apiErr.Status)
	assert.Equal(t, CodeNetworkError, apiErr.Code)
}

func TestClient_NotFoundIsDistinguishable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"job not found","code":"JOB_NOT_FOUND"}}`))
	}))

	_, err := client.JobStatus(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNetwork(err))
}

func TestClient_UploadRejectsMissingFile(t *testing.T) {
	client := NewClient("http://localhost:1", time.Second, []string{"application/pdf"}, 1024)

	_, err := client.UploadInvoice(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNoFile))

	_, err = client.UploadInvoice(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNoFile))
}

func TestClient_UploadRejectsOversizedFileBeforeNetwork(t *testing.T) {
	var called bool
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	// cap below the file size
	client.maxUploadBytes = 8

	_, err := client.UploadInvoice(context.Background(), writeTempPDF(t, 1024))
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeFileTooLarge))
	assert.False(t, called, "validation must reject before any network call")
}

func TestClient_UploadRejectsUnacceptedType(t *testing.T) {
	var called bool
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := client.UploadInvoice(context.Background(), path)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeUnsupportedType))
	assert.False(t, called)
}

func TestClient_UploadSubmitsMultipart(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/jobs", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(32<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "invoice.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobId":"j1","filename":"invoice.pdf","execution":{"id":"wf-9","status":"running"}}`))
	}))

	resp, err := client.UploadInvoice(context.Background(), writeTempPDF(t, 64))
	require.NoError(t, err)
	assert.Equal(t, "j1", resp.JobID)
	assert.Equal(t, "invoice.pdf", resp.Filename)
	require.NotNil(t, resp.Execution)
	assert.Equal(t, "wf-9", resp.Execution.ID)
}

func TestClient_FetchResolvesRelativeURLAgainstBase(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/j1/download", r.URL.Path)
		w.Write([]byte("a,b\n1,2\n"))
	}))

	body, err := client.Fetch(context.Background(), "/api/jobs/j1/download")
	require.NoError(t, err)
	defer body.Close()
}

func TestClient_DeleteFile(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/files/f1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"deleted","fileId":"f1","filename":"inv.pdf"}`))
	}))

	resp, err := client.DeleteFile(context.Background(), "f1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "f1", resp.FileID)
}
