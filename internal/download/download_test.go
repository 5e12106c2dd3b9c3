package download

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/api"
)

type fakeFetcher struct {
	resolved    *api.DownloadURLResponse
	resolveErr  error
	content     string
	fetchedURLs []string
}

func (f *fakeFetcher) DownloadURL(_ context.Context, _ string) (*api.DownloadURLResponse, error) {
	return f.resolved, f.resolveErr
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (io.ReadCloser, error) {
	f.fetchedURLs = append(f.fetchedURLs, rawURL)
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func TestEnsureCSVExt(t *testing.T) {
	cases := map[string]string{
		"report":           "report.csv",
		"report.csv":       "report.csv",
		"report.csv.csv":   "report.csv",
		"report.CSV":       "report.csv",
		"report.csv.CSV":   "report.csv",
		"":                 "converted.csv",
		".csv":             "converted.csv",
		"invoice-2024.pdf": "invoice-2024.pdf.csv",
	}
	for in, want := range cases {
		assert.Equal(t, want, EnsureCSVExt(in), "input %q", in)
	}
}

func TestCSVName(t *testing.T) {
	cases := map[string]string{
		"invoice.pdf":          "invoice.csv",
		"scan.jpeg":            "scan.csv",
		"noext":                "noext.csv",
		"archive.tar.gz":       "archive.tar.csv",
		"/tmp/deep/nested.pdf": "nested.csv",
		"":                     "converted.csv",
		".hidden":              ".hidden.csv",
	}
	for in, want := range cases {
		assert.Equal(t, want, CSVName(in), "input %q", in)
	}
}

func TestDownloader_SaveWithKnownURL(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{content: "a,b\n1,2\n"}
	d := New(fetcher, dir)

	path, err := d.Save(context.Background(), "j1", "/api/jobs/j1/download", "invoice.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "invoice.csv"), path)
	assert.Equal(t, []string{"/api/jobs/j1/download"}, fetcher.fetchedURLs)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestDownloader_SaveResolvesMissingURL(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{
		content:  "csv",
		resolved: &api.DownloadURLResponse{URL: "/signed/xyz", Filename: "invoice.csv.csv"},
	}
	d := New(fetcher, dir)

	path, err := d.Save(context.Background(), "j1", "", "ignored.pdf")
	require.NoError(t, err)
	// The server-provided filename wins, with the stacked suffix collapsed.
	assert.Equal(t, filepath.Join(dir, "invoice.csv"), path)
	assert.Equal(t, []string{"/signed/xyz"}, fetcher.fetchedURLs)
}

func TestDownloader_SaveFailsWhenNoURLAnywhere(t *testing.T) {
	fetcher := &fakeFetcher{resolved: &api.DownloadURLResponse{}}
	d := New(fetcher, t.TempDir())

	_, err := d.Save(context.Background(), "j1", "", "invoice.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no download url")
}

func TestDownloader_SaveDoesNotOverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoice.csv"), []byte("old"), 0o644))

	fetcher := &fakeFetcher{content: "new"}
	d := New(fetcher, dir)

	path, err := d.Save(context.Background(), "j1", "/dl", "invoice.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "invoice-1.csv"), path)

	old, err := os.ReadFile(filepath.Join(dir, "invoice.csv"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}
