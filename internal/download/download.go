package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/api"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/pkg/log"
)

// Fetcher is the slice of the API client the downloader needs.
type Fetcher interface {
	DownloadURL(ctx context.Context, jobID string) (*api.DownloadURLResponse, error)
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Downloader saves finished conversion results to a local directory.
type Downloader struct {
	client    Fetcher
	outputDir string
}

func New(client Fetcher, outputDir string) *Downloader {
	if outputDir == "" {
		outputDir = "."
	}
	return &Downloader{client: client, outputDir: outputDir}
}

// Save fetches the CSV for a finished job and writes it under the output
// directory, returning the path written. downloadURL may be empty, in
// which case it is resolved through the download-url endpoint; filename
// is the originally uploaded name used to derive the output name.
func (d *Downloader) Save(ctx context.Context, jobID, downloadURL, filename string) (string, error) {
	name := CSVName(filename)

	if downloadURL == "" {
		resolved, err := d.client.DownloadURL(ctx, jobID)
		if err != nil {
			return "", fmt.Errorf("resolve download url for job %s: %w", jobID, err)
		}
		downloadURL = resolved.URL
		if resolved.Filename != "" {
			name = EnsureCSVExt(resolved.Filename)
		}
	}
	if downloadURL == "" {
		return "", fmt.Errorf("job %s has no download url", jobID)
	}

	body, err := d.client.Fetch(ctx, downloadURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if err := os.MkdirAll(d.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := uniquePath(filepath.Join(d.outputDir, name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	written, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	log.Info("Saved %d bytes to %s", written, path)
	return path, nil
}

// CSVName derives the output filename from the uploaded one by swapping
// its extension for .csv. An empty input falls back to converted.csv.
func CSVName(uploaded string) string {
	base := filepath.Base(strings.TrimSpace(uploaded))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "converted.csv"
	}
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	return EnsureCSVExt(base)
}

// EnsureCSVExt guarantees the name carries exactly one trailing .csv,
// collapsing any stacked suffixes the server may have produced.
func EnsureCSVExt(name string) string {
	name = strings.TrimSpace(name)
	for {
		trimmed := strings.TrimSuffix(strings.ToLower(name), ".csv")
		if len(trimmed) == len(name) {
			break
		}
		name = name[:len(trimmed)]
	}
	if name == "" {
		name = "converted"
	}
	return name + ".csv"
}

// uniquePath appends a numeric suffix instead of overwriting an existing
// download.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
