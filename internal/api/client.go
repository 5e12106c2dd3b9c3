package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client talks to the conversion service over its JSON HTTP API.
// Every failure surfaces as *Error so callers can branch on Status
// (0 = server never reached) and Code.
//
// Thread-safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	maxUploadBytes int64
	acceptedTypes  []string
}

// NewClient creates a client for the service at baseURL. acceptedTypes and
// maxUploadBytes bound client-side upload validation; they come from
// configuration, not constants.
func NewClient(baseURL string, timeout time.Duration, acceptedTypes []string, maxUploadBytes int64) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		maxUploadBytes: maxUploadBytes,
		acceptedTypes:  acceptedTypes,
	}
}

// ResolveURL turns a relative API path into an absolute URL on the
// configured base. Absolute inputs pass through untouched.
func (c *Client) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// EventsURL returns the SSE stream URL for one job id.
func (c *Client) EventsURL(jobID string) string {
	return c.ResolveURL("/api/events/jobs/" + url.PathEscape(jobID))
}

// JobStatus fetches the current server-side view of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID)+"/status", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadURL resolves the one-time download URL for a finished job.
func (c *Client) DownloadURL(ctx context.Context, jobID string) (*DownloadURLResponse, error) {
	var out DownloadURLResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID)+"/download-url", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execution fetches backend workflow metadata for a job.
func (c *Client) Execution(ctx context.Context, jobID string) (*ExecutionResponse, error) {
	var out ExecutionResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID)+"/execution", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFiles fetches the server-side uploads listing.
func (c *Client) ListFiles(ctx context.Context) (*FilesResponse, error) {
	var out FilesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/files", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFile removes an uploaded file on the server.
func (c *Client) DeleteFile(ctx context.Context, fileID string) (*DeleteResponse, error) {
	var out DeleteResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(fileID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health probes the service health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadInvoice validates the file locally, then submits it as multipart
// form field "file". Validation failures (NO_FILE, UNSUPPORTED_FILE_TYPE,
// FILE_TOO_LARGE) are raised before any network call.
func (c *Client) UploadInvoice(ctx context.Context, filePath string) (*UploadResponse, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, NewError(CodeNoFile, "no file selected")
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, NewError(CodeNoFile, fmt.Sprintf("cannot read file: %v", err))
	}
	if info.IsDir() {
		return nil, NewError(CodeNoFile, "path is a directory, not a file")
	}
	if info.Size() > c.maxUploadBytes {
		return nil, NewError(CodeFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d bytes", info.Size(), c.maxUploadBytes))
	}

	mimeType, err := detectMime(filePath)
	if err != nil {
		return nil, NewError(CodeNoFile, fmt.Sprintf("cannot inspect file: %v", err))
	}
	if !c.accepts(mimeType) {
		return nil, NewError(CodeUnsupportedType,
			fmt.Sprintf("file type %q is not accepted (accepted: %s)", mimeType, strings.Join(c.acceptedTypes, ", ")))
	}

	body, contentType, err := multipartBody(filePath, mimeType)
	if err != nil {
		return nil, NewError(CodeNoFile, fmt.Sprintf("cannot read file: %v", err))
	}

	var out UploadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/jobs", body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Fetch opens a byte stream for an already-resolved download URL.
// Relative URLs are resolved against the configured base so the stream is
// always served from the known origin.
func (c *Client) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResolveURL(rawURL), nil)
	if err != nil {
		return nil, NewError(CodeNetworkError, err.Error())
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Status: 0, Code: CodeNetworkError, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, decodeError(resp, raw)
	}
	return resp.Body, nil
}

func (c *Client) accepts(mimeType string) bool {
	for _, t := range c.acceptedTypes {
		if strings.EqualFold(t, mimeType) {
			return true
		}
	}
	return false
}

// doJSON issues one request and decodes the response by content type:
// JSON bodies unmarshal into out, anything else is treated as text and
// assigned when out is *string. Non-2xx responses and transport failures
// both come back as *Error.
func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.ResolveURL(path), body)
	if err != nil {
		return NewError(CodeNetworkError, err.Error())
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Status: 0, Code: CodeNetworkError, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Status: 0, Code: CodeNetworkError, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, raw)
	}

	if out == nil {
		return nil
	}
	if isJSONResponse(resp) {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Status: resp.StatusCode, Code: CodeHTTPError,
				Message: fmt.Sprintf("malformed response body: %v", err)}
		}
		return nil
	}
	if s, ok := out.(*string); ok {
		*s = string(raw)
		return nil
	}
	return &Error{Status: resp.StatusCode, Code: CodeHTTPError,
		Message: fmt.Sprintf("unexpected content type %q", resp.Header.Get("Content-Type"))}
}

// decodeError normalizes a non-2xx response into *Error. The service
// envelope is {"error":{"message","code"}}; missing fields fall back to
// HTTP_ERROR and the status line.
func decodeError(resp *http.Response, raw []byte) *Error {
	apiErr := &Error{
		Status:  resp.StatusCode,
		Code:    CodeHTTPError,
		Message: resp.Status,
	}
	var envelope errorBody
	if isJSONResponse(resp) && json.Unmarshal(raw, &envelope) == nil {
		if envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
		}
		if envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
		}
	}
	return apiErr
}

func isJSONResponse(resp *http.Response) bool {
	ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

// multipartBody buffers the file into a multipart form with an explicit
// part content type, so the server sees the sniffed MIME type rather than
// application/octet-stream.
func multipartBody(filePath, mimeType string) (io.Reader, string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filePath)))
	header.Set("Content-Type", mimeType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// detectMime prefers the filename extension and falls back to content
// sniffing for extensionless files.
func detectMime(path string) (string, error) {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		if parsed, _, err := mime.ParseMediaType(byExt); err == nil {
			return parsed, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	parsed, _, err := mime.ParseMediaType(http.DetectContentType(buf[:n]))
	if err != nil {
		return "", err
	}
	return parsed, nil
}
