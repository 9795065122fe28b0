package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/google/uuid"

	"codedrop-go/internal/storage"
	"codedrop-go/internal/transfer"
)

// Response-envelope codes the server answers with.
const (
	codeSuccess             = "Success"
	codeInvalidSession      = "InvalidSession"
	codeInvalidTransferType = "InvalidTransferType"
	codeInvalidToken        = "InvalidToken"
)

var (
	// ErrInvalidSession means the server no longer recognizes the session;
	// re-verification is the only way forward.
	ErrInvalidSession = errors.New("session invalid or expired")

	// ErrInvalidTransferType means the code's kind does not permit the
	// operation.
	ErrInvalidTransferType = errors.New("operation not allowed for this transfer type")

	// ErrInvalidToken means the upload token was already consumed or never
	// existed.
	ErrInvalidToken = errors.New("upload token invalid or consumed")
)

// IsSessionError reports whether err is a definitive gate failure that no
// amount of retrying can fix.
func IsSessionError(err error) bool {
	return errors.Is(err, ErrInvalidSession) || errors.Is(err, ErrInvalidTransferType)
}

// APIError carries a non-success envelope code the client has no sentinel
// for.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client talks to the transfer API. The session cookie lives in the jar, so
// one client equals one browser tab's engagement with a code.
type Client struct {
	http    *http.Client
	baseURL string
}

func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return &Client{
		http: &http.Client{
			Jar:     jar,
			Timeout: 5 * time.Minute,
		},
		baseURL: baseURL,
	}, nil
}

// NewWithHTTPClient is New with a caller-supplied http.Client, for tests.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{http: hc, baseURL: baseURL}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	switch env.Code {
	case codeSuccess:
	case codeInvalidSession:
		return ErrInvalidSession
	case codeInvalidTransferType:
		return ErrInvalidTransferType
	case codeInvalidToken:
		return ErrInvalidToken
	default:
		return &APIError{Code: env.Code, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}

// VerifyResult describes the session minted for a verified code.
type VerifyResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
}

// Verify exchanges a share code for a fingerprinted session. The session
// cookie lands in the jar; every later call rides on it.
func (c *Client) Verify(ctx context.Context, code string) (*VerifyResult, error) {
	var out VerifyResult
	err := c.post(ctx, "/api/transfer/verify", map[string]string{"code": code}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Heartbeat touches the session's liveness clock.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.post(ctx, "/api/transfer/heartbeat", nil, nil)
}

// StartUpload flips the session into its uploading state and mints the
// linked download code. Safe to call twice.
func (c *Client) StartUpload(ctx context.Context) (*transfer.StartUploadResult, error) {
	var out transfer.StartUploadResult
	if err := c.post(ctx, "/api/transfer/upload/start", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateUploadURL asks for a one-time upload destination for one file, or
// registers a folder marker immediately.
func (c *Client) GenerateUploadURL(ctx context.Context, req *transfer.UploadURLRequest) (*transfer.UploadURLResult, error) {
	var out transfer.UploadURLResult
	if err := c.post(ctx, "/api/transfer/upload/url", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadObject streams the file bytes to the pre-signed destination as a
// multipart form post. progress, when non-nil, receives the cumulative byte
// count as the body is consumed.
func (c *Client) UploadObject(ctx context.Context, dest *storage.PutDestination, r io.Reader, progress func(sent int64)) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			for field, value := range dest.FormFields {
				if err := mw.WriteField(field, value); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile("file", "file")
			if err != nil {
				return err
			}
			src := r
			if progress != nil {
				src = &countingReader{r: r, report: progress}
			}
			if _, err := io.Copy(part, src); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload destination answered %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// CreateFileRecord presents the one-time upload token to register the
// just-uploaded object.
func (c *Client) CreateFileRecord(ctx context.Context, token uuid.UUID) error {
	return c.post(ctx, "/api/transfer/upload/file", map[string]string{"upload_token": token.String()}, nil)
}

// CompleteUpload finishes the batch and surfaces the download code.
func (c *Client) CompleteUpload(ctx context.Context) (*transfer.CompleteUploadResult, error) {
	var out transfer.CompleteUploadResult
	if err := c.post(ctx, "/api/transfer/upload/complete", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitConfig finalizes the transfer's settings and completes the session.
func (c *Client) SubmitConfig(ctx context.Context, req *transfer.ConfigRequest) error {
	return c.post(ctx, "/api/transfer/config", req, nil)
}

// FileEntry is one listed file of the code behind the session.
type FileEntry struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	RelativePath string    `json:"relative_path"`
	SizeBytes    int64     `json:"size_bytes"`
	IsDirectory  bool      `json:"is_directory"`
}

// ListFiles enumerates the files behind the session's code.
func (c *Client) ListFiles(ctx context.Context) ([]FileEntry, error) {
	var out []FileEntry
	if err := c.get(ctx, "/api/transfer/files", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadURLs fetches pre-signed retrieval URLs for the given files.
func (c *Client) DownloadURLs(ctx context.Context, fileIDs []uuid.UUID) ([]transfer.DownloadURL, error) {
	ids := make([]string, len(fileIDs))
	for i, id := range fileIDs {
		ids[i] = id.String()
	}
	var out []transfer.DownloadURL
	if err := c.post(ctx, "/api/transfer/download/urls", map[string][]string{"file_ids": ids}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CompressResult mirrors the compression job's poll answer.
type CompressResult struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	URL      string `json:"url,omitempty"`
}

// RequestCompression starts or polls the code's archive assembly.
func (c *Client) RequestCompression(ctx context.Context) (*CompressResult, error) {
	var out CompressResult
	if err := c.post(ctx, "/api/transfer/download/compress", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

type countingReader struct {
	r      io.Reader
	sent   int64
	report func(sent int64)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.sent += int64(n)
		cr.report(cr.sent)
	}
	return n, err
}
