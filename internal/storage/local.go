package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// LocalProvider implements Provider on the local filesystem for development.
// Pre-signed destinations are URLs on this server carrying an HMAC signature
// over the object key and expiry; HandlePut and HandleGet verify them.
type LocalProvider struct {
	root    string
	baseURL string
	secret  []byte
}

func NewLocalProvider(root, baseURL, secret string) (*LocalProvider, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalProvider{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  []byte(secret),
	}, nil
}

func (l *LocalProvider) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, l.secret)
	fmt.Fprintf(mac, "%s\n%d", key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

func (l *LocalProvider) verify(key, expStr, sig string) error {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry")
	}
	if time.Now().Unix() > exp {
		return fmt.Errorf("signature expired")
	}
	if !hmac.Equal([]byte(l.sign(key, exp)), []byte(sig)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// objectPath maps a key onto the storage root, rejecting path escapes.
func (l *LocalProvider) objectPath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid object key: %s", key)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalProvider) IssuePutDestination(ctx context.Context, key, contentType string, ttl time.Duration) (*PutDestination, error) {
	exp := time.Now().Add(ttl).Unix()
	return &PutDestination{
		URL: l.baseURL + "/objects",
		FormFields: map[string]string{
			"key":       key,
			"expires":   strconv.FormatInt(exp, 10),
			"signature": l.sign(key, exp),
		},
	}, nil
}

func (l *LocalProvider) IssueGetURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	exp := time.Now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("key", key)
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("signature", l.sign(key, exp))
	if filename != "" {
		q.Set("filename", filename)
	}
	return l.baseURL + "/objects?" + q.Encode(), nil
}

func (l *LocalProvider) GetObjectStream(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := l.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening object %s: %w", key, err)
	}
	return f, nil
}

func (l *LocalProvider) PutObjectStream(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	path, err := l.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating object %s: %w", key, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Error().Err(cerr).Str("key", key).Msg("error closing object file")
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing object %s: %w", key, err)
	}
	return nil
}

func (l *LocalProvider) DeleteObject(ctx context.Context, key string) error {
	path, err := l.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing object %s: %w", key, err)
	}
	return nil
}

func (l *LocalProvider) DeleteObjects(ctx context.Context, keys []string) error {
	var firstErr error
	for _, key := range keys {
		if err := l.DeleteObject(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *LocalProvider) Health(ctx context.Context) map[string]string {
	stats := make(map[string]string)
	if _, err := os.Stat(l.root); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}
	stats["status"] = "up"
	stats["root"] = l.root
	return stats
}

func (l *LocalProvider) Close() error {
	return nil
}

// HandlePut accepts the multipart POST a local PutDestination points at.
func (l *LocalProvider) HandlePut(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	key := r.FormValue("key")
	if err := l.verify(key, r.FormValue("expires"), r.FormValue("signature")); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("error closing uploaded file")
		}
	}()

	if err := l.PutObjectStream(r.Context(), key, file, -1, ""); err != nil {
		log.Error().Err(err).Str("key", key).Msg("local put failed")
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGet serves an object a local IssueGetURL points at.
func (l *LocalProvider) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if err := l.verify(key, r.URL.Query().Get("expires"), r.URL.Query().Get("signature")); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	stream, err := l.GetObjectStream(r.Context(), key)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.Error().Err(cerr).Str("key", key).Msg("error closing object stream")
		}
	}()

	if filename := r.URL.Query().Get("filename"); filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.Header().Set("Content-Type", "application/octet-stream")

	if _, err := io.Copy(w, stream); err != nil {
		log.Error().Err(err).Str("key", key).Msg("error streaming object")
	}
}
