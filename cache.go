package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// cachedResponse is a helper struct to store the response fields
// we care about in a simple JSON format.
type cachedResponse struct {
	Status     string              `json:"status"`
	StatusCode int                 `json:"status_code"`
	Proto      string              `json:"proto"`
	Header     map[string][]string `json:"header"`
	Body       []byte              `json:"body"`
}

// CachingRoundTripper implements http.RoundTripper.
type CachingRoundTripper struct {
	// UnderlyingTransport will be used when there's a cache miss.
	// If nil, http.DefaultTransport will be used.
	UnderlyingTransport http.RoundTripper

	// CacheDir is the directory where response files are stored.
	CacheDir string

	// MaxAge expires entries by file modification time. Zero keeps them forever.
	MaxAge time.Duration

	now func() time.Time
}

// NewCachingRoundTripper creates the cache directory and returns the transport.
func NewCachingRoundTripper(next http.RoundTripper, dir string, maxAge time.Duration) (*CachingRoundTripper, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "fluvius-meter")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &CachingRoundTripper{UnderlyingTransport: next, CacheDir: filepath.Clean(dir), MaxAge: maxAge}, nil
}

func (c *CachingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	next := c.UnderlyingTransport
	if next == nil {
		next = http.DefaultTransport
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	// Headers are ignored, so a token change does not invalidate an entry.
	cacheFilePath := c.cacheFilePath(cacheKey(req.Method, req.URL.String(), bodyBytes))

	if c.fresh(cacheFilePath) {
		if resp, err := loadCachedResponse(cacheFilePath, req); err == nil {
			return resp, nil
		}
	}

	resp, err := next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	cr := cachedResponse{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		Header:     resp.Header.Clone(),
		Body:       respBodyBytes,
	}
	// only successful answers are worth replaying
	if resp.StatusCode == http.StatusOK {
		if err := saveCachedResponse(cacheFilePath, &cr); err != nil {
			return nil, err
		}
	}

	return buildHTTPResponse(req, cr), nil
}

func (c *CachingRoundTripper) fresh(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if c.MaxAge <= 0 {
		return true
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return now().Sub(info.ModTime()) <= c.MaxAge
}

// cacheKey builds a SHA-256 hash string from method, url, and request body.
func cacheKey(method, url string, body []byte) string {
	hash := sha256.New()
	hash.Write([]byte(method))
	hash.Write([]byte(url))
	if len(body) > 0 {
		hash.Write(body)
	}
	return hex.EncodeToString(hash.Sum(nil))
}

// cacheFilePath returns the path to the cache file for the given key.
func (c *CachingRoundTripper) cacheFilePath(key string) string {
	return filepath.Join(c.CacheDir, key+".json")
}

// loadCachedResponse reads the cached file, deserializes it, and returns an *http.Response.
func loadCachedResponse(path string, req *http.Request) (*http.Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cr cachedResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, err
	}

	return buildHTTPResponse(req, cr), nil
}

// saveCachedResponse saves the response struct to a file in JSON format.
func saveCachedResponse(path string, cr *cachedResponse) error {
	data, err := json.MarshalIndent(cr, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// buildHTTPResponse constructs a new *http.Response from cachedResponse data.
func buildHTTPResponse(req *http.Request, cr cachedResponse) *http.Response {
	return &http.Response{
		Status:        cr.Status,
		StatusCode:    cr.StatusCode,
		Proto:         cr.Proto,
		Header:        cr.Header,
		Body:          io.NopCloser(bytes.NewReader(cr.Body)),
		ContentLength: int64(len(cr.Body)),
		Request:       req,
	}
}
