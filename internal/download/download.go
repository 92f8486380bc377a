package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"golang.org/x/time/rate"

	"github.com/distantorigin/noobcraft-installer/internal/manifest"
	"github.com/distantorigin/noobcraft-installer/internal/paths"
)

var (
	ErrNoSources        = errors.New("no download sources")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrSizeMismatch     = errors.New("size mismatch")
	ErrEmptyPayload     = errors.New("empty payload")
)

// StatusError is a non-success HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.Code)
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the server layout and transfer limits.
type Config struct {
	BaseURL         string
	ModListEndpoint string
	CDNURLs         []string
	FallbackURLs    []string
	UserAgent       string
	Timeout         time.Duration
	Workers         int
	// BytesPerSecond caps the combined payload bandwidth. Zero disables it.
	BytesPerSecond int64
}

const (
	DefaultWorkers  = 3
	DefaultTimeout  = 10 * time.Minute
	transferBuffer  = 32 * 1024
	progressTick    = 100 * time.Millisecond
	partialSuffix   = ".part"
	minLimiterBurst = 64 * 1024
)

// ByteProgress is called while a payload transfers.
type ByteProgress func(name string, complete, total int64)

// Client fetches the mod list and mod payloads.
type Client struct {
	cfg     Config
	http    HTTPClient
	grab    *grab.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	// OnBytes, if set, receives transfer progress for each payload.
	OnBytes ByteProgress
}

// NewClient creates a Client. A nil httpClient uses an http.Client with
// cfg.Timeout.
func NewClient(cfg Config, httpClient HTTPClient, logger *slog.Logger) *Client {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	g := grab.NewClient()
	g.HTTPClient = httpClient
	g.UserAgent = cfg.UserAgent
	g.BufferSize = transferBuffer

	c := &Client{cfg: cfg, http: httpClient, grab: g, logger: logger}
	if cfg.BytesPerSecond > 0 {
		burst := int(cfg.BytesPerSecond)
		if burst < minLimiterBurst {
			burst = minLimiterBurst
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSecond), burst)
	}
	return c
}

// Workers returns the pool width.
func (c *Client) Workers() int {
	return c.cfg.Workers
}

// ManifestURLs returns the mod list locations, primary first.
func (c *Client) ManifestURLs() []string {
	urls := []string{joinURL(c.cfg.BaseURL, c.cfg.ModListEndpoint)}
	for _, fb := range c.cfg.FallbackURLs {
		urls = append(urls, joinURL(fb, c.cfg.ModListEndpoint))
	}
	return urls
}

// FetchManifest downloads the mod list, trying the primary server and then
// each fallback. The first success wins.
func (c *Client) FetchManifest(ctx context.Context) (*manifest.Remote, error) {
	var errs []error
	for _, u := range c.ManifestURLs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.logger.Info("fetching mod list", "url", u)
		remote, err := c.fetchManifest(ctx, u)
		if err == nil {
			c.logger.Info("mod list downloaded", "url", u, "version", remote.Version, "mods", len(remote.RequiredMods)+len(remote.OptionalMods))
			return remote, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("failed to fetch mod list", "url", u, "error", err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("failed to fetch mod list from all servers: %w", errors.Join(errs...))
}

func (c *Client) fetchManifest(ctx context.Context, u string) (*manifest.Remote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", u, err)
	}
	return manifest.ParseRemote(data)
}

// Priority ranks a payload URL: CDN 1, primary server 2, anything else 3.
func (c *Client) Priority(u string) int {
	for _, cdn := range c.cfg.CDNURLs {
		if cdn != "" && hasPrefixFold(u, cdn) {
			return 1
		}
	}
	if c.cfg.BaseURL != "" && hasPrefixFold(u, c.cfg.BaseURL) {
		return 2
	}
	return 3
}

// SortURLs orders urls by priority, keeping list order within a priority.
func (c *Client) SortURLs(urls []string) []string {
	out := append([]string(nil), urls...)
	sort.SliceStable(out, func(i, j int) bool {
		return c.Priority(out[i]) < c.Priority(out[j])
	})
	return out
}

// Result is the outcome of one payload.
type Result struct {
	Name     string
	Path     string
	URL      string // source that succeeded
	Attempts int
	Bytes    int64
	Err      error
}

// OK reports whether the payload is in place and verified.
func (r Result) OK() bool {
	return r.Err == nil
}

// FetchAndVerify downloads d to dest. Sources are tried in priority order;
// a failed or unverifiable transfer removes the partial file and moves on to
// the next source. dest only ever holds a complete, verified payload.
func (c *Client) FetchAndVerify(ctx context.Context, d manifest.Descriptor, dest string) Result {
	res := Result{Name: d.Label(), Path: dest}

	urls := c.SortURLs(d.URLs())
	if len(urls) == 0 {
		res.Err = fmt.Errorf("%s: %w", d.Label(), ErrNoSources)
		return res
	}

	var sum []byte
	if d.Checksum != "" {
		var err error
		if _, sum, err = newHash(d.Checksum); err != nil {
			res.Err = fmt.Errorf("%s: %w", d.Label(), err)
			return res
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		res.Err = fmt.Errorf("failed to create directory: %w", err)
		return res
	}

	part := dest + partialSuffix
	var errs []error
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		res.Attempts++

		c.logger.Debug("downloading", "mod", d.Label(), "host", hostOf(u))
		n, err := c.transfer(ctx, d, u, part, sum)
		if err == nil {
			if err = os.Rename(part, dest); err != nil {
				_ = os.Remove(part)
				res.Err = fmt.Errorf("failed to move %s into place: %w", d.FileName, err)
				return res
			}
			res.URL = u
			res.Bytes = n
			c.logger.Info("downloaded and verified", "mod", d.Label(), "host", hostOf(u), "bytes", n)
			return res
		}

		_ = os.Remove(part)
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		c.logger.Warn("download failed", "mod", d.Label(), "host", hostOf(u), "error", err)
		errs = append(errs, err)
	}

	c.logger.Error("failed to download from all sources", "mod", d.Label())
	res.Err = fmt.Errorf("%s: all %d sources failed: %w", d.Label(), len(urls), errors.Join(errs...))
	return res
}

func (c *Client) transfer(ctx context.Context, d manifest.Descriptor, u, part string, sum []byte) (int64, error) {
	_ = os.Remove(part)

	req, err := grab.NewRequest(part, u)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req = req.WithContext(ctx)
	req.NoResume = true
	req.BufferSize = transferBuffer
	if size := d.Size(); size > 0 {
		req.Size = size
	}
	if c.limiter != nil {
		req.RateLimiter = c.limiter
	}
	if sum != nil {
		h, _, _ := newHash(d.Checksum)
		req.SetChecksum(h, sum, true)
	}

	resp := c.grab.Do(req)

	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			if c.OnBytes != nil {
				c.OnBytes(d.Label(), resp.BytesComplete(), resp.Size())
			}
		case <-resp.Done:
			break loop
		}
	}

	if err := resp.Err(); err != nil {
		return 0, classify(u, err)
	}

	n := resp.BytesComplete()
	if c.OnBytes != nil {
		c.OnBytes(d.Label(), n, resp.Size())
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: %w", u, ErrEmptyPayload)
	}
	if size := d.Size(); size > 0 && n != size {
		return 0, fmt.Errorf("%s: %w: got %d bytes, want %d", u, ErrSizeMismatch, n, size)
	}
	return n, nil
}

func classify(u string, err error) error {
	var code grab.StatusCodeError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, grab.ErrBadChecksum):
		return fmt.Errorf("%s: %w", u, ErrChecksumMismatch)
	case errors.Is(err, grab.ErrBadLength):
		return fmt.Errorf("%s: %w", u, ErrSizeMismatch)
	case errors.As(err, &code):
		return &StatusError{URL: u, Code: int(code)}
	default:
		return fmt.Errorf("%s: %w", u, err)
	}
}

// Destination resolves the on-disk path for d inside dir.
func Destination(dir string, d manifest.Descriptor) (string, error) {
	if !paths.IsBareFilename(d.FileName) {
		return "", fmt.Errorf("invalid file name %q", d.FileName)
	}
	return paths.ValidatePath(dir, filepath.Join(dir, d.FileName))
}

func joinURL(base, endpoint string) string {
	if base == "" || strings.HasSuffix(base, "/") {
		return base + endpoint
	}
	return base + "/" + endpoint
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hostOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Host
}
