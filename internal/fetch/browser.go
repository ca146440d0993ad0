package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/gitadpal/voran/internal/domain"
)

// BrowserConfig configures headless page capture.
type BrowserConfig struct {
	ExecPath      string
	Timeout       time.Duration
	ScreenshotDir string
	// ScreenshotPrefix is the object-storage prefix for screenshots. Empty
	// disables uploads.
	ScreenshotPrefix string
}

// Browser renders a page in headless Chrome and returns its outer HTML.
// Each call starts and tears down its own browser process.
type Browser struct {
	cfg    BrowserConfig
	blob   domain.BlobWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewBrowser creates a Browser. blob may be nil.
func NewBrowser(cfg BrowserConfig, blob domain.BlobWriter, logger *slog.Logger) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Browser{
		cfg:    cfg,
		blob:   blob,
		logger: logger.With(slog.String("component", "fetch_browser")),
		now:    time.Now,
	}
}

// Fetch navigates to s.URL, optionally waits for s.WaitFor to be visible and
// returns document.documentElement.outerHTML.
func (b *Browser) Fetch(ctx context.Context, s *domain.BrowserSource) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.DisableGPU)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	var shot []byte
	actions := []chromedp.Action{chromedp.Navigate(s.URL)}
	if s.WaitFor != nil {
		actions = append(actions, chromedp.WaitVisible(*s.WaitFor, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if b.screenshotsEnabled() {
		actions = append(actions, chromedp.FullScreenshot(&shot, 90))
	}

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return "", fmt.Errorf("fetch: %w: browser capture of %s: %w", domain.ErrFetch, s.URL, err)
	}

	if len(shot) > 0 {
		b.saveScreenshot(ctx, s.URL, shot)
	}
	return html, nil
}

func (b *Browser) screenshotsEnabled() bool {
	return b.cfg.ScreenshotDir != "" || (b.blob != nil && b.cfg.ScreenshotPrefix != "")
}

// saveScreenshot persists a diagnostic screenshot. Failures are logged and
// never affect the resolution.
func (b *Browser) saveScreenshot(ctx context.Context, pageURL string, png []byte) {
	name := screenshotName(pageURL, b.now())

	if b.cfg.ScreenshotDir != "" {
		path := filepath.Join(b.cfg.ScreenshotDir, name)
		if err := os.MkdirAll(b.cfg.ScreenshotDir, 0o755); err != nil {
			b.logger.WarnContext(ctx, "screenshot dir", slog.String("error", err.Error()))
		} else if err := os.WriteFile(path, png, 0o644); err != nil {
			b.logger.WarnContext(ctx, "screenshot write", slog.String("error", err.Error()))
		} else {
			b.logger.InfoContext(ctx, "screenshot saved", slog.String("path", path))
		}
	}

	if b.blob != nil && b.cfg.ScreenshotPrefix != "" {
		key := b.cfg.ScreenshotPrefix + "/" + name
		if err := b.blob.Put(ctx, key, bytes.NewReader(png), "image/png"); err != nil {
			b.logger.WarnContext(ctx, "screenshot upload", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func screenshotName(pageURL string, at time.Time) string {
	host := "page"
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("%s-%s.png", at.UTC().Format("20060102T150405.000Z"), unsafeName.ReplaceAllString(host, "_"))
}
