package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const (
	defaultNavigationTimeout = 60 * time.Second
	debugCaptureTimeout      = 10 * time.Second
)

// BrowserOptions parameterise the headless renderer.
type BrowserOptions struct {
	URL               string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	// WaitSelector is an XPath or text query that must match before capture.
	WaitSelector  string
	ItemSelectors []string
	UserAgent     string
	ChromePath    string
	Headless      bool
	DebugDir      string
}

// Browser renders the rate page in headless Chrome.
type Browser struct {
	opts   BrowserOptions
	logger zerolog.Logger
}

// NewBrowser constructs a chromedp-backed page fetcher.
func NewBrowser(opts BrowserOptions, logger zerolog.Logger) *Browser {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = defaultNavigationTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	return &Browser{opts: opts, logger: logger.With().Str("component", "browser_fetcher").Logger()}
}

// Fetch navigates to the configured URL, waits for rate content, and captures the page.
// The browser process is torn down before Fetch returns.
func (b *Browser) Fetch(ctx context.Context) (*Page, error) {
	if b.opts.URL == "" {
		return nil, &FetchError{Stage: StageNavigate, Err: errors.New("source url not configured")}
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		b.logger.Debug().Msgf(format, args...)
	}))
	defer cancelBrowser()

	// start the browser on the long-lived context so the navigation timeout cannot kill it
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, &FetchError{URL: b.opts.URL, Stage: StageNavigate, Err: fmt.Errorf("start browser: %w", err)}
	}

	navCtx, cancelNav := context.WithTimeout(browserCtx, b.opts.NavigationTimeout)
	defer cancelNav()

	started := time.Now()
	if err := chromedp.Run(navCtx, chromedp.Navigate(b.opts.URL)); err != nil {
		b.captureDebug(browserCtx)
		return nil, &FetchError{URL: b.opts.URL, Stage: StageNavigate, Err: err}
	}
	b.logger.Debug().Dur("elapsed", time.Since(started)).Msg("navigation complete")

	if sel := strings.TrimSpace(b.opts.WaitSelector); sel != "" {
		if err := chromedp.Run(navCtx, chromedp.WaitReady(sel, chromedp.BySearch)); err != nil {
			b.captureDebug(browserCtx)
			return nil, &FetchError{URL: b.opts.URL, Stage: StageWait, Err: fmt.Errorf("marker %q: %w", sel, err)}
		}
		b.logger.Debug().Str("selector", sel).Dur("elapsed", time.Since(started)).Msg("rate marker present")
	}

	if b.opts.SettleDelay > 0 {
		if err := chromedp.Run(navCtx, chromedp.Sleep(b.opts.SettleDelay)); err != nil {
			return nil, &FetchError{URL: b.opts.URL, Stage: StageWait, Err: err}
		}
	}

	page, err := b.capture(navCtx)
	if err != nil {
		b.captureDebug(browserCtx)
		return nil, &FetchError{URL: b.opts.URL, Stage: StageCapture, Err: err}
	}

	b.logger.Info().
		Int("html_bytes", len(page.HTML())).
		Dur("elapsed", time.Since(started)).
		Msg("page rendered")
	return page, nil
}

func (b *Browser) capture(ctx context.Context) (*Page, error) {
	var html, text string
	actions := []chromedp.Action{
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	}

	elements := make(map[string][]string, len(b.opts.ItemSelectors))
	results := make([][]string, len(b.opts.ItemSelectors))
	for i, sel := range b.opts.ItemSelectors {
		script, err := innerTextScript(sel)
		if err != nil {
			return nil, err
		}
		actions = append(actions, chromedp.Evaluate(script, &results[i]))
	}

	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, err
	}
	for i, sel := range b.opts.ItemSelectors {
		elements[sel] = results[i]
	}
	return NewPage(b.opts.URL, html, text, elements), nil
}

func innerTextScript(selector string) (string, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(e => e.innerText || "")`, quoted), nil
}

// captureDebug saves a screenshot and HTML dump of whatever the browser shows.
func (b *Browser) captureDebug(browserCtx context.Context) {
	if b.opts.DebugDir == "" || browserCtx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(browserCtx, debugCaptureTimeout)
	defer cancel()

	var (
		shot []byte
		html string
	)
	if err := chromedp.Run(ctx,
		chromedp.FullScreenshot(&shot, 80),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		b.logger.Warn().Err(err).Msg("debug capture failed")
		return
	}

	paths, err := WriteDebugArtifacts(b.opts.DebugDir, time.Now(), shot, html, "")
	if err != nil {
		b.logger.Warn().Err(err).Msg("write debug artifacts")
		return
	}
	b.logger.Info().Strs("paths", paths).Msg("debug artifacts written")
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.WindowSize(1366, 900),
	)
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if b.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ChromePath))
	}
	return opts
}

var _ PageFetcher = (*Browser)(nil)
