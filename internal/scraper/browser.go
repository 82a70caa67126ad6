package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/car-scanner/internal/config"
)

// Browser launches headless Chrome sessions for sources that build their
// result pages client-side. A session lives for one search: adapters
// navigate it through result pages and read back rendered HTML plus any
// intercepted API responses.
type Browser struct {
	userAgent   string
	navTimeout  time.Duration
	settleDelay time.Duration
}

// NewBrowser creates a browser factory from the scraper configuration.
func NewBrowser(cfg config.ScraperConfig) *Browser {
	navTimeout := cfg.BrowserTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = 4 * time.Second
	}
	return &Browser{
		userAgent:   cfg.UserAgent,
		navTimeout:  navTimeout,
		settleDelay: settle,
	}
}

// SessionOptions tunes a single browser session.
type SessionOptions struct {
	// Locale sets the browser language, e.g. "de-DE" for German sites
	// whose consent banners and number formats depend on it.
	Locale string

	// CapturePatterns are URL substrings; JSON responses whose request URL
	// contains any of them are captured for API extraction.
	CapturePatterns []string
}

// Session is one live headless Chrome tab.
type Session struct {
	tabCtx        context.Context
	cancels       []context.CancelFunc
	navTimeout    time.Duration
	defaultSettle time.Duration

	mu       sync.Mutex
	pending  map[network.RequestID]struct{}
	captured [][]byte
}

// NewSession starts a browser and opens a tab. The caller must Close the
// session; the browser process exits with it.
func (b *Browser) NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(b.userAgent),
	)
	if opts.Locale != "" {
		allocOpts = append(allocOpts, chromedp.Flag("lang", opts.Locale))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{
		tabCtx:        tabCtx,
		cancels:       []context.CancelFunc{cancelTab, cancelAlloc},
		navTimeout:    b.navTimeout,
		defaultSettle: b.settleDelay,
		pending:       make(map[network.RequestID]struct{}),
	}

	if len(opts.CapturePatterns) > 0 {
		s.listenForResponses(opts.CapturePatterns)
	}

	tasks := chromedp.Tasks{network.Enable()}
	if opts.Locale != "" {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": opts.Locale + "," + strings.SplitN(opts.Locale, "-", 2)[0] + ";q=0.9",
		}))
	}
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return s, nil
}

// listenForResponses records the body of every JSON response whose URL
// matches a capture pattern. Bodies are only available once loading
// finishes, so matches are staged by request id first.
func (s *Session) listenForResponses(patterns []string) {
	chromedp.ListenTarget(s.tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if !strings.Contains(e.Response.MimeType, "json") {
				return
			}
			for _, p := range patterns {
				if strings.Contains(e.Response.URL, p) {
					s.mu.Lock()
					s.pending[e.RequestID] = struct{}{}
					s.mu.Unlock()
					break
				}
			}
		case *network.EventLoadingFinished:
			s.mu.Lock()
			_, ok := s.pending[e.RequestID]
			delete(s.pending, e.RequestID)
			s.mu.Unlock()
			if !ok {
				return
			}
			// GetResponseBody must run outside the event handler to avoid
			// deadlocking the CDP message loop.
			go func(id network.RequestID) {
				c := chromedp.FromContext(s.tabCtx)
				body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(s.tabCtx, c.Target))
				if err != nil || len(body) == 0 {
					return
				}
				s.mu.Lock()
				s.captured = append(s.captured, body)
				s.mu.Unlock()
			}(e.RequestID)
		}
	})
}

// Navigate loads a URL and waits for the page to settle. A timeout is not
// fatal to the session; whatever rendered so far stays readable.
func (s *Session) Navigate(url string, settle time.Duration) error {
	if settle <= 0 {
		settle = s.defaultSettle
	}
	navCtx, cancel := context.WithTimeout(s.tabCtx, s.navTimeout)
	defer cancel()

	return chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(settle),
	)
}

// WaitVisible waits until a selector matches a visible node, returning
// false on timeout. Comma-separated selector lists are allowed.
func (s *Session) WaitVisible(selector string, timeout time.Duration) bool {
	wctx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()

	return chromedp.Run(wctx, chromedp.WaitVisible(selector, chromedp.ByQuery)) == nil
}

// Settle gives the page extra time to finish client-side work.
func (s *Session) Settle(d time.Duration) {
	sctx, cancel := context.WithTimeout(s.tabCtx, d+5*time.Second)
	defer cancel()

	_ = chromedp.Run(sctx, chromedp.Sleep(d))
}

// ClickAny clicks the first element matched by a CSS selector or, failing
// that, the first button whose text contains one of the given phrases.
// Used for consent banners and load-more controls; always best-effort.
func (s *Session) ClickAny(selectors, texts []string) bool {
	script := clickScript(selectors, texts)

	cctx, cancel := context.WithTimeout(s.tabCtx, 5*time.Second)
	defer cancel()

	var clicked bool
	if err := chromedp.Run(cctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false
	}
	return clicked
}

func clickScript(selectors, texts []string) string {
	sels, _ := json.Marshal(selectors)
	phrases, _ := json.Marshal(lowerAll(texts))
	return fmt.Sprintf(`(() => {
		for (const sel of %s) {
			const el = document.querySelector(sel);
			if (el) { el.click(); return true; }
		}
		const phrases = %s;
		for (const el of document.querySelectorAll('button, [role="button"], a')) {
			const t = (el.textContent || '').replace(/\s+/g, ' ').trim().toLowerCase();
			if (t && phrases.some(p => t === p || t.includes(p))) { el.click(); return true; }
		}
		return false;
	})()`, sels, phrases)
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Title returns the current document title.
func (s *Session) Title() (string, error) {
	tctx, cancel := context.WithTimeout(s.tabCtx, 10*time.Second)
	defer cancel()

	var title string
	if err := chromedp.Run(tctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// HTML returns the rendered document markup.
func (s *Session) HTML() (string, error) {
	hctx, cancel := context.WithTimeout(s.tabCtx, 15*time.Second)
	defer cancel()

	var html string
	if err := chromedp.Run(hctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// DrainCaptured returns the API responses intercepted since the previous
// drain and clears the buffer, so each page contributes its items once.
func (s *Session) DrainCaptured() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.captured
	s.captured = nil
	return out
}

// Close shuts the tab and its browser process down.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}
