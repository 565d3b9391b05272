package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	ErrSessionStart      = errors.New("failed to start browser session")
	ErrSessionClosed     = errors.New("browser session is closed")
	ErrSessionNotReady   = errors.New("browser session is not ready")
	ErrNavigationTimeout = errors.New("navigation timed out")
	ErrNavigation        = errors.New("navigation failed")
)

type State int

const (
	StateUnstarted State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
	// ReadySelector, when set, is waited on after every navigation.
	ReadySelector string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        15 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-IN,en;q=0.9",
		TimezoneID:     "Asia/Kolkata",
		Locale:         "en-IN",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
	}
}

// Session owns one live automated browser. The underlying process is
// held exclusively: one in-flight navigation at a time, and nothing
// survives Close.
type Session struct {
	opts    *Options
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	state   State
	mu      sync.Mutex
	logger  *slog.Logger
}

func NewSession(opts *Options) *Session {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Session{
		opts:   opts,
		state:  StateUnstarted,
		logger: slog.Default().With("component", "browser"),
	}
}

// Open launches playwright, Chromium, one context and one page. Calling
// it from Ready is a no-op; from Closed it fails.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReady:
		return nil
	case StateClosed:
		return ErrSessionClosed
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("%w: failed to start playwright: %v", ErrSessionStart, err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &s.opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--window-size=1920,1080",
			"--user-agent=" + s.opts.UserAgent,
		},
	}
	if s.opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: s.opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return fmt.Errorf("%w: failed to launch browser: %v", ErrSessionStart, err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &s.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &s.opts.Locale,
		TimezoneId:        &s.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  s.opts.ViewportWidth,
			Height: s.opts.ViewportHeight,
		},
		ExtraHttpHeaders: s.opts.ExtraHeaders,
	}

	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("%w: failed to create browser context: %v", ErrSessionStart, err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		pw.Stop()
		return fmt.Errorf("%w: failed to create page: %v", ErrSessionStart, err)
	}
	page.SetDefaultTimeout(float64(s.opts.Timeout.Milliseconds()))

	s.pw = pw
	s.browser = browser
	s.context = context
	s.page = page
	s.state = StateReady

	s.logger.Info("browser session opened", "headless", s.opts.Headless)
	return nil
}

// Navigate loads url and blocks until DOM content settles (plus the
// optional ready selector) or the configured timeout elapses. The lock
// is released during the actual page load so Close stays callable
// mid-navigation; a teardown then fails this one navigation only.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page, err := s.currentPage()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err = page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.opts.Timeout.Milliseconds())),
	})
	if err != nil {
		return classifyNavigationError(url, err)
	}

	if s.opts.ReadySelector != "" {
		if err := page.Locator(s.opts.ReadySelector).First().WaitFor(playwright.LocatorWaitForOptions{
			Timeout: playwright.Float(float64(s.opts.Timeout.Milliseconds())),
		}); err != nil {
			return fmt.Errorf("%w: ready selector %q: %v", ErrNavigationTimeout, s.opts.ReadySelector, err)
		}
	}

	s.logger.Debug("navigated", "url", url)
	return nil
}

// CurrentDocument returns an immutable HTML snapshot of the rendered
// page. Side-effect-free; every other component parses only snapshots.
func (s *Session) CurrentDocument() (string, error) {
	page, err := s.currentPage()
	if err != nil {
		return "", err
	}

	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to snapshot page: %w", err)
	}
	return html, nil
}

// ApplyIdentity swaps the outbound User-Agent for subsequent requests.
func (s *Session) ApplyIdentity(userAgent string) error {
	page, err := s.currentPage()
	if err != nil {
		return err
	}
	if userAgent == "" {
		return nil
	}

	headers := map[string]string{"User-Agent": userAgent}
	if err := page.SetExtraHTTPHeaders(headers); err != nil {
		return fmt.Errorf("failed to set identity headers: %w", err)
	}
	return nil
}

// Close tears the session down: page, context, browser, driver. Safe to
// call repeatedly and mid-navigation; the process never outlives it.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	var errs []error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	s.page, s.context, s.browser, s.pw = nil, nil, nil, nil
	s.logger.Info("browser session closed")

	return errors.Join(errs...)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// currentPage checks state and hands out the page reference under the
// lock, so playwright calls themselves run unlocked.
func (s *Session) currentPage() (playwright.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return nil, ErrSessionClosed
	case StateUnstarted:
		return nil, ErrSessionNotReady
	}
	return s.page, nil
}

func classifyNavigationError(url string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return fmt.Errorf("%w: %s: %v", ErrNavigationTimeout, url, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
}
