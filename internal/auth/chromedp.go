// Package auth performs the browser-driven certificate login for a region.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/chromedp/cdproto/emulation"
	cdpnetwork "github.com/chromedp/cdproto/network"
	cdpstorage "github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/crawjud/pje-pipeline/internal/pje"
)

// Config controls the login flow. URL fields are templates taking the
// region key as their single %s argument.
type Config struct {
	// LoginURL is the region's SSO entry page.
	LoginURL string
	// LandingPattern is a regexp matching the post-login URL.
	LandingPattern string
	// APIBaseURL is the portal's internal API root for the region.
	APIBaseURL string
	// SSOButton is the selector of the certificate-login button.
	SSOButton string
	// ButtonWait bounds the wait for the SSO button (default 25s).
	ButtonWait time.Duration
	// LoginTimeout bounds the whole login poll (default 60s).
	LoginTimeout time.Duration
	// MaxParallel caps concurrent browser logins; 0 means unlimited.
	MaxParallel int
	UserAgent   string
}

// ChromeAuthenticator implements pje.Authenticator with headless Chrome.
// Each region login gets its own browser tab; a shared exec allocator
// keeps Chrome startup cost out of the per-region path.
type ChromeAuthenticator struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp creates an authenticator backed by chromedp.
func NewChromedp(cfg Config, logger *zap.Logger) (*ChromeAuthenticator, error) {
	if cfg.LoginURL == "" || cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("login and api base url templates are required")
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.ButtonWait <= 0 {
		cfg.ButtonWait = 25 * time.Second
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = 60 * time.Second
	}
	if cfg.SSOButton == "" {
		cfg.SSOButton = "#btnSsoPdpj"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeAuthenticator{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (a *ChromeAuthenticator) Close() {
	a.allocCancel()
}

// Authenticate performs the SSO certificate login for the region and
// extracts the cookies the API client needs. Failure is wrapped in
// pje.AuthenticationError so the scheduler can skip the region.
func (a *ChromeAuthenticator) Authenticate(ctx context.Context, regionKey string) (*pje.Session, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, &pje.AuthenticationError{Region: regionKey, Err: err}
	}
	defer a.release()

	taskCtx, taskCancel := chromedp.NewContext(a.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, a.cfg.LoginTimeout)
	defer cancel()

	loginURL := fmt.Sprintf(a.cfg.LoginURL, regionKey)
	landing, err := regexp.Compile(fmt.Sprintf(a.cfg.LandingPattern, regionKey))
	if err != nil {
		return nil, &pje.AuthenticationError{Region: regionKey, Err: fmt.Errorf("compile landing pattern: %w", err)}
	}

	actions := []chromedp.Action{
		a.browserSetupAction(),
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(a.cfg.SSOButton, chromedp.ByQuery),
		chromedp.Click(a.cfg.SSOButton, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, &pje.AuthenticationError{Region: regionKey, Err: fmt.Errorf("sso login: %w", err)}
	}

	if err := a.awaitLanding(taskCtx, landing); err != nil {
		return nil, &pje.AuthenticationError{Region: regionKey, Err: err}
	}

	cookies, err := collectCookies(taskCtx)
	if err != nil {
		return nil, &pje.AuthenticationError{Region: regionKey, Err: err}
	}
	a.logger.Info("region authenticated",
		zap.String("region", regionKey),
		zap.Int("cookies", len(cookies)),
	)

	return &pje.Session{
		RegionKey:  regionKey,
		Cookies:    cookies,
		Headers:    a.sessionHeaders(),
		BaseURL:    fmt.Sprintf(a.cfg.APIBaseURL, regionKey),
		ObtainedAt: time.Now().UTC(),
	}, nil
}

// awaitLanding polls the browser location until it matches the post-login
// pattern or the login timeout expires.
func (a *ChromeAuthenticator) awaitLanding(ctx context.Context, landing *regexp.Regexp) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		var current string
		if err := chromedp.Run(ctx, chromedp.Location(&current)); err != nil {
			return fmt.Errorf("read browser location: %w", err)
		}
		if landing.MatchString(current) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("login completion wait: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (a *ChromeAuthenticator) browserSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := cdpnetwork.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if a.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(a.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func collectCookies(ctx context.Context) ([]*http.Cookie, error) {
	var cdpCookies []*cdpnetwork.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cdpCookies, err = cdpstorage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("extract session cookies: %w", err)
	}
	return cookiesFromCDP(cdpCookies), nil
}

// cookiesFromCDP converts DevTools cookies to net/http cookies usable by
// the API client.
func cookiesFromCDP(src []*cdpnetwork.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(src))
	for _, c := range src {
		if c == nil || c.Name == "" {
			continue
		}
		out = append(out, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: c.Secure,
		})
	}
	return out
}

func (a *ChromeAuthenticator) sessionHeaders() http.Header {
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if a.cfg.UserAgent != "" {
		headers.Set("User-Agent", a.cfg.UserAgent)
	}
	return headers
}

func (a *ChromeAuthenticator) acquire(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	select {
	case a.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (a *ChromeAuthenticator) release() {
	if a.limiter == nil {
		return
	}
	select {
	case <-a.limiter:
	default:
	}
}
