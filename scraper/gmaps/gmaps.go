package gmaps

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"branch-scraper/config"
	"branch-scraper/scraper"
	"branch-scraper/utils"
)

const (
	maxScrollRounds = 5
	// stop scrolling once the review count holds for this many rounds
	stableRounds = 2
)

// Scraper captures a rendered snapshot of a Google Maps place page with
// as many reviews loaded as scrolling will surface.
type Scraper struct {
	cfg    *config.Config
	logger *utils.Logger
	retry  *utils.RetryConfig
}

// New creates a ready-to-use review page Scraper.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:    cfg,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

// Capture navigates to the place page, opens the reviews tab when one
// exists, scrolls the feed until the review count stabilizes, and
// returns the serialized document plus the final page URL.
func (s *Scraper) Capture(ctx context.Context) (string, string, error) {
	if s.cfg.ReviewPageURL == "" {
		return "", "", fmt.Errorf("gmaps: REVIEW_PAGE_URL is not set")
	}

	bin := scraper.FindBrowserBinary(s.cfg.ChromeBin)
	s.logger.Info("[gmaps] Using browser binary: %s", bin)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, scraper.AllocOptions(bin)...)
	defer cancelAlloc()

	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelSilent()

	var html, pageURL string

	err := s.retry.Do(ctx, "capture-review-page", func() error {
		tab, cancel := chromedp.NewContext(silentCtx)
		defer cancel()

		tab, cancelTimeout := context.WithTimeout(tab, 120*time.Second)
		defer cancelTimeout()

		if err := chromedp.Run(tab,
			chromedp.Navigate(s.cfg.ReviewPageURL),
			chromedp.Sleep(5*time.Second),
			chromedp.Evaluate(clickReviewsTabJS, nil),
			chromedp.Sleep(2*time.Second),
		); err != nil {
			return fmt.Errorf("chromedp navigate: %w", err)
		}

		if err := s.loadAllReviews(tab); err != nil {
			return err
		}

		if err := chromedp.Run(tab,
			chromedp.Evaluate(`document.documentElement.outerHTML`, &html),
			chromedp.Location(&pageURL),
		); err != nil {
			return fmt.Errorf("chromedp review capture: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}

	s.logger.Info("[gmaps] Captured %d bytes from %s", len(html), pageURL)
	return html, pageURL, nil
}

// loadAllReviews scrolls the review feed until no new review elements
// appear for two consecutive rounds.
func (s *Scraper) loadAllReviews(tab context.Context) error {
	previous, stable := 0, 0

	for round := 0; round < maxScrollRounds; round++ {
		var count int
		err := chromedp.Run(tab,
			chromedp.Evaluate(scrollFeedJS, nil),
			chromedp.Sleep(1500*time.Millisecond),
			chromedp.Evaluate(`document.querySelectorAll('[data-reviewid]').length`, &count),
		)
		if err != nil {
			return fmt.Errorf("chromedp review scroll: %w", err)
		}

		s.logger.Debug("[gmaps] scroll round %d — %d review elements", round+1, count)

		if count == previous {
			stable++
			if stable >= stableRounds {
				break
			}
		} else {
			stable = 0
		}
		previous = count
	}
	return nil
}

const clickReviewsTabJS = `
(function() {
	var direct = document.querySelector('[data-value="Reviews"]') ||
	             document.querySelector('[role="tab"][aria-label*="review" i]');
	if (direct) { direct.click(); return true; }

	var buttons = document.querySelectorAll('button, [role="button"], [role="tab"]');
	for (var i = 0; i < buttons.length; i++) {
		var text = (buttons[i].textContent || '').toLowerCase();
		var label = (buttons[i].getAttribute('aria-label') || '').toLowerCase();
		if (text.indexOf('review') !== -1 || label.indexOf('review') !== -1) {
			buttons[i].click();
			return true;
		}
	}
	return false;
})()
`

const scrollFeedJS = `
(function() {
	var first = document.querySelector('[data-reviewid]');
	var feed = (first && first.closest('[role="main"]')) ||
	           document.querySelector('.m6QErb') ||
	           document.body;
	feed.scrollTo(0, feed.scrollHeight);
})()
`
