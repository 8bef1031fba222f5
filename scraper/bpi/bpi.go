package bpi

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"branch-scraper/config"
	"branch-scraper/scraper"
	"branch-scraper/utils"
)

// Scraper captures a rendered snapshot of the BPI branch locator page.
// Extraction happens elsewhere — this only produces the document.
type Scraper struct {
	cfg    *config.Config
	logger *utils.Logger
	retry  *utils.RetryConfig
}

// New creates a ready-to-use branch page Scraper.
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

// Capture navigates to the branch locator page, scrolls the results
// region so every card renders, and returns the serialized document
// plus the final page URL.
func (s *Scraper) Capture(ctx context.Context) (string, string, error) {
	bin := scraper.FindBrowserBinary(s.cfg.ChromeBin)
	s.logger.Info("[bpi] Using browser binary: %s", bin)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, scraper.AllocOptions(bin)...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelSilent()

	var html, pageURL string

	err := s.retry.Do(ctx, "capture-branch-page", func() error {
		tab, cancel := chromedp.NewContext(silentCtx)
		defer cancel()

		tab, cancelTimeout := context.WithTimeout(tab, 90*time.Second)
		defer cancelTimeout()

		err := chromedp.Run(tab,
			chromedp.Navigate(s.cfg.BranchPageURL),
			chromedp.Sleep(5*time.Second),

			// Scroll the results region so lazily rendered cards appear
			chromedp.Evaluate(`
				(function() {
					var region = document.querySelector('.scrollable-body');
					if (region) {
						region.scrollTo(0, region.scrollHeight);
					} else {
						window.scrollTo(0, document.body.scrollHeight);
					}
				})()
			`, nil),
			chromedp.Sleep(2*time.Second),

			chromedp.Evaluate(`document.documentElement.outerHTML`, &html),
			chromedp.Location(&pageURL),
		)
		if err != nil {
			return fmt.Errorf("chromedp branch capture: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}

	s.logger.Info("[bpi] Captured %d bytes from %s", len(html), pageURL)
	return html, pageURL, nil
}
