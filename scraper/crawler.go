package scraper

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aluiziolira/go-wishlist-harvester/models"
	"github.com/aluiziolira/go-wishlist-harvester/parser"
)

// StopReason says why a review crawl ended.
type StopReason int

const (
	StopNoReviews StopReason = iota
	StopLastPage
	StopFetchFailed
	StopPageLimit
	StopCanceled
)

func (r StopReason) String() string {
	switch r {
	case StopNoReviews:
		return "no_reviews"
	case StopLastPage:
		return "last_page"
	case StopFetchFailed:
		return "fetch_failed"
	case StopPageLimit:
		return "page_limit"
	case StopCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ReviewCrawl is the outcome of walking one product's review thread.
type ReviewCrawl struct {
	Reviews []models.Review
	Pages   int
	Reason  StopReason
}

// CrawlReviews walks the review pages of a product starting at page 1 and
// returns every review in page order. It never fails: a page that cannot
// be fetched ends the crawl with what was collected so far.
func (h *Harvester) CrawlReviews(ctx context.Context, sess *Session, productURL string) ReviewCrawl {
	var crawl ReviewCrawl

	base, err := reviewBaseURL(productURL)
	if err != nil {
		slog.Warn("bad product url, skipping reviews",
			slog.String("url", productURL),
			slog.Any("error", err),
		)
		crawl.Reason = StopFetchFailed
		return crawl
	}

	for n := 1; ; n++ {
		if n > h.cfg.MaxReviewPages {
			slog.Warn("review page limit reached",
				slog.String("url", base),
				slog.Int("limit", h.cfg.MaxReviewPages),
			)
			crawl.Reason = StopPageLimit
			return crawl
		}
		if ctx.Err() != nil {
			crawl.Reason = StopCanceled
			return crawl
		}

		pageURL := base + "?selected_section=discussion&page=" + strconv.Itoa(n)
		page, err := sess.Get(ctx, pageURL)
		if err != nil {
			slog.Warn("review page fetch failed",
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			crawl.Reason = StopFetchFailed
			return crawl
		}
		doc, err := page.Document()
		if err != nil {
			slog.Warn("review page parse failed",
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			crawl.Reason = StopFetchFailed
			return crawl
		}

		result := parser.ParseReviewPage(doc)
		if result.Blocks == 0 {
			crawl.Reason = StopNoReviews
			return crawl
		}

		crawl.Pages++
		crawl.Reviews = append(crawl.Reviews, result.Reviews...)
		h.Metrics.IncReviewPages()
		h.Metrics.AddReviews(len(result.Reviews))
		slog.Debug("review page parsed",
			slog.String("url", pageURL),
			slog.Int("reviews", len(result.Reviews)),
			slog.Int("skipped", result.Skipped),
		)

		if !result.HasNext {
			crawl.Reason = StopLastPage
			return crawl
		}
		if err := sleepContext(ctx, h.cfg.ReviewPageDelay); err != nil {
			crawl.Reason = StopCanceled
			return crawl
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
