package scraper

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
)

const crawlProduct = testOrigin + "/akb-samsung-a50/"

type reviewSite struct {
	transport *httpmock.MockTransport
	fetches   map[int]int
}

// newReviewSite serves pages[i] as review page i+1 and counts fetches per
// page number. Page numbers past the end are served the last page body.
func newReviewSite(pages ...httpmock.Responder) *reviewSite {
	rs := &reviewSite{transport: httpmock.NewMockTransport(), fetches: make(map[int]int)}
	rs.transport.RegisterResponder(http.MethodGet, crawlProduct, func(req *http.Request) (*http.Response, error) {
		n, _ := strconv.Atoi(req.URL.Query().Get("page"))
		rs.fetches[n]++
		if req.URL.Query().Get("selected_section") != "discussion" {
			return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
		}
		idx := n - 1
		if idx < 0 {
			return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
		}
		if idx >= len(pages) {
			idx = len(pages) - 1
		}
		return pages[idx](req)
	})
	return rs
}

func (rs *reviewSite) total() int {
	sum := 0
	for _, n := range rs.fetches {
		sum += n
	}
	return sum
}

// crawl runs CrawlReviews against rs; maxPages 0 keeps the default limit.
func crawl(t *testing.T, maxPages int, rs *reviewSite, productURL string) ReviewCrawl {
	t.Helper()
	c := testConfig()
	if maxPages > 0 {
		c.MaxReviewPages = maxPages
	}
	h := newTestHarvester(t, c, rs.transport)
	sess, err := NewSession(c, WithTransport(rs.transport))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Close()
	return h.CrawlReviews(context.Background(), sess, productURL)
}

func reviewTexts(c ReviewCrawl) []string {
	out := make([]string, 0, len(c.Reviews))
	for _, r := range c.Reviews {
		out = append(out, r.ReviewText)
	}
	return out
}

func TestCrawlReviewsStopsAtEmptyPage(t *testing.T) {
	rs := newReviewSite(
		htmlResponder(reviewsHTML("enabled", "a1", "a2")),
		htmlResponder(reviewsHTML("enabled", "b1")),
		htmlResponder(reviewsHTML("enabled")),
	)

	got := crawl(t, 0, rs, crawlProduct)

	if got.Reason != StopNoReviews {
		t.Fatalf("reason = %v, want %v", got.Reason, StopNoReviews)
	}
	if got.Pages != 2 {
		t.Fatalf("pages = %d, want 2", got.Pages)
	}
	texts := reviewTexts(got)
	want := []string{"a1", "a2", "b1"}
	if len(texts) != len(want) {
		t.Fatalf("reviews = %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("reviews = %v, want %v", texts, want)
		}
	}
	if rs.fetches[4] != 0 {
		t.Fatalf("fetched past the empty page")
	}
}

func TestCrawlReviewsStopsAtLastPage(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			pages := make([]httpmock.Responder, 0, n)
			for i := 1; i < n; i++ {
				pages = append(pages, htmlResponder(reviewsHTML("enabled", "r"+strconv.Itoa(i))))
			}
			pages = append(pages, htmlResponder(reviewsHTML("disabled", "last")))
			rs := newReviewSite(pages...)

			got := crawl(t, 0, rs, crawlProduct)

			if got.Reason != StopLastPage {
				t.Fatalf("reason = %v, want %v", got.Reason, StopLastPage)
			}
			if rs.total() != n {
				t.Fatalf("fetches = %d, want %d", rs.total(), n)
			}
			if len(got.Reviews) != n {
				t.Fatalf("reviews = %d, want %d", len(got.Reviews), n)
			}
		})
	}
}

func TestCrawlReviewsWithoutPagination(t *testing.T) {
	rs := newReviewSite(htmlResponder(reviewsHTML("", "only")))

	got := crawl(t, 0, rs, crawlProduct)

	if got.Reason != StopLastPage || rs.total() != 1 {
		t.Fatalf("reason = %v fetches = %d, want last_page after 1", got.Reason, rs.total())
	}
}

func TestCrawlReviewsPageLimit(t *testing.T) {
	rs := newReviewSite(htmlResponder(reviewsHTML("enabled", "again")))

	got := crawl(t, 3, rs, crawlProduct)

	if got.Reason != StopPageLimit {
		t.Fatalf("reason = %v, want %v", got.Reason, StopPageLimit)
	}
	if rs.total() != 3 || len(got.Reviews) != 3 {
		t.Fatalf("fetches = %d reviews = %d, want 3/3", rs.total(), len(got.Reviews))
	}
}

func TestCrawlReviewsKeepsReviewsOnFetchFailure(t *testing.T) {
	rs := newReviewSite(
		htmlResponder(reviewsHTML("enabled", "kept")),
		httpmock.NewStringResponder(http.StatusBadGateway, ""),
		htmlResponder(reviewsHTML("disabled", "never")),
	)

	got := crawl(t, 0, rs, crawlProduct)

	if got.Reason != StopFetchFailed {
		t.Fatalf("reason = %v, want %v", got.Reason, StopFetchFailed)
	}
	if texts := reviewTexts(got); len(texts) != 1 || texts[0] != "kept" {
		t.Fatalf("reviews = %v, want [kept]", texts)
	}
	if rs.fetches[3] != 0 {
		t.Fatalf("crawl continued after a failed page")
	}
}

func TestCrawlReviewsDropsProductQuery(t *testing.T) {
	rs := newReviewSite(htmlResponder(reviewsHTML("disabled", "x")))

	got := crawl(t, 0, rs, crawlProduct+"?variant=7#tabs")

	if rs.fetches[1] != 1 || len(got.Reviews) != 1 {
		t.Fatalf("fetches = %v reviews = %d", rs.fetches, len(got.Reviews))
	}
}

func TestCrawlReviewsCanceled(t *testing.T) {
	rs := newReviewSite(htmlResponder(reviewsHTML("enabled", "x")))
	cfg := testConfig()
	h := newTestHarvester(t, cfg, rs.transport)
	sess, err := NewSession(cfg, WithTransport(rs.transport))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := h.CrawlReviews(ctx, sess, crawlProduct)
	if got.Reason != StopCanceled || rs.total() != 0 {
		t.Fatalf("reason = %v fetches = %d, want canceled before any fetch", got.Reason, rs.total())
	}
}

// stamped records when r was called.
func stamped(r httpmock.Responder, at *[]time.Time) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		*at = append(*at, time.Now())
		return r(req)
	}
}

func TestCrawlReviewsPausesBetweenPages(t *testing.T) {
	const delay = 20 * time.Millisecond
	var at []time.Time
	rs := newReviewSite(
		stamped(htmlResponder(reviewsHTML("enabled", "p1")), &at),
		stamped(htmlResponder(reviewsHTML("enabled", "p2")), &at),
		stamped(htmlResponder(reviewsHTML("disabled", "p3")), &at),
	)
	cfg := testConfig()
	cfg.ReviewPageDelay = delay
	h := newTestHarvester(t, cfg, rs.transport)
	sess, err := NewSession(cfg, WithTransport(rs.transport))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Close()

	start := time.Now()
	got := h.CrawlReviews(context.Background(), sess, crawlProduct)
	elapsed := time.Since(start)

	if got.Reason != StopLastPage || len(at) != 3 {
		t.Fatalf("reason = %v fetches = %d, want last_page after 3", got.Reason, len(at))
	}
	if elapsed < 2*delay {
		t.Fatalf("elapsed = %v, want at least %v", elapsed, 2*delay)
	}
	for i := 1; i < len(at); i++ {
		if gap := at[i].Sub(at[i-1]); gap < delay {
			t.Fatalf("gap before page %d = %v, want at least %v", i+1, gap, delay)
		}
	}
}

func TestCrawlReviewsCanceledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rs := newReviewSite(func(req *http.Request) (*http.Response, error) {
		cancel()
		return htmlResponder(reviewsHTML("enabled", "first"))(req)
	})
	cfg := testConfig()
	cfg.ReviewPageDelay = time.Minute
	h := newTestHarvester(t, cfg, rs.transport)
	sess, err := NewSession(cfg, WithTransport(rs.transport))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Close()

	got := h.CrawlReviews(ctx, sess, crawlProduct)

	if got.Reason != StopCanceled {
		t.Fatalf("reason = %v, want %v", got.Reason, StopCanceled)
	}
	if texts := reviewTexts(got); len(texts) != 1 || texts[0] != "first" {
		t.Fatalf("reviews = %v, want [first]", texts)
	}
}
