package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-wishlist-harvester/config"
	"github.com/aluiziolira/go-wishlist-harvester/models"
	"github.com/aluiziolira/go-wishlist-harvester/parser"
)

// Harvester drives one storefront crawl per Run: sign in, read the
// profile, then visit every wishlisted product in order.
type Harvester struct {
	cfg     *config.Config
	opts    []SessionOption
	Metrics *Metrics
}

// ItemFailure records a wishlist item left out of the result.
type ItemFailure struct {
	Name string
	URL  string
	Err  error
}

// NewHarvester builds a harvester; opts are applied to every session it
// opens.
func NewHarvester(cfg *config.Config, opts ...SessionOption) (*Harvester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Harvester{
		cfg:     cfg,
		opts:    opts,
		Metrics: NewMetrics(),
	}, nil
}

// Login opens a fresh authenticated session for this harvester.
func (h *Harvester) Login(ctx context.Context, username, password string) (*Session, error) {
	opts := append([]SessionOption{WithMetrics(h.Metrics)}, h.opts...)
	return Login(ctx, h.cfg, username, password, opts...)
}

// Run performs a full harvest. Authentication, profile and wishlist
// failures abort the run; failures of single products do not. The session
// is closed before Run returns.
func (h *Harvester) Run(ctx context.Context, username, password string) (*models.HarvestResult, error) {
	start := time.Now()

	sess, err := h.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	profile, err := h.FetchProfile(ctx, sess)
	if err != nil {
		return nil, err
	}

	products, failures, err := h.FetchFavorites(ctx, sess)
	if err != nil {
		return nil, err
	}

	result := &models.HarvestResult{
		User:         profile,
		Products:     products,
		StartTime:    start,
		EndTime:      time.Now(),
		RequestCount: sess.RequestCount(),
		ErrorCount:   sess.ErrorCount(),
		ErrorsByType: make(map[string]int),
	}
	for _, f := range failures {
		result.FailedURLs = append(result.FailedURLs, f.URL)
		result.ErrorsByType[errorTypeLabel(f.Err)]++
	}
	return result, nil
}

// FetchProfile reads the signed-in user's profile page.
func (h *Harvester) FetchProfile(ctx context.Context, sess *Session) (models.UserProfile, error) {
	page, err := sess.Get(ctx, h.cfg.ProfilePath)
	if err != nil {
		return models.UserProfile{}, ErrProfile{Err: err}
	}
	doc, err := page.Document()
	if err != nil {
		return models.UserProfile{}, ErrProfile{Err: err}
	}
	profile, err := parser.ParseProfile(doc)
	if err != nil {
		h.Metrics.IncError("profile")
		return models.UserProfile{}, ErrProfile{Err: err}
	}

	slog.Info("profile fetched", slog.String("email", profile.Email))
	return profile, nil
}

// ListFavorites returns the wishlist entries, skipping unreadable items
// and repeated product links.
func (h *Harvester) ListFavorites(ctx context.Context, sess *Session) ([]parser.FavoriteItem, error) {
	target := h.cfg.WishlistPath + "?nocache=" + strconv.FormatInt(time.Now().UnixNano(), 10)
	page, err := sess.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch wishlist: %w", err)
	}
	doc, err := page.Document()
	if err != nil {
		return nil, fmt.Errorf("parse wishlist: %w", err)
	}

	items, errs := parser.FavoriteItems(doc)
	for _, err := range errs {
		h.Metrics.IncError("listing_item")
		slog.Error("skipping wishlist item", slog.Any("error", err))
	}

	seen, err := lru.New[string, struct{}](h.cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	unique := items[:0]
	for _, item := range items {
		if seen.Contains(item.URL) {
			slog.Debug("duplicate wishlist item", slog.String("url", item.URL))
			continue
		}
		seen.Add(item.URL, struct{}{})
		slog.Info("wishlist item found", slog.String("name", item.Name))
		unique = append(unique, item)
	}
	return unique, nil
}

// FetchFavorites lists the wishlist and fetches every product on it.
// Products that fail are reported in the returned failures.
func (h *Harvester) FetchFavorites(ctx context.Context, sess *Session) ([]*models.Product, []ItemFailure, error) {
	items, err := h.ListFavorites(ctx, sess)
	if err != nil {
		return nil, nil, err
	}

	products := make([]*models.Product, 0, len(items))
	var failures []ItemFailure
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		product, err := h.FetchDetails(ctx, sess, item)
		if err != nil {
			h.Metrics.IncError(errorTypeLabel(err))
			slog.Error("product fetch failed",
				slog.String("name", item.Name),
				slog.String("url", item.URL),
				slog.Any("error", err),
			)
			failures = append(failures, ItemFailure{Name: item.Name, URL: item.URL, Err: err})
			continue
		}
		h.Metrics.IncProducts()
		products = append(products, product)
	}

	slog.Info("wishlist harvested",
		slog.Int("products", len(products)),
		slog.Int("failed", len(failures)),
	)
	return products, failures, nil
}

// FetchDetails fetches one product page and extracts every field. A field
// that cannot be read falls back to its default without failing the
// product; only a failed page fetch does.
func (h *Harvester) FetchDetails(ctx context.Context, sess *Session, item parser.FavoriteItem) (*models.Product, error) {
	page, err := sess.Get(ctx, item.URL)
	if err != nil {
		return nil, err
	}
	doc, err := page.Document()
	if err != nil {
		return nil, fmt.Errorf("parse product page: %w", err)
	}

	product := &models.Product{
		ItemName:       item.Name,
		ProductURL:     item.URL,
		RetailPrice:    fieldOr(h.Metrics, item.URL, "retail_price", parser.RetailPrice(doc), 0, true),
		WholesalePrice: fieldOr(h.Metrics, item.URL, "wholesale_price", parser.WholesalePrice(doc), 0, true),
		Rating:         fieldOr(h.Metrics, item.URL, "rating", parser.Rating(doc), 0, false),
		ReviewCount:    fieldOr(h.Metrics, item.URL, "review_count", parser.ReviewCount(doc), 0, false),
		StoreCount:     fieldOr(h.Metrics, item.URL, "store_count", parser.StoreCount(doc), 0, false),
	}

	crawl := h.CrawlReviews(ctx, sess, item.URL)
	product.Reviews = crawl.Reviews
	slog.Info("product harvested",
		slog.String("name", product.ItemName),
		slog.Int("reviews", len(product.Reviews)),
		slog.Int("review_pages", crawl.Pages),
	)
	return product, nil
}

// fieldOr collapses an extracted field to its fallback. Parse failures are
// always logged; absent fields only when warnMissing is set.
func fieldOr[T any](m *Metrics, productURL, name string, f parser.Field[T], fallback T, warnMissing bool) T {
	switch {
	case f.Err != nil:
		m.IncFallback(name)
		slog.Warn("field parse failed, using default",
			slog.String("field", name),
			slog.String("url", productURL),
			slog.Any("error", f.Err),
		)
	case !f.Found:
		m.IncFallback(name)
		if warnMissing {
			slog.Warn("field not found, using default",
				slog.String("field", name),
				slog.String("url", productURL),
			)
		}
	}
	return f.Or(fallback)
}

// reviewBaseURL drops query and fragment from a product link.
func reviewBaseURL(productURL string) (string, error) {
	u, err := url.Parse(productURL)
	if err != nil {
		return "", err
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String(), nil
}
