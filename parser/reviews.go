package parser

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-wishlist-harvester/models"
)

// ReviewDateLayout is the storefront's date-time format for posts.
// Dates carry no zone and are kept as UTC wall-clock values.
const ReviewDateLayout = "2.1.2006, 15:04"

const reviewBlockSelector = "div.ty-discussion-post"

// ReviewPage is the outcome of parsing one review listing page.
type ReviewPage struct {
	Reviews []models.Review
	Blocks  int
	Skipped int
	HasNext bool
}

// ParseReviewPage extracts reviews in document order. Blocks that fail to
// parse are logged and skipped; blocks without text are dropped quietly.
func ParseReviewPage(doc *Document) ReviewPage {
	blocks := doc.Find(reviewBlockSelector)
	page := ReviewPage{
		Blocks:  blocks.Length(),
		HasNext: HasNextPage(doc),
	}

	blocks.Each(func(i int, block *goquery.Selection) {
		review, ok, err := parseReviewBlock(block)
		if err != nil {
			page.Skipped++
			slog.Warn("skipping review block",
				slog.Int("block", i),
				slog.Any("error", err),
			)
			return
		}
		if !ok {
			return
		}
		page.Reviews = append(page.Reviews, review)
	})

	return page
}

// HasNextPage reports whether an enabled "next page" link is present.
func HasNextPage(doc *Document) bool {
	return doc.Find("a.ty-pagination__next:not([aria-disabled])").Length() > 0
}

func parseReviewBlock(block *goquery.Selection) (models.Review, bool, error) {
	var review models.Review

	if author := strings.TrimSpace(block.Find("span.ty-discussion-post__author").First().Text()); author != "" {
		review.Username = &author
	}

	if content, ok := block.Find(`meta[itemprop="ratingValue"]`).First().Attr("content"); ok {
		rating, err := strconv.ParseFloat(strings.TrimSpace(content), 64)
		if err != nil {
			return review, false, fmt.Errorf("parse rating %q: %w", content, err)
		}
		if rating < 0 {
			return review, false, fmt.Errorf("negative rating %q", content)
		}
		review.Rating = rating
	}

	if raw := strings.TrimSpace(block.Find("span.ty-discussion-post__date").First().Text()); raw != "" {
		date, err := time.ParseInLocation(ReviewDateLayout, raw, time.UTC)
		if err != nil {
			return review, false, fmt.Errorf("parse date %q: %w", raw, err)
		}
		review.ReviewDate = &date
	}

	review.ReviewText = reviewText(block)
	if review.ReviewText == "" {
		return review, false, nil
	}
	return review, true, nil
}

func reviewText(block *goquery.Selection) string {
	if body, ok := block.Find(`meta[itemprop="reviewBody"]`).First().Attr("content"); ok {
		return strings.TrimSpace(body)
	}
	message := block.Find("div.ty-discussion-post__message").First()
	if message.Length() == 0 {
		return ""
	}
	return CollapseWhitespace(message.Text())
}
