package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
)

// Price labels as printed next to each price on the product page.
const (
	RetailLabel    = "Розничная"
	WholesaleLabel = "Оптовая"
	reviewsLabel   = "Отзыв"
)

var (
	retailPriceExpr    = priceExpr(RetailLabel)
	wholesalePriceExpr = priceExpr(WholesaleLabel)

	firstNumberRegex = regexp.MustCompile(`\d+`)
)

// priceExpr selects the number node of the price that precedes label.
func priceExpr(label string) *xpath.Expr {
	return xpath.MustCompile(fmt.Sprintf(
		`//span[contains(@class, "two_prices_title") and contains(text(), %q)]`+
			`/preceding-sibling::span[@class="ty-price"]//span[@class="ty-price-num"]`,
		label,
	))
}

// RetailPrice extracts the price labelled as retail.
func RetailPrice(doc *Document) Field[float64] {
	return labelledPrice(doc, retailPriceExpr)
}

// WholesalePrice extracts the price labelled as wholesale.
func WholesalePrice(doc *Document) Field[float64] {
	return labelledPrice(doc, wholesalePriceExpr)
}

func labelledPrice(doc *Document, expr *xpath.Expr) Field[float64] {
	node := htmlquery.QuerySelector(doc.Root, expr)
	if node == nil {
		return missing[float64]()
	}
	price, err := ParsePrice(htmlquery.InnerText(node))
	if err != nil {
		return failed[float64](err)
	}
	return found(price)
}

// Rating counts the star icons of the product rating block.
func Rating(doc *Document) Field[float64] {
	block := doc.Find(".ty-product-block__rating")
	if block.Length() == 0 {
		return missing[float64]()
	}

	var full, half int
	block.Find("i").Each(func(_ int, star *goquery.Selection) {
		switch {
		case star.HasClass("ty-icon-star-half"):
			half++
		case star.HasClass("ty-icon-star"):
			full++
		}
	})
	return found(StarRating(full, half))
}

// ReviewCount reads the number embedded in the reviews link.
func ReviewCount(doc *Document) Field[int] {
	link := doc.Find("a.ty-discussion__review-a").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), reviewsLabel)
	}).First()
	if link.Length() == 0 {
		return missing[int]()
	}

	text := strings.TrimSpace(link.Text())
	match := firstNumberRegex.FindString(text)
	if match == "" {
		return failed[int](fmt.Errorf("no count in %q", text))
	}
	count, err := strconv.Atoi(match)
	if err != nil {
		return failed[int](fmt.Errorf("parse review count %q: %w", match, err))
	}
	return found(count)
}

// StoreCount counts availability icons for stores that carry the item.
func StoreCount(doc *Document) Field[int] {
	icons := doc.Find(`img[src*="avail_"]`).Not(`[src*="zero_cross"]`)
	return found(icons.Length())
}
