// Package parser turns storefront pages into typed values.
//
// Every extractor returns a Field that reports whether the page carried
// the value, so callers can collapse it to a documented default instead
// of treating a missing node as a failure.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/aluiziolira/go-wishlist-harvester/models"
)

// ErrNoDigits is returned when price text carries no number at all.
var ErrNoDigits = errors.New("parser: no digits in text")

// Document is a parsed page usable with both CSS selectors and XPath.
type Document struct {
	*goquery.Document
	Root *html.Node
}

// NewDocument parses body once; pageURL is used to resolve relative links.
func NewDocument(body []byte, pageURL *url.URL) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)
	doc.Url = pageURL
	return &Document{Document: doc, Root: root}, nil
}

// Resolve turns href into an absolute URL relative to the page.
func (d *Document) Resolve(href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	if d.Url == nil {
		return href, nil
	}
	abs, err := d.Url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", href, err)
	}
	return abs.String(), nil
}

// Field is an extracted value together with whether it was present.
type Field[T any] struct {
	Value T
	Found bool
	Err   error
}

// Or returns the value when it was found and parsed, fallback otherwise.
func (f Field[T]) Or(fallback T) T {
	if !f.Found || f.Err != nil {
		return fallback
	}
	return f.Value
}

func found[T any](v T) Field[T] {
	return Field[T]{Value: v, Found: true}
}

func missing[T any]() Field[T] {
	return Field[T]{}
}

func failed[T any](err error) Field[T] {
	return Field[T]{Found: true, Err: err}
}

// ParsePrice keeps only digits and the decimal mark of text.
//
// Separators before the first digit or after the last are dropped, so
// "руб." adds nothing. When both '.' and ',' occur the last one is decimal.
// A single '.' is decimal; a single ',' is decimal only when one or two
// digits follow it. Any other separator groups thousands.
func ParsePrice(text string) (float64, error) {
	kept := make([]byte, 0, len(text))
	firstDigit, lastDigit := -1, -1
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			if firstDigit < 0 {
				firstDigit = len(kept)
			}
			lastDigit = len(kept)
		case r == '.' || r == ',':
		default:
			continue
		}
		kept = append(kept, byte(r))
	}
	if lastDigit < 0 {
		return 0, ErrNoDigits
	}
	kept = kept[firstDigit : lastDigit+1]

	lastDot := bytes.LastIndexByte(kept, '.')
	lastComma := bytes.LastIndexByte(kept, ',')
	dots := bytes.Count(kept, []byte{'.'})
	commas := bytes.Count(kept, []byte{','})

	decimalAt := -1
	switch {
	case dots > 0 && commas > 0:
		decimalAt = max(lastDot, lastComma)
	case dots == 1:
		decimalAt = lastDot
	case commas == 1 && len(kept)-lastComma-1 < 3:
		decimalAt = lastComma
	}

	out := make([]byte, 0, len(kept))
	for i, c := range kept {
		switch {
		case c >= '0' && c <= '9':
			out = append(out, c)
		case i == decimalAt:
			out = append(out, '.')
		}
	}

	value, err := strconv.ParseFloat(string(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	return math.Round(value*100) / 100, nil
}

// StarRating sums full and half stars, capped at five, to one decimal.
func StarRating(full, half int) float64 {
	rating := float64(full) + 0.5*float64(half)
	if rating > 5 {
		rating = 5
	}
	if rating < 0 {
		rating = 0
	}
	return math.Round(rating*10) / 10
}

// CollapseWhitespace trims text and folds internal runs of whitespace.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ValidateProduct ensures a harvested product honours the data model.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.ItemName) == "" {
		return fmt.Errorf("product missing name")
	}
	if strings.TrimSpace(p.ProductURL) == "" {
		return fmt.Errorf("product missing url for %s", p.ItemName)
	}
	if p.RetailPrice < 0 || p.WholesalePrice < 0 {
		return fmt.Errorf("negative price for %s", p.ItemName)
	}
	if p.Rating < 0 || p.Rating > 5 || math.Mod(p.Rating*2, 1) != 0 {
		return fmt.Errorf("rating %.2f out of range for %s", p.Rating, p.ItemName)
	}
	if p.ReviewCount < 0 || p.StoreCount < 0 {
		return fmt.Errorf("negative count for %s", p.ItemName)
	}
	for i, r := range p.Reviews {
		if strings.TrimSpace(r.ReviewText) == "" {
			return fmt.Errorf("review %d of %s has no text", i, p.ItemName)
		}
	}
	return nil
}
