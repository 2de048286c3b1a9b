package parser

import (
	"fmt"
	"strings"
	"testing"
)

func productPage(parts ...string) string {
	return "<html><body><div class=\"ty-product-block\">" + strings.Join(parts, "") + "</div></body></html>"
}

func priceBlock(amount, label string) string {
	return fmt.Sprintf(
		`<div class="ty-product-prices"><span class="ty-price"><span class="ty-price-num">%s</span></span><span class="ty-control-group__label two_prices_title">%s цена</span></div>`,
		amount, label,
	)
}

func ratingBlock(full, half, empty int) string {
	var b strings.Builder
	b.WriteString(`<div class="ty-product-block__rating"><span class="ty-nowrap ty-stars">`)
	for i := 0; i < full; i++ {
		b.WriteString(`<i class="ty-stars__icon ty-icon-star"></i>`)
	}
	for i := 0; i < half; i++ {
		b.WriteString(`<i class="ty-stars__icon ty-icon-star-half"></i>`)
	}
	for i := 0; i < empty; i++ {
		b.WriteString(`<i class="ty-stars__icon ty-icon-star-empty"></i>`)
	}
	b.WriteString(`</span></div>`)
	return b.String()
}

func TestRetailPriceWithoutWholesale(t *testing.T) {
	doc := mustDocument(t, productPage(priceBlock("1 234,50 ₽", RetailLabel)))

	retail := RetailPrice(doc)
	if !retail.Found || retail.Err != nil {
		t.Fatalf("retail price not extracted: %+v", retail)
	}
	if got := retail.Or(0); got != 1234.50 {
		t.Fatalf("retail price = %v, want 1234.50", got)
	}

	wholesale := WholesalePrice(doc)
	if wholesale.Found {
		t.Fatalf("wholesale price should be missing, got %+v", wholesale)
	}
	if got := wholesale.Or(0); got != 0 {
		t.Fatalf("wholesale fallback = %v, want 0", got)
	}
}

func TestBothPrices(t *testing.T) {
	doc := mustDocument(t, productPage(
		priceBlock("2 990", RetailLabel),
		priceBlock("2 450", WholesaleLabel),
	))

	if got := RetailPrice(doc).Or(0); got != 2990 {
		t.Errorf("retail = %v, want 2990", got)
	}
	if got := WholesalePrice(doc).Or(0); got != 2450 {
		t.Errorf("wholesale = %v, want 2450", got)
	}
}

func TestPriceWithoutDigitsFails(t *testing.T) {
	doc := mustDocument(t, productPage(priceBlock("по запросу", RetailLabel)))
	field := RetailPrice(doc)
	if !field.Found || field.Err == nil {
		t.Fatalf("expected parse failure, got %+v", field)
	}
	if got := field.Or(0); got != 0 {
		t.Fatalf("fallback = %v, want 0", got)
	}
}

func TestRating(t *testing.T) {
	tests := []struct {
		name              string
		full, half, empty int
		expected          float64
	}{
		{name: "four and a half", full: 4, half: 1, empty: 0, expected: 4.5},
		{name: "three with empties", full: 3, half: 0, empty: 2, expected: 3.0},
		{name: "no stars lit", full: 0, half: 0, empty: 5, expected: 0},
		{name: "capped at five", full: 6, half: 1, empty: 0, expected: 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDocument(t, productPage(ratingBlock(tt.full, tt.half, tt.empty)))
			field := Rating(doc)
			if !field.Found {
				t.Fatalf("rating block not found")
			}
			if field.Value != tt.expected {
				t.Errorf("rating = %v, want %v", field.Value, tt.expected)
			}
		})
	}
}

func TestRatingIgnoresStarsOutsideBlock(t *testing.T) {
	doc := mustDocument(t, productPage(`<i class="ty-icon-star"></i><i class="ty-icon-star"></i>`))
	field := Rating(doc)
	if field.Found {
		t.Fatalf("rating should be missing without a rating block, got %+v", field)
	}
}

func TestReviewCount(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		found    bool
		expected int
	}{
		{
			name:     "count in link",
			html:     `<a class="ty-discussion__review-a cm-external-click">12 Отзывов</a>`,
			found:    true,
			expected: 12,
		},
		{
			name:     "other link ignored",
			html:     `<a class="ty-discussion__review-a">Написать отзыв</a><a class="ty-discussion__review-a">Отзывы (3)</a>`,
			found:    true,
			expected: 3,
		},
		{
			name:     "no link",
			html:     `<p>Нет отзывов</p>`,
			found:    false,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := ReviewCount(mustDocument(t, productPage(tt.html)))
			if field.Found != tt.found {
				t.Fatalf("found = %v, want %v", field.Found, tt.found)
			}
			if got := field.Or(0); got != tt.expected {
				t.Errorf("review count = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestStoreCount(t *testing.T) {
	html := productPage(
		`<table>`,
		`<tr><td>Москва</td><td><img src="/images/avail_full.png"></td></tr>`,
		`<tr><td>Казань</td><td><img src="/images/avail_few.png"></td></tr>`,
		`<tr><td>Сочи</td><td><img src="/images/avail_zero_cross.png"></td></tr>`,
		`<tr><td>Логотип</td><td><img src="/images/logo.png"></td></tr>`,
		`</table>`,
	)
	field := StoreCount(mustDocument(t, html))
	if got := field.Or(-1); got != 2 {
		t.Fatalf("store count = %d, want 2", got)
	}
}
