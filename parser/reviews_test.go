package parser

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-wishlist-harvester/models"
)

type testPost struct {
	author  string
	rating  string
	date    string
	body    string
	message string
}

func (p testPost) html() string {
	var b strings.Builder
	b.WriteString(`<div class="ty-discussion-post__content ty-mb-l"><div class="ty-discussion-post">`)
	if p.author != "" {
		fmt.Fprintf(&b, `<span class="ty-discussion-post__author">%s</span>`, p.author)
	}
	if p.date != "" {
		fmt.Fprintf(&b, `<span class="ty-discussion-post__date">%s</span>`, p.date)
	}
	if p.rating != "" {
		fmt.Fprintf(&b, `<meta itemprop="ratingValue" content="%s">`, p.rating)
	}
	if p.body != "" {
		fmt.Fprintf(&b, `<meta itemprop="reviewBody" content="%s">`, p.body)
	}
	fmt.Fprintf(&b, `<div class="ty-discussion-post__message">%s</div>`, p.message)
	b.WriteString(`</div></div>`)
	return b.String()
}

func reviewPageHTML(next string, posts ...testPost) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="content_discussion">`)
	for _, p := range posts {
		b.WriteString(p.html())
	}
	b.WriteString(`<div class="ty-pagination">`)
	b.WriteString(next)
	b.WriteString(`</div></div></body></html>`)
	return b.String()
}

func ptr[T any](v T) *T {
	return &v
}

func TestParseReviewPage(t *testing.T) {
	html := reviewPageHTML(
		`<a class="ty-pagination__item ty-pagination__btn ty-pagination__next" href="?page=2">Следующая</a>`,
		testPost{author: "Иван", rating: "5", date: "03.02.2024, 14:05", body: "  Всё отлично  ", message: "ignored"},
		testPost{author: "", rating: "", date: "", message: "\n  Хороший   дисплей,\n яркий  "},
		testPost{author: "Пётр", rating: "4", date: "01.01.2024, 09:00", message: "   "},
	)

	page := ParseReviewPage(mustDocument(t, html))

	if page.Blocks != 3 {
		t.Fatalf("blocks = %d, want 3", page.Blocks)
	}
	if !page.HasNext {
		t.Fatalf("expected next page")
	}
	if page.Skipped != 0 {
		t.Fatalf("skipped = %d, want 0", page.Skipped)
	}

	want := []models.Review{
		{
			Username:   ptr("Иван"),
			Rating:     5,
			ReviewDate: ptr(time.Date(2024, 2, 3, 14, 5, 0, 0, time.UTC)),
			ReviewText: "Всё отлично",
		},
		{
			Rating:     0,
			ReviewText: "Хороший дисплей, яркий",
		},
	}
	if diff := cmp.Diff(want, page.Reviews); diff != "" {
		t.Fatalf("reviews mismatch (-want +got):\n%s", diff)
	}
}

func TestParseReviewPageSkipsBadBlocksOnly(t *testing.T) {
	html := reviewPageHTML(
		`<a class="ty-pagination__next" aria-disabled="true">Следующая</a>`,
		testPost{author: "A", date: "2024-02-03 14:05", message: "wrong date format"},
		testPost{author: "B", rating: "five", message: "bad rating"},
		testPost{author: "C", rating: "3", date: "10.10.2023, 23:59", message: "fine"},
	)

	page := ParseReviewPage(mustDocument(t, html))

	if page.HasNext {
		t.Fatalf("disabled next link should not count as next page")
	}
	if page.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", page.Skipped)
	}
	if len(page.Reviews) != 1 || page.Reviews[0].ReviewText != "fine" {
		t.Fatalf("reviews = %+v, want only the well-formed block", page.Reviews)
	}
}

func TestParseReviewPageEmpty(t *testing.T) {
	page := ParseReviewPage(mustDocument(t, reviewPageHTML("")))
	if page.Blocks != 0 || len(page.Reviews) != 0 || page.HasNext {
		t.Fatalf("empty page parsed as %+v", page)
	}
}

func TestParseReviewPageIgnoresNestedElementClasses(t *testing.T) {
	// Author and message elements share the block's class prefix but are
	// not blocks themselves.
	html := reviewPageHTML("", testPost{author: "Анна", message: "Спасибо"})
	page := ParseReviewPage(mustDocument(t, html))
	if page.Blocks != 1 {
		t.Fatalf("blocks = %d, want 1", page.Blocks)
	}
}

func TestParseReviewPageUnpaddedDate(t *testing.T) {
	html := reviewPageHTML("", testPost{author: "Олег", rating: "4", date: "1.5.2023, 9:05", message: "Норм"})

	page := ParseReviewPage(mustDocument(t, html))

	if page.Skipped != 0 || len(page.Reviews) != 1 {
		t.Fatalf("page = %+v, want one review", page)
	}
	want := time.Date(2023, 5, 1, 9, 5, 0, 0, time.UTC)
	if got := page.Reviews[0].ReviewDate; got == nil || !got.Equal(want) {
		t.Fatalf("date = %v, want %v", got, want)
	}
}
