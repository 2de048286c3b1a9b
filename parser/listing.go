package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"

	"github.com/aluiziolira/go-wishlist-harvester/models"
)

// ErrMissingEmail is returned when the profile page has no email field.
var ErrMissingEmail = errors.New("parser: profile has no email")

// Profile form inputs by element id.
const (
	emailInput     = "input#email"
	firstNameInput = "input#elm_15"
	lastNameInput  = "input#elm_17"
	cityInput      = "input#elm_23"
)

// leafItemExpr matches grid items that do not wrap another grid item.
var leafItemExpr = xpath.MustCompile(
	`//div[contains(@class, "ty-grid-list__item") and not(.//div[contains(@class, "ty-grid-list__item")])]`,
)

// FavoriteItem is one wishlist entry.
type FavoriteItem struct {
	Name string
	URL  string
}

// FavoriteItems lists the leaf items of the wishlist grid. Items whose name
// or link cannot be read are reported in errs and left out.
func FavoriteItems(doc *Document) (items []FavoriteItem, errs []error) {
	for i, node := range htmlquery.QuerySelectorAll(doc.Root, leafItemExpr) {
		title := doc.FindNodes(node).Find("a.product-title").First()

		name := CollapseWhitespace(title.Text())
		if name == "" {
			errs = append(errs, fmt.Errorf("wishlist item %d: missing title", i))
			continue
		}
		href, _ := title.Attr("href")
		link, err := doc.Resolve(href)
		if err != nil {
			errs = append(errs, fmt.Errorf("wishlist item %d (%s): %w", i, name, err))
			continue
		}
		items = append(items, FavoriteItem{Name: name, URL: link})
	}
	return items, errs
}

// ParseProfile reads the account form of the profile page.
func ParseProfile(doc *Document) (models.UserProfile, error) {
	email := strings.TrimSpace(doc.Find(emailInput).First().AttrOr("value", ""))
	if email == "" {
		return models.UserProfile{}, ErrMissingEmail
	}
	return models.UserProfile{
		Email:     email,
		FirstName: optionalInput(doc, firstNameInput),
		LastName:  optionalInput(doc, lastNameInput),
		City:      optionalInput(doc, cityInput),
	}, nil
}

func optionalInput(doc *Document, selector string) *string {
	value, ok := doc.Find(selector).First().Attr("value")
	if !ok {
		return nil
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
