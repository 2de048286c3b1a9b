// Package models defines data structures for the harvester.
package models

import "time"

// UserProfile is the signed-in account as shown on the profile page.
// Optional fields are nil when the page leaves them blank.
type UserProfile struct {
	Email     string  `json:"email" bson:"email"`
	FirstName *string `json:"first_name,omitempty" bson:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty" bson:"last_name,omitempty"`
	City      *string `json:"city,omitempty" bson:"city,omitempty"`
}

// Product represents one wishlisted item with its product page data.
type Product struct {
	ItemName       string   `csv:"item_name" json:"item_name" bson:"item_name"`
	RetailPrice    float64  `csv:"retail_price" json:"retail_price" bson:"retail_price"`
	WholesalePrice float64  `csv:"wholesale_price" json:"wholesale_price" bson:"wholesale_price"`
	Rating         float64  `csv:"rating" json:"rating" bson:"rating"`
	ProductURL     string   `csv:"product_url" json:"product_url" bson:"product_url"`
	ReviewCount    int      `csv:"review_count" json:"review_count" bson:"review_count"`
	StoreCount     int      `csv:"store_count" json:"store_count" bson:"store_count"`
	Reviews        []Review `csv:"-" json:"reviews" bson:"reviews"`
}

// Review is a single discussion post from a product's review thread.
type Review struct {
	Username   *string    `json:"username,omitempty" bson:"username,omitempty"`
	Rating     float64    `json:"rating" bson:"rating"`
	ReviewDate *time.Time `json:"review_date,omitempty" bson:"review_date,omitempty"`
	ReviewText string     `json:"review_text" bson:"review_text"`
}

// HarvestResult holds the outcome of one harvest run.
type HarvestResult struct {
	User     UserProfile
	Products []*Product

	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
}
