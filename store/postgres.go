package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-wishlist-harvester/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id    SERIAL PRIMARY KEY,
	email      VARCHAR(255) UNIQUE NOT NULL,
	first_name VARCHAR(100),
	last_name  VARCHAR(100),
	city       VARCHAR(100)
);
CREATE TABLE IF NOT EXISTS favorites (
	product_id      SERIAL PRIMARY KEY,
	user_id         INTEGER REFERENCES users(user_id) ON DELETE CASCADE,
	item_name       TEXT NOT NULL,
	product_url     TEXT,
	retail_price    NUMERIC(10, 2),
	wholesale_price NUMERIC(10, 2),
	rating          NUMERIC(3, 1),
	review_count    INTEGER,
	store_count     INTEGER
);
CREATE TABLE IF NOT EXISTS reviews (
	comment_id  SERIAL PRIMARY KEY,
	product_id  INTEGER REFERENCES favorites(product_id) ON DELETE CASCADE,
	username    VARCHAR(100),
	rating      NUMERIC(3, 1),
	review_date TIMESTAMP,
	review_text TEXT
);`

var reviewColumns = []string{"product_id", "username", "rating", "review_date", "review_text"}

// Postgres stores harvests in the users, favorites and reviews tables.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the tables if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// SaveUser inserts the profile or refreshes the stored one with the same
// email.
func (s *Postgres) SaveUser(ctx context.Context, user models.UserProfile) (string, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, first_name, last_name, city)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
		SET first_name = EXCLUDED.first_name,
		    last_name  = EXCLUDED.last_name,
		    city       = EXCLUDED.city
		RETURNING user_id`,
		user.Email, user.FirstName, user.LastName, user.City,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert user: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// SaveFavorites replaces the user's favorites and their reviews in one
// transaction.
func (s *Postgres) SaveFavorites(ctx context.Context, userID string, products []*models.Product) error {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadUserID, userID)
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM favorites WHERE user_id = $1`, uid); err != nil {
			return fmt.Errorf("clear favorites: %w", err)
		}

		var rows [][]any
		for _, p := range products {
			var productID int64
			err := tx.QueryRow(ctx, `
				INSERT INTO favorites
				(user_id, item_name, product_url, retail_price, wholesale_price, rating, review_count, store_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING product_id`,
				uid, p.ItemName, p.ProductURL, p.RetailPrice, p.WholesalePrice, p.Rating, p.ReviewCount, p.StoreCount,
			).Scan(&productID)
			if err != nil {
				return fmt.Errorf("insert favorite %q: %w", p.ItemName, err)
			}
			rows = append(rows, reviewRows(productID, p.Reviews)...)
		}

		if len(rows) == 0 {
			return nil
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"reviews"}, reviewColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy reviews: %w", err)
		}
		slog.Debug("reviews stored", slog.Int64("rows", n), slog.Int("products", len(products)))
		return nil
	})
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// reviewRows lays out reviews in reviewColumns order.
func reviewRows(productID int64, reviews []models.Review) [][]any {
	rows := make([][]any, 0, len(reviews))
	for _, r := range reviews {
		rows = append(rows, []any{productID, r.Username, r.Rating, r.ReviewDate, r.ReviewText})
	}
	return rows
}
