package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/askhat/go-shop-store/internal/database"
	"github.com/askhat/go-shop-store/internal/models"
)

func AddReview(ctx context.Context, db *sql.DB, productID, customerID int64, rating int, body string) (*models.Review, error) {
	if !models.ValidRating(rating) {
		return nil, database.ErrInvalidRating
	}

	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)",
		productID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return nil, database.ErrProductNotFound
	}

	err = db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)",
		customerID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check customer exists: %w", err)
	}
	if !exists {
		return nil, database.ErrCustomerNotFound
	}

	review := &models.Review{}

	query := `
		INSERT INTO reviews (product_id, customer_id, rating, body, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, product_id, customer_id, rating, body, created_at`

	err = db.QueryRowContext(ctx, query, productID, customerID, rating, body).Scan(
		&review.ID,
		&review.ProductID,
		&review.CustomerID,
		&review.Rating,
		&review.Body,
		&review.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	return review, nil
}

func ListProductReviews(ctx context.Context, db *sql.DB, productID int64) ([]models.Review, error) {
	query := `
		SELECT id, product_id, customer_id, rating, body, created_at
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var review models.Review
		err := rows.Scan(
			&review.ID,
			&review.ProductID,
			&review.CustomerID,
			&review.Rating,
			&review.Body,
			&review.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return reviews, nil
}

// ProductAverageRating returns the mean rating rounded to 2 places, or
// 0 when the product has no reviews yet.
func ProductAverageRating(ctx context.Context, db *sql.DB, productID int64) (decimal.Decimal, error) {
	var avg decimal.Decimal

	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(ROUND(AVG(rating), 2), 0)
		 FROM reviews
		 WHERE product_id = $1`,
		productID).Scan(&avg)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("average rating: %w", err)
	}

	return avg, nil
}
