package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/askhat/go-shop-store/internal/database"
	"github.com/askhat/go-shop-store/internal/models"
)

func CreateCategory(ctx context.Context, db *sql.DB, name, description string, parentID *int64) (*models.Category, error) {
	if parentID != nil {
		var exists bool
		err := db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)",
			*parentID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check parent exists: %w", err)
		}
		if !exists {
			return nil, database.ErrCategoryNotFound
		}
	}

	category := &models.Category{}

	query := `
		INSERT INTO categories (name, description, parent_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, description, parent_id`

	err := db.QueryRowContext(ctx, query, name, description, parentID).Scan(
		&category.ID,
		&category.Name,
		&category.Description,
		&category.ParentID,
	)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	return category, nil
}

func GetCategory(ctx context.Context, db *sql.DB, id int64) (*models.Category, error) {
	category := &models.Category{}

	query := `
		SELECT id, name, description, parent_id
		FROM categories
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&category.ID,
		&category.Name,
		&category.Description,
		&category.ParentID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}

	return category, nil
}

func ListRootCategories(ctx context.Context, db *sql.DB) ([]models.Category, error) {
	query := `
		SELECT id, name, description, parent_id
		FROM categories
		WHERE parent_id IS NULL
		ORDER BY name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list root categories: %w", err)
	}
	defer rows.Close()

	return scanCategories(rows)
}

// ListChildCategories is the child index of the tree: all categories
// whose parent key equals parentID, ordered by name like the original
// catalog listing.
func ListChildCategories(ctx context.Context, db *sql.DB, parentID int64) ([]models.Category, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)",
		parentID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check parent exists: %w", err)
	}
	if !exists {
		return nil, database.ErrCategoryNotFound
	}

	query := `
		SELECT id, name, description, parent_id
		FROM categories
		WHERE parent_id = $1
		ORDER BY name`

	rows, err := db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list child categories: %w", err)
	}
	defer rows.Close()

	return scanCategories(rows)
}

func scanCategories(rows *sql.Rows) ([]models.Category, error) {
	var categories []models.Category
	for rows.Next() {
		var category models.Category
		err := rows.Scan(
			&category.ID,
			&category.Name,
			&category.Description,
			&category.ParentID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

// DeleteCategory removes the category and its whole subtree: child
// categories, their products, and the reviews and line items that
// reference those products. Orders that lose items get their totals
// recomputed. Everything runs in one transaction.
func DeleteCategory(ctx context.Context, db *sql.DB, categoryID int64) error {
	return database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		categoryIDs, err := subtreeCategoryIDsTx(ctx, tx, categoryID)
		if err != nil {
			return err
		}
		if len(categoryIDs) == 0 {
			return database.ErrCategoryNotFound
		}

		productIDs, err := categoryProductIDsTx(ctx, tx, categoryIDs)
		if err != nil {
			return err
		}

		var affected []int64
		if len(productIDs) > 0 {
			affected, err = affectedOrderIDsTx(ctx, tx, productIDs)
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx,
				"DELETE FROM reviews WHERE product_id = ANY($1)",
				pq.Array(productIDs))
			if err != nil {
				return fmt.Errorf("delete reviews: %w", err)
			}

			_, err = tx.ExecContext(ctx,
				"DELETE FROM order_items WHERE product_id = ANY($1)",
				pq.Array(productIDs))
			if err != nil {
				return fmt.Errorf("delete order items: %w", err)
			}

			_, err = tx.ExecContext(ctx,
				"DELETE FROM products WHERE id = ANY($1)",
				pq.Array(productIDs))
			if err != nil {
				return fmt.Errorf("delete products: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx,
			"DELETE FROM categories WHERE id = ANY($1)",
			pq.Array(categoryIDs))
		if err != nil {
			return fmt.Errorf("delete categories: %w", err)
		}

		for _, orderID := range affected {
			if _, err := recomputeTotalTx(ctx, tx, orderID); err != nil {
				return err
			}
		}

		return nil
	})
}

func subtreeCategoryIDsTx(ctx context.Context, tx *sql.Tx, rootID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`WITH RECURSIVE subtree AS (
			SELECT id FROM categories WHERE id = $1
			UNION ALL
			SELECT c.id FROM categories c JOIN subtree s ON c.parent_id = s.id
		)
		SELECT id FROM subtree`,
		rootID)
	if err != nil {
		return nil, fmt.Errorf("collect subtree: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan category id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

func categoryProductIDsTx(ctx context.Context, tx *sql.Tx, categoryIDs []int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM products WHERE category_id = ANY($1)",
		pq.Array(categoryIDs))
	if err != nil {
		return nil, fmt.Errorf("list category products: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}
