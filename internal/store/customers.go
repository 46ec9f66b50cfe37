package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/askhat/go-shop-store/internal/database"
	"github.com/askhat/go-shop-store/internal/models"
)

// validateEmail accepts plain addresses only, no display names or
// angle brackets.
func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return database.ErrInvalidEmail
	}
	if !strings.Contains(email, "@") {
		return database.ErrInvalidEmail
	}
	return nil
}

// slugFromEmail derives the unique customer slug the same way the
// catalog derives URL slugs: lowercase, ASCII, hyphen-separated.
func slugFromEmail(email string) string {
	return slug.Make(email)
}

func RegisterCustomer(ctx context.Context, db *sql.DB, email, fullName, password string, birthDate *time.Time) (*models.Customer, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	customer := &models.Customer{}

	query := `
		INSERT INTO customers (email, full_name, password_hash, slug, birth_date, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, email, full_name, slug, birth_date, created_at`

	err = db.QueryRowContext(ctx, query, email, fullName, string(hash), slugFromEmail(email), birthDate).Scan(
		&customer.ID,
		&customer.Email,
		&customer.FullName,
		&customer.Slug,
		&customer.BirthDate,
		&customer.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, database.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}

	return customer, nil
}

func GetCustomer(ctx context.Context, db *sql.DB, id int64) (*models.Customer, error) {
	return getCustomerBy(ctx, db, "id = $1", id)
}

func GetCustomerByEmail(ctx context.Context, db *sql.DB, email string) (*models.Customer, error) {
	return getCustomerBy(ctx, db, "email = $1", email)
}

func GetCustomerBySlug(ctx context.Context, db *sql.DB, customerSlug string) (*models.Customer, error) {
	return getCustomerBy(ctx, db, "slug = $1", customerSlug)
}

func getCustomerBy(ctx context.Context, db *sql.DB, where string, arg interface{}) (*models.Customer, error) {
	customer := &models.Customer{}

	query := `
		SELECT id, email, full_name, password_hash, slug, birth_date, created_at
		FROM customers
		WHERE ` + where

	err := db.QueryRowContext(ctx, query, arg).Scan(
		&customer.ID,
		&customer.Email,
		&customer.FullName,
		&customer.PasswordHash,
		&customer.Slug,
		&customer.BirthDate,
		&customer.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return customer, nil
}

// Authenticate checks the password against the stored bcrypt hash. An
// unknown email and a wrong password both return ErrInvalidCredentials
// so callers cannot probe which addresses are registered.
func Authenticate(ctx context.Context, db *sql.DB, email, password string) (*models.Customer, error) {
	customer, err := GetCustomerByEmail(ctx, db, email)
	if err != nil {
		if errors.Is(err, database.ErrCustomerNotFound) {
			return nil, database.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(password)); err != nil {
		return nil, database.ErrInvalidCredentials
	}

	return customer, nil
}

func ListCustomers(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count customers: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, email, full_name, slug, birth_date, created_at
		FROM customers
		ORDER BY full_name DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var customer models.Customer
		err := rows.Scan(
			&customer.ID,
			&customer.Email,
			&customer.FullName,
			&customer.Slug,
			&customer.BirthDate,
			&customer.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, customer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(customers, total, page, pageSize), nil
}
