package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/askhat/go-shop-store/internal/database"
)

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@sub.example.org",
		"u+tag@example.io",
	}
	for _, email := range valid {
		assert.NoError(t, validateEmail(email), email)
	}

	invalid := []string{
		"",
		"plainaddress",
		"@example.com",
		"Jane Doe <jane@example.com>",
		"two words@example.com",
	}
	for _, email := range invalid {
		assert.ErrorIs(t, validateEmail(email), database.ErrInvalidEmail, email)
	}
}

func TestSlugFromEmail(t *testing.T) {
	s := slugFromEmail("Jane.Doe@Example.COM")

	assert.NotEmpty(t, s)
	assert.Equal(t, strings.ToLower(s), s)
	assert.NotContains(t, s, "@")
	assert.NotContains(t, s, ".")
	assert.NotContains(t, s, " ")

	// Derivation must be deterministic so the slug stays a stable key.
	assert.Equal(t, s, slugFromEmail("Jane.Doe@Example.COM"))
}
