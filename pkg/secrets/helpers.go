package secrets

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// LoadString loads a secret as a string, returning fallback when the backend
// has no value for key
func LoadString(ctx context.Context, m Manager, key, fallback string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("⚠️  Failed to load secret %s: %v", key, err)
		}
		return fallback
	}
	return value
}

// LoadStringRequired loads a required secret (fails if not found)
func LoadStringRequired(ctx context.Context, m Manager, key string) (string, error) {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		return "", fmt.Errorf("required secret %s not found: %w", key, err)
	}
	if value == "" {
		return "", fmt.Errorf("required secret %s is empty", key)
	}
	return value, nil
}
