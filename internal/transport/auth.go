package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/repository"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

// CaregiverResolver resolves a caregiver ID from a bearer token.
type CaregiverResolver interface {
	ResolveCaregiver(ctx context.Context, token string) (string, error)
}

// KeyResolver resolves bearer tokens against stored key hashes.
type KeyResolver struct {
	keys repository.APIKeyRepository
}

var _ CaregiverResolver = (*KeyResolver)(nil)

// NewKeyResolver creates a resolver over keys.
func NewKeyResolver(keys repository.APIKeyRepository) *KeyResolver {
	return &KeyResolver{keys: keys}
}

// ResolveCaregiver looks up the caregiver owning token.
func (r *KeyResolver) ResolveCaregiver(ctx context.Context, token string) (string, error) {
	caregiver, err := r.keys.CaregiverForKey(ctx, HashToken(token))
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("resolving api key: %w", err)
	}
	return caregiver, nil
}

// Issue stores token for caregiverID.
func (r *KeyResolver) Issue(ctx context.Context, token, caregiverID, description string) error {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(caregiverID) == "" {
		return fmt.Errorf("token and caregiver are required: %w", ErrUnauthorized)
	}
	return r.keys.Create(ctx, HashToken(token), caregiverID, description)
}

// HashToken returns the stored form of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// AuthMiddleware enforces bearer token authentication and tags the request
// context with the caregiver.
func AuthMiddleware(resolver CaregiverResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			caregiver, err := resolver.ResolveCaregiver(r.Context(), token)
			if err != nil || caregiver == "" {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			ctx := actionlog.WithActor(r.Context(), caregiver)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
