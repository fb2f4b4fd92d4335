package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-meet/backend/internal/models"
)

// MemoryRepository keeps users in process memory for STORE_DRIVER=memory.
type MemoryRepository struct {
	mu      sync.Mutex
	byEmail map[string]models.User
}

// NewMemoryRepository creates an empty user store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byEmail: make(map[string]models.User)}
}

// GetByEmail returns a user by email.
func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

// Create inserts a new user.
func (r *MemoryRepository) Create(_ context.Context, email, passwordHash, firstName, lastName string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	u := models.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  passwordHash,
		FirstName: firstName,
		LastName:  lastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.byEmail[email] = u
	return &u, nil
}
