package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drowsyguard/backend/internal/models"
)

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, username, email, password_hash, full_name, COALESCE(phone,''),
		created_at, updated_at FROM users WHERE id = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.FullName, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByUsername returns a user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	const q = `SELECT id, username, email, password_hash, full_name, COALESCE(phone,''),
		created_at, updated_at FROM users WHERE username = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, username).
		Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.FullName, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, username, email, password_hash, full_name, COALESCE(phone,''),
		created_at, updated_at FROM users WHERE email = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, email).
		Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.FullName, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, username, email, passwordHash, fullName, phone string) (*models.User, error) {
	const q = `INSERT INTO users (username, email, password_hash, full_name, phone)
		VALUES ($1, $2, $3, $4, NULLIF($5,''))
		RETURNING id, username, email, password_hash, full_name, COALESCE(phone,''), created_at, updated_at`
	var u models.User
	err := r.pool.QueryRow(ctx, q, username, email, passwordHash, fullName, phone).
		Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.FullName, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile updates the mutable profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, phone string) (*models.User, error) {
	const q = `UPDATE users SET full_name = $2, phone = NULLIF($3,''), updated_at = NOW()
		WHERE id = $1
		RETURNING id, username, email, password_hash, full_name, COALESCE(phone,''), created_at, updated_at`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id, fullName, phone).
		Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.FullName, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
