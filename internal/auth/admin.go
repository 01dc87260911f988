package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/tableorder/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var ErrAdminNotFound = errors.New("admin not found")

type Admin struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// AdminGetter is the part of the admin repo needed by the auth service
type AdminGetter interface {
	GetByUsername(ctx context.Context, username string) (*Admin, error)
}

type AdminRepo struct {
	db *pgxpool.Pool
}

func NewAdminRepo(db *pgxpool.Pool) *AdminRepo {
	return &AdminRepo{
		db: db,
	}
}

func (r *AdminRepo) GetByUsername(ctx context.Context, username string) (*Admin, error) {
	var admin Admin
	err := r.db.QueryRow(
		ctx,
		`SELECT id, username, password_hash FROM admins WHERE username = $1;`,
		username,
	).Scan(&admin.ID, &admin.Username, &admin.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAdminNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

// EnsureAdmin seeds the admin account on first startup. The admin row is
// immutable afterwards, a concurrent seed losing the insert race is fine.
func (r *AdminRepo) EnsureAdmin(ctx context.Context, username, passwordHash string) error {
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO admins (username, password_hash) VALUES ($1, $2);`,
		username, passwordHash,
	)
	if pkg.IsUniqueViolationError(err) {
		log.Debugf("admin [%s] already seeded", username)
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	log.Printf("admin [%s] seeded", username)
	return nil
}
