package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/swapcard/marketplace/internal/domain/accounts"
	"github.com/swapcard/marketplace/internal/domain/admin"
	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/logger"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

type userRepository struct {
	db *bun.DB
}

var (
	_ accounts.Repository = &userRepository{}
	_ admin.Users         = &userRepository{}
)

func NewUserRepository(db *bun.DB) *userRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("create", "users", u.ID)
	res, err := r.db.NewInsert().Model(u).Exec(ctx)
	ql.Done(res, err)
	if isUniqueViolation(err) {
		return apperr.E(apperr.Conflict, "users.Create", errors.New("email is already registered"))
	}
	return lookup("users.Create", err)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	u := new(models.User)
	ql := logger.NewQueryLogger("get", "users", id)
	err := r.db.NewSelect().Model(u).Where("id = ?", id).Scan(ctx)
	ql.Log(err, 1)
	if err != nil {
		return nil, lookup("users.GetByID", err)
	}
	return u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	u := new(models.User)
	err := r.db.NewSelect().Model(u).Where("LOWER(email) = LOWER(?)", email).Scan(ctx)
	if err != nil {
		return nil, lookup("users.GetByEmail", err)
	}
	return u, nil
}

func (r *userRepository) Update(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("update", "users", u.ID)
	res, err := r.db.NewUpdate().
		Model(u).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	ql.Done(res, err)
	if isUniqueViolation(err) {
		return apperr.E(apperr.Conflict, "users.Update", errors.New("email is already registered"))
	}
	return affected("users.Update", res, err)
}

func (r *userRepository) List(ctx context.Context) ([]*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var users []*models.User
	err := r.db.NewSelect().Model(&users).Order("created_at DESC").Scan(ctx)
	return users, lookup("users.List", err)
}

func (r *userRepository) SetVerified(ctx context.Context, id string, verified bool) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("set_verified", "users", id, verified)
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("is_verified = ?", verified).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	ql.Done(res, err)
	if err := affected("users.SetVerified", res, err); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}
