package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"task-collab/common"
	"task-collab/entity"
)

type userRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    int64  `db:"created_at"`
}

func (r userRow) toEntity() entity.User {
	return entity.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    fromMillis(r.CreatedAt),
	}
}

const userColumns = "id, name, email, password_hash, created_at"

func (s *Store) FindUserByID(ctx context.Context, id string) (entity.User, error) {
	return s.findUser(ctx, "id", id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (entity.User, error) {
	return s.findUser(ctx, "email", email)
}

func (s *Store) findUser(ctx context.Context, column, value string) (entity.User, error) {
	var row userRow
	err := s.q.QueryRowxContext(ctx,
		fmt.Sprintf("SELECT %s FROM users WHERE %s = ?", userColumns, column), value,
	).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.User{}, fmt.Errorf("user: %w", common.ErrNotFound)
	}
	if err != nil {
		return entity.User{}, common.StoreError("find user", err)
	}
	return row.toEntity(), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]entity.User, error) {
	rows := []userRow{}
	if err := sqlxSelect(ctx, s, &rows, "SELECT "+userColumns+" FROM users ORDER BY name ASC"); err != nil {
		return nil, common.StoreError("list users", err)
	}
	users := make([]entity.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toEntity())
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, u *entity.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Name, u.Email, u.PasswordHash, toMillis(u.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, common.ErrConflict)
	}
	if err != nil {
		return common.StoreError("create user", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *entity.User) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE users SET name = ?, email = ?, password_hash = ? WHERE id = ?",
		u.Name, u.Email, u.PasswordHash, u.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, common.ErrConflict)
	}
	if err != nil {
		return common.StoreError("update user", err)
	}
	return expectAffected(res, "user")
}
