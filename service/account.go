package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"task-collab/common"
	"task-collab/entity"
	"task-collab/storage"
)

const minPasswordLen = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfilePatch struct {
	Name  entity.Field[string] `json:"name"`
	Email entity.Field[string] `json:"email"`
}

type AccountService struct {
	users  storage.UserStore
	tokens *common.TokenManager
	cost   int
	log    *zap.Logger
}

func NewAccountService(users storage.UserStore, tokens *common.TokenManager, logger *zap.Logger) *AccountService {
	return &AccountService{users: users, tokens: tokens, cost: bcrypt.DefaultCost, log: logger}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return "", common.NewValidationError("email", "invalid email format")
	}
	return email, nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", common.NewValidationError("name", "is required")
	}
	return name, nil
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (entity.User, error) {
	name, err := validName(in.Name)
	if err != nil {
		return entity.User{}, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return entity.User{}, err
	}
	if len(in.Password) < minPasswordLen {
		return entity.User{}, common.NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return entity.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := entity.User{ID: uuid.NewString(), Name: name, Email: email, PasswordHash: string(hash)}
	if err := s.users.CreateUser(ctx, &u); err != nil {
		return entity.User{}, err
	}
	s.log.Info("user registered", zap.String("userId", u.ID))
	return u, nil
}

// Login checks the credentials and issues a session token. Unknown email and
// wrong password fail the same way.
func (s *AccountService) Login(ctx context.Context, email, password string) (entity.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return entity.User{}, "", common.NewValidationError("credentials", "email and password are required")
	}
	u, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, common.ErrNotFound) {
		return entity.User{}, "", fmt.Errorf("invalid credentials: %w", common.ErrUnauthenticated)
	}
	if err != nil {
		return entity.User{}, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return entity.User{}, "", fmt.Errorf("invalid credentials: %w", common.ErrUnauthenticated)
	}
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return entity.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return u, token, nil
}

// Me resolves the authenticated user. A token for a user that no longer
// exists is treated as unauthenticated.
func (s *AccountService) Me(ctx context.Context, userID string) (entity.User, error) {
	u, err := s.users.FindUserByID(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return entity.User{}, fmt.Errorf("user %s: %w", userID, common.ErrUnauthenticated)
	}
	return u, err
}

// UpdateProfile changes the owner's own name or email.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, p ProfilePatch) (entity.User, error) {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return entity.User{}, err
	}
	if p.Name.Set {
		if u.Name, err = validName(p.Name.Value); err != nil {
			return entity.User{}, err
		}
	}
	if p.Email.Set {
		if u.Email, err = normalizeEmail(p.Email.Value); err != nil {
			return entity.User{}, err
		}
	}
	if err := s.users.UpdateUser(ctx, &u); err != nil {
		return entity.User{}, err
	}
	return u, nil
}

func (s *AccountService) ListUsers(ctx context.Context) ([]entity.UserSummary, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]entity.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}
