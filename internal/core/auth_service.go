package core

import (
	"go.uber.org/zap"

	"github.com/jacquesmats/CloneGPT/internal/auth"
	"github.com/jacquesmats/CloneGPT/internal/store"
	apperrors "github.com/jacquesmats/CloneGPT/pkg/errors"
)

// AuthService owns registration, credential checks and the opaque
// bearer tokens. Every token maps 1:1 to a user and lives until logout.
type AuthService struct {
	dbStore *store.SQLiteStore
	logger  *zap.Logger
}

func NewAuthService(db *store.SQLiteStore, logger *zap.Logger) *AuthService {
	return &AuthService{dbStore: db, logger: logger}
}

func (s *AuthService) Register(username, email, password string) (*store.User, string, error) {
	if username == "" {
		return nil, "", apperrors.ErrUsernameRequired
	}
	if password == "" {
		return nil, "", apperrors.ErrPasswordRequired
	}

	existing, err := s.dbStore.GetUserByUsername(username)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeInternal, "failed to check username", err)
	}
	if existing != nil {
		return nil, "", apperrors.ErrUsernameTaken
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeInternal, "failed to hash password", err)
	}

	user, err := s.dbStore.CreateUser(username, email, passwordHash)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeInternal, "failed to create user", err)
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login never reveals whether the username exists: every failure path
// reports the same "invalid credentials".
func (s *AuthService) Login(username, password string) (*store.User, string, error) {
	if username == "" || password == "" {
		return nil, "", apperrors.InvalidArg("please provide both username and password")
	}

	user, err := s.dbStore.GetUserByUsername(username)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeInternal, "failed to query user", err)
	}
	if user == nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, "", apperrors.ErrInvalidCredentials
	}

	// Reuse the existing token when the user already has one.
	token, err := s.dbStore.GetTokenByUserID(user.ID)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeInternal, "failed to look up token", err)
	}
	if token == "" {
		token, err = s.issueToken(user.ID)
		if err != nil {
			return nil, "", err
		}
	}
	return user, token, nil
}

func (s *AuthService) Logout(token string) error {
	if token == "" {
		return apperrors.ErrInvalidToken
	}
	deleted, err := s.dbStore.DeleteToken(token)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to delete token", err)
	}
	if !deleted {
		return apperrors.ErrInvalidToken
	}
	return nil
}

// Authenticate resolves a bearer token to its user. It is the
// precondition of every owner-scoped operation.
func (s *AuthService) Authenticate(token string) (*store.User, error) {
	if token == "" {
		return nil, apperrors.ErrInvalidToken
	}
	user, err := s.dbStore.GetUserByToken(token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to resolve token", err)
	}
	if user == nil {
		return nil, apperrors.ErrInvalidToken
	}
	return user, nil
}

func (s *AuthService) issueToken(userID int64) (string, error) {
	key, err := auth.GenerateTokenKey()
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "failed to generate token", err)
	}
	if err := s.dbStore.CreateToken(key, userID); err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "failed to store token", err)
	}
	return key, nil
}
