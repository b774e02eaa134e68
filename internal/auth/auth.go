// Package auth signs users up and in, issues session tokens and carries the
// signed-in user on request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/validate"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
)

type Option func(*Authenticator)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(a *Authenticator) { a.cost = cost }
}

// WithClock overrides time.Now for token issue and expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

type Authenticator struct {
	store  remote.Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

func NewAuthenticator(store remote.Store, secret string, ttl time.Duration, opts ...Option) *Authenticator {
	a := &Authenticator{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type SignUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

func (a *Authenticator) SignUp(ctx context.Context, req SignUpRequest) (*domain.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	n, err := a.store.Count(ctx, remote.TableUsers, remote.Eq("email", req.Email))
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if n > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		CreatedAt:    a.now().UTC(),
	}
	if err := a.store.Insert(ctx, remote.TableUsers, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

// SignIn checks the password and returns a signed session token.
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (string, *domain.User, error) {
	var users []domain.User
	q := remote.Where(remote.Eq("email", strings.ToLower(strings.TrimSpace(email)))).Page(1, 0)
	if err := a.store.Select(ctx, remote.TableUsers, q, &users); err != nil {
		return "", nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if len(users) == 0 {
		return "", nil, ErrInvalidCredentials
	}
	user := users[0]
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := a.IssueToken(user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// IssueToken signs an HS256 token whose subject is userID.
func (a *Authenticator) IssueToken(userID string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token and returns its subject.
func (a *Authenticator) ParseToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", &NotAuthenticatedError{Op: "parse token"}
	}
	if claims.Subject == "" {
		return "", &NotAuthenticatedError{Op: "parse token"}
	}
	return claims.Subject, nil
}

// Authenticate resolves a token to its user.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	id, err := a.ParseToken(token)
	if err != nil {
		return nil, err
	}
	var user domain.User
	found, err := a.store.Get(ctx, remote.TableUsers, id, &user)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !found {
		return nil, &NotAuthenticatedError{Op: "authenticate"}
	}
	return &user, nil
}

// LookupUser finds a user by id or, failing that, by email.
func (a *Authenticator) LookupUser(ctx context.Context, idOrEmail string) (*domain.User, error) {
	var user domain.User
	found, err := a.store.Get(ctx, remote.TableUsers, idOrEmail, &user)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if found {
		return &user, nil
	}
	var users []domain.User
	q := remote.Where(remote.Eq("email", strings.ToLower(strings.TrimSpace(idOrEmail)))).Page(1, 0)
	if err := a.store.Select(ctx, remote.TableUsers, q, &users); err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if len(users) == 0 {
		return nil, &NotAuthenticatedError{Op: "lookup user " + idOrEmail}
	}
	return &users[0], nil
}
