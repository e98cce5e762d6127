package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"studyplan/internal/domain"
)

const (
	DefaultTokenTTL = 7 * 24 * time.Hour
	issuer          = "studyplan"
)

// Accounts is the slice of the store the provider needs.
type Accounts interface {
	CreateAccount(ctx context.Context, a domain.Account) error
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)
	GetAccount(ctx context.Context, id string) (domain.Account, error)
}

// Provider implements email/password accounts with bcrypt hashes and HS256 tokens.
type Provider struct {
	Accounts Accounts
	Secret   string
	TokenTTL time.Duration
	Cost     int
	Now      func() time.Time
}

type Credentials struct {
	Token     string    `json:"token"`
	Owner     string    `json:"owner"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at" format:"date-time"`
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

type signupInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (p Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Provider) configured() error {
	if strings.TrimSpace(p.Secret) == "" {
		return fmt.Errorf("auth.jwt_secret: %w", domain.ErrNotConfigured)
	}
	if p.Accounts == nil {
		return fmt.Errorf("account store: %w", domain.ErrNotConfigured)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p Provider) SignUp(ctx context.Context, email, password string) (Credentials, error) {
	if err := p.configured(); err != nil {
		return Credentials{}, err
	}
	email = normalizeEmail(email)
	if err := domain.ValidateStruct(signupInput{Email: email, Password: password}); err != nil {
		return Credentials{}, err
	}
	cost := p.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return Credentials{}, fmt.Errorf("hash password: %w", err)
	}
	acct := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.Accounts.CreateAccount(ctx, acct); err != nil {
		return Credentials{}, err
	}
	return p.credentials(acct)
}

func (p Provider) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	if err := p.configured(); err != nil {
		return Credentials{}, err
	}
	acct, err := p.Accounts.GetAccountByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return Credentials{}, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return Credentials{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return Credentials{}, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
	}
	return p.credentials(acct)
}

func (p Provider) credentials(acct domain.Account) (Credentials, error) {
	token, exp, err := p.Issue(acct.ID, acct.Email)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Token: token, Owner: acct.ID, Email: acct.Email, ExpiresAt: exp}, nil
}

// Issue signs a token whose subject is the owner key.
func (p Provider) Issue(owner, email string) (string, time.Time, error) {
	if strings.TrimSpace(p.Secret) == "" {
		return "", time.Time{}, fmt.Errorf("auth.jwt_secret: %w", domain.ErrNotConfigured)
	}
	ttl := p.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := p.now()
	exp := now.Add(ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
	})
	signed, err := tok.SignedString([]byte(p.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify returns the owner key carried by a valid token.
func (p Provider) Verify(token string) (string, error) {
	if strings.TrimSpace(p.Secret) == "" {
		return "", fmt.Errorf("auth.jwt_secret: %w", domain.ErrNotConfigured)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(p.now),
	)
	c := &claims{}
	parsed, err := parser.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return []byte(p.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("token subject missing: %w", domain.ErrUnauthorized)
	}
	return c.Subject, nil
}
