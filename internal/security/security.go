// Package security covers credential hashing, session tokens, password
// reset tokens and invitation codes for privileged registration.
package security

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/errors"
)

const (
	// resetTokenTTL bounds how long a password reset link stays valid.
	resetTokenTTL = time.Hour

	// InvitationValidity is how long a freshly issued invitation code can be
	// redeemed.
	InvitationValidity = 30 * 24 * time.Hour

	invitationPrefix    = "GOV"
	invitationSuffixLen = 8
	invitationAlpha     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Manager owns the secret material and the transient token state.
type Manager struct {
	jwtSecret   []byte
	tokenTTL    time.Duration
	bcryptCost  int
	resetTokens *gocache.Cache
}

// NewManager builds a manager from the security settings.
func NewManager(settings *conf.Settings) (*Manager, error) {
	secret := settings.Security.JWTSecret
	if secret == "" {
		return nil, errors.Newf("jwt secret is not configured").
			Component("security").
			Category(errors.CategoryConfiguration).
			Build()
	}
	ttl := settings.Security.TokenTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	cost := settings.Security.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Manager{
		jwtSecret:   []byte(secret),
		tokenTTL:    ttl,
		bcryptCost:  cost,
		resetTokens: gocache.New(resetTokenTTL, 10*time.Minute),
	}, nil
}

// HashPassword derives a bcrypt hash for storage.
func (m *Manager) HashPassword(password string) (string, error) {
	if len(password) < 6 {
		return "", errors.ValidationError("password", "must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.bcryptCost)
	if err != nil {
		return "", errors.New(err).
			Component("security").
			Category(errors.CategoryAuthentication).
			Build()
	}
	return string(hash), nil
}

// CheckPassword compares a candidate password against a stored hash.
func (m *Manager) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Claims is the JWT payload issued at login.
type Claims struct {
	UserID           uint   `json:"uid"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	JurisdictionArea string `json:"jurisdiction_area,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token for the given account attributes.
func (m *Manager) IssueToken(userID uint, email, role, jurisdictionArea string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:           userID,
		Email:            email,
		Role:             role,
		JurisdictionArea: jurisdictionArea,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.jwtSecret)
	if err != nil {
		return "", errors.New(err).
			Component("security").
			Category(errors.CategoryAuthentication).
			Build()
	}
	return signed, nil
}

// VerifyToken validates a session token and returns its claims.
func (m *Manager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = errors.NewStd("token is not valid")
		}
		return nil, errors.New(err).
			Component("security").
			Category(errors.CategoryAuthentication).
			Build()
	}
	return claims, nil
}

// resetRecord links a reset token to the account that requested it.
type resetRecord struct {
	Email  string
	UserID uint
}

// IssueResetToken creates a single-use password reset token that expires
// after an hour.
func (m *Manager) IssueResetToken(userID uint, email string) string {
	token := uuid.New().String()
	m.resetTokens.Set(token, resetRecord{Email: strings.ToLower(email), UserID: userID}, resetTokenTTL)
	return token
}

// ConsumeResetToken redeems a reset token, invalidating it in the process.
func (m *Manager) ConsumeResetToken(token string) (userID uint, email string, err error) {
	value, ok := m.resetTokens.Get(token)
	if !ok {
		return 0, "", errors.Newf("reset token is invalid or expired").
			Component("security").
			Category(errors.CategoryAuthentication).
			Build()
	}
	m.resetTokens.Delete(token)
	record := value.(resetRecord)
	return record.UserID, record.Email, nil
}

// NewInvitationCode generates a fresh invitation code string. Uniqueness is
// enforced by the datastore's unique index, not here.
func NewInvitationCode() string {
	var sb strings.Builder
	sb.Grow(invitationSuffixLen)
	for i := 0; i < invitationSuffixLen; i++ {
		sb.WriteByte(invitationAlpha[rand.IntN(len(invitationAlpha))])
	}
	return invitationPrefix + "-" + sb.String()
}
