package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/config"
	"github.com/stemsi/checkio-backend/internal/model"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalidated = errors.New("session invalidated")
)

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	Role   model.Role `json:"role"`
	UserID string     `json:"user_id"`
}

// Actor returns the caller identity carried by the token.
func (c *Claims) Actor() Actor {
	return Actor{UserID: c.UserID, Role: c.Role}
}

// Actor is whoever performs an operation.
type Actor struct {
	UserID string
	Role   model.Role
}

// IsStaff reports whether the actor is an admin or a teacher.
func (a Actor) IsStaff() bool {
	return a.Role == model.RoleAdmin || a.Role == model.RoleTeacher
}

// SessionStore remembers which token ids are signed in.
type SessionStore interface {
	Save(ctx context.Context, jti, userID string, ttl time.Duration) error
	Lookup(ctx context.Context, jti string) (string, error)
	Delete(ctx context.Context, jti string) error
}

// RedisSessionStore keeps sessions under config.CacheKey.SessionKey.
type RedisSessionStore struct {
	rdb *redis.Client
}

// NewRedisSessionStore creates a new RedisSessionStore.
func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

func (s *RedisSessionStore) Save(ctx context.Context, jti, userID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, config.CacheKey.SessionKey(jti), userID, ttl).Err()
}

// Lookup returns the user id of a live session, or "" when there is none.
func (s *RedisSessionStore) Lookup(ctx context.Context, jti string) (string, error) {
	v, err := s.rdb.Get(ctx, config.CacheKey.SessionKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *RedisSessionStore) Delete(ctx context.Context, jti string) error {
	return s.rdb.Del(ctx, config.CacheKey.SessionKey(jti)).Err()
}

// UserFinder resolves users for sign-in.
type UserFinder interface {
	GetByPIN(ctx context.Context, pin string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// AuthService handles PIN sign-in, JWT, and session management.
type AuthService struct {
	cfg      *config.Config
	users    UserFinder
	sessions SessionStore
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, users UserFinder, sessions SessionStore) *AuthService {
	return &AuthService{cfg: cfg, users: users, sessions: sessions, now: time.Now}
}

// VerifyPin signs a user in. The PIN must be exactly four digits; nothing
// is looked up otherwise.
func (s *AuthService) VerifyPin(ctx context.Context, pin string) (*model.Session, error) {
	if !pinPattern.MatchString(pin) {
		return nil, apperror.Validation("pin", "PIN must be 4 digits")
	}

	user, err := s.users.GetByPIN(ctx, pin)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return s.issue(ctx, user)
}

func (s *AuthService) issue(ctx context.Context, user *model.User) (*model.Session, error) {
	jti := uuid.New().String()
	now := s.now()
	expires := now.Add(s.cfg.JWTExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role:   user.Role,
		UserID: user.ID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	// Store session with same expiry as JWT.
	if err := s.sessions.Save(ctx, jti, user.ID, s.cfg.JWTExpiry); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &model.Session{
		Token:     signed,
		UserID:    user.ID,
		Role:      user.Role,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		ExpiresAt: expires.Unix(),
	}, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if !claims.Role.Valid() || claims.UserID == "" {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ValidateSession checks that the token's JTI is still signed in.
func (s *AuthService) ValidateSession(ctx context.Context, claims *Claims) error {
	userID, err := s.sessions.Lookup(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if userID != claims.UserID {
		return ErrSessionInvalidated
	}
	return nil
}

// Session restores the signed-in identity behind claims.
func (s *AuthService) Session(ctx context.Context, claims *Claims) (*model.Session, error) {
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrSessionInvalidated
		}
		return nil, err
	}

	sess := &model.Session{
		UserID:    user.ID,
		Role:      user.Role,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return sess, nil
}

// Logout revokes the token's session.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	return s.sessions.Delete(ctx, claims.ID)
}
