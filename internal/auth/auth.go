// Package auth implements the optional local API password. With no password
// set, every request is allowed; once one is set, API and websocket access
// require a bearer token from /auth/login.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/fasttube/fasttube/internal/database"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoPasswordSet      = errors.New("no password has been set")
	ErrPasswordRequired   = errors.New("password is required")
	ErrInvalidToken       = errors.New("invalid token")
)

const tokenExpiry = 24 * time.Hour

const jwtSecretSettingKey = "jwt_secret"

// Service handles authentication operations.
type Service struct {
	db        *database.DB
	jwtSecret []byte
}

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
}

// NewService creates a new auth service. An empty jwtSecret loads the
// persisted secret, generating and storing one on first run so tokens
// survive restarts.
func NewService(db *database.DB, jwtSecret string) (*Service, error) {
	secret := []byte(jwtSecret)

	if len(secret) == 0 {
		var err error
		secret, err = loadOrGenerateSecret(db)
		if err != nil {
			return nil, err
		}
	}

	return &Service{
		db:        db,
		jwtSecret: secret,
	}, nil
}

func loadOrGenerateSecret(db *database.DB) ([]byte, error) {
	ctx := context.Background()

	var value string
	err := db.Conn().QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, jwtSecretSettingKey,
	).Scan(&value)

	switch {
	case err == nil && value != "":
		secret, decErr := hex.DecodeString(value)
		if decErr != nil {
			return nil, fmt.Errorf("failed to decode stored JWT secret: %w", decErr)
		}
		return secret, nil

	case errors.Is(err, sql.ErrNoRows) || (err == nil && value == ""):
		secret := make([]byte, 32)
		if _, randErr := rand.Read(secret); randErr != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", randErr)
		}
		_, insErr := db.Conn().ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			jwtSecretSettingKey, hex.EncodeToString(secret),
		)
		if insErr != nil {
			return nil, fmt.Errorf("failed to persist JWT secret: %w", insErr)
		}
		return secret, nil

	default:
		return nil, fmt.Errorf("failed to load JWT secret: %w", err)
	}
}

// SetPassword sets or updates the authentication password.
func (s *Service) SetPassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.db.Conn().Exec(`
		INSERT INTO auth (id, password_hash, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			password_hash = excluded.password_hash,
			updated_at = CURRENT_TIMESTAMP
	`, string(hash))

	if err != nil {
		return fmt.Errorf("failed to save password: %w", err)
	}

	return nil
}

// ValidatePassword checks if the provided password is correct.
func (s *Service) ValidatePassword(password string) error {
	var hash string
	err := s.db.Conn().QueryRow("SELECT password_hash FROM auth WHERE id = 1").Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoPasswordSet
		}
		return fmt.Errorf("failed to get password: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	return nil
}

// IsPasswordSet returns true if a password has been configured.
func (s *Service) IsPasswordSet() bool {
	var count int
	err := s.db.Conn().QueryRow("SELECT COUNT(*) FROM auth WHERE id = 1").Scan(&count)
	return err == nil && count > 0
}

// GenerateToken creates a new JWT token.
func (s *Service) GenerateToken() (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "fasttube",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
