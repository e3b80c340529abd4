package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// Sessions maps signed tokens to users stored in the content store.
// The token's subject is the session id; the user lives under session:{id}.
type Sessions struct {
	store  *ContentStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a session manager. An empty secret is replaced by a
// random one, so tokens do not survive a restart.
func NewSessions(store *ContentStore, secret string, ttl time.Duration) *Sessions {
	key := []byte(secret)
	if len(key) == 0 {
		log.Println("No session secret configured, using a random one")
		key = make([]byte, 32)
		rand.Read(key)
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Sessions{store: store, secret: key, ttl: ttl, now: time.Now}
}

// Login normalizes the user, records a session and returns its token.
func (s *Sessions) Login(ctx context.Context, name, email, groupCode string) (string, User, error) {
	u, err := NewUser(name, email, groupCode)
	if err != nil {
		return "", User{}, err
	}

	id := uuid.NewString()
	if err := s.store.SaveSession(ctx, id, u); err != nil {
		return "", User{}, err
	}

	now := s.now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}).SignedString(s.secret)
	if err != nil {
		return "", User{}, NewInternal(fmt.Errorf("sign session token: %w", err))
	}
	return token, u, nil
}

// Resolve returns the user behind a token. Invalid or expired tokens and
// missing or unreadable sessions all yield ok=false.
func (s *Sessions) Resolve(ctx context.Context, token string) (User, bool, error) {
	id, err := s.sessionID(token)
	if err != nil {
		return User{}, false, nil
	}
	return s.store.GetSession(ctx, id)
}

// Logout removes the session behind a token.
func (s *Sessions) Logout(ctx context.Context, token string) error {
	id, err := s.sessionID(token)
	if err != nil {
		return NewUnauthorized("invalid session token")
	}
	return s.store.RemoveSession(ctx, id)
}

func (s *Sessions) sessionID(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
