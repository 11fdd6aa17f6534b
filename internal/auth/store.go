package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// SecretPrefix marks API token secrets.
const SecretPrefix = "ns-"

var ErrInvalidScope = errors.New("invalid token scope")

// Scope is the access level granted by a token.
type Scope string

const (
	ScopeRead  Scope = "read"  // search, parse, stats
	ScopeWrite Scope = "write" // ingest, plus everything read allows
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(s)) {
	case ScopeRead:
		return ScopeRead, nil
	case ScopeWrite:
		return ScopeWrite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// Token is an API access key. Only the bcrypt hash of the secret is kept.
type Token struct {
	Name  string `json:"name" yaml:"name"`
	Hash  string `json:"hash" yaml:"hash"`
	Scope Scope  `json:"scope" yaml:"scope"`
}

// Allows reports whether the token grants the required scope.
func (t Token) Allows(required Scope) bool {
	switch t.Scope {
	case ScopeWrite:
		return true
	case ScopeRead:
		return required == ScopeRead
	default:
		return false
	}
}

// Store verifies bearer secrets against the configured tokens.
type Store struct {
	tokens []Token

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]int // secret digest -> token index
}

// NewStore creates a store for the given tokens. Every hash must be a valid
// bcrypt hash and every scope known.
func NewStore(tokens []Token) (*Store, error) {
	for _, t := range tokens {
		if _, err := ParseScope(string(t.Scope)); err != nil {
			return nil, fmt.Errorf("token %q: %w", t.Name, err)
		}
		if _, err := bcrypt.Cost([]byte(t.Hash)); err != nil {
			return nil, fmt.Errorf("token %q: %w", t.Name, err)
		}
	}
	return &Store{
		tokens:   append([]Token(nil), tokens...),
		verified: make(map[[sha256.Size]byte]int),
	}, nil
}

// Empty reports whether no tokens are configured, in which case the API is
// left open.
func (s *Store) Empty() bool {
	return len(s.tokens) == 0
}

// Tokens returns the configured tokens.
func (s *Store) Tokens() []Token {
	return append([]Token(nil), s.tokens...)
}

// Verify finds the token whose hash matches secret.
// Successful lookups are cached by digest so bcrypt runs once per secret.
func (s *Store) Verify(secret string) (Token, bool) {
	if secret == "" {
		return Token{}, false
	}
	digest := sha256.Sum256([]byte(secret))

	s.mu.RLock()
	i, ok := s.verified[digest]
	s.mu.RUnlock()
	if ok {
		return s.tokens[i], true
	}

	for i, t := range s.tokens {
		if bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(secret)) == nil {
			s.mu.Lock()
			s.verified[digest] = i
			s.mu.Unlock()
			return t, true
		}
	}
	return Token{}, false
}

// GenerateSecret returns a new random token secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}

// HashSecret returns the bcrypt hash of secret for the config file.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
