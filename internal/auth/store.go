package auth

import (
	"database/sql"
	"fmt"
	"time"

	"histlens/internal/storage"
)

// Token is one issued API token. The hash never leaves the store.
type Token struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"tokenPrefix"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	Revoked     bool       `json:"revoked"`
}

// Store persists API tokens in the shared SQLite database.
type Store struct {
	db *storage.DB
}

// NewStore creates a token store
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Issue creates a new named token and returns the raw secret. The raw
// value is shown once and only its hash is stored.
func (s *Store) Issue(name string) (*Token, string, error) {
	id, err := GenerateKeyID()
	if err != nil {
		return nil, "", err
	}
	raw, prefix, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}
	hash, err := HashToken(raw)
	if err != nil {
		return nil, "", err
	}

	token := &Token{
		ID:          id,
		Name:        name,
		TokenHash:   hash,
		TokenPrefix: prefix,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.db.Exec(`
		INSERT INTO api_tokens (id, name, token_hash, token_prefix, created_at, revoked)
		VALUES (?, ?, ?, ?, ?, 0)
	`, token.ID, token.Name, token.TokenHash, token.TokenPrefix, token.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, "", fmt.Errorf("store token: %w", err)
	}
	return token, raw, nil
}

// Authenticate validates a raw bearer token against stored hashes and
// returns the matching token record.
func (s *Store) Authenticate(raw string) (*Token, error) {
	if !IsValidTokenFormat(raw) {
		return nil, fmt.Errorf("malformed token")
	}

	rows, err := s.db.Query(`
		SELECT id, name, token_hash, token_prefix, created_at, revoked
		FROM api_tokens
		WHERE token_prefix = ? AND revoked = 0
	`, ExtractTokenPrefix(raw))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var token Token
		var createdAt string
		var revoked int
		if err := rows.Scan(&token.ID, &token.Name, &token.TokenHash, &token.TokenPrefix, &createdAt, &revoked); err != nil {
			return nil, err
		}
		if !VerifyToken(raw, token.TokenHash) {
			continue
		}
		token.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		token.Revoked = revoked != 0
		s.touch(token.ID)
		return &token, nil
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("unknown token")
}

// Revoke disables a token by ID
func (s *Store) Revoke(id string) error {
	res, err := s.db.Exec(`UPDATE api_tokens SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no token with ID %s", id)
	}
	return nil
}

// List returns all tokens, newest first
func (s *Store) List() ([]Token, error) {
	rows, err := s.db.Query(`
		SELECT id, name, token_prefix, created_at, last_used_at, revoked
		FROM api_tokens
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		var token Token
		var createdAt string
		var lastUsed sql.NullString
		var revoked int
		if err := rows.Scan(&token.ID, &token.Name, &token.TokenPrefix, &createdAt, &lastUsed, &revoked); err != nil {
			return nil, err
		}
		token.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if lastUsed.Valid {
			if t, err := time.Parse(time.RFC3339, lastUsed.String); err == nil {
				token.LastUsedAt = &t
			}
		}
		token.Revoked = revoked != 0
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (s *Store) touch(id string) {
	_, _ = s.db.Exec(`UPDATE api_tokens SET last_used_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
}
