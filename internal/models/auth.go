package models

import (
	"time"
)

// APIKey is an authentication record for the bearer-token credential service.
// Raw keys are shown once at issuance; only the bcrypt hash is stored. Lookup
// is by the 8-character key prefix, then bcrypt comparison against the hash.
type APIKey struct {
	ID         string     `badgerhold:"key" json:"id"`
	UserID     string     `badgerhold:"index" json:"user_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `badgerhold:"index" json:"key_prefix"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
