// Package pagination implements keyset cursors over (created_at, id) for
// newest-first listings.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Params holds the caller's page request.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit enforces the default and maximum page sizes.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	payload := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// Decode parses a token produced by Encode. An empty token yields nil.
func Decode(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, invalidCursor(fmt.Errorf("decode: %w", err))
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, invalidCursor(fmt.Errorf("missing separator"))
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, invalidCursor(fmt.Errorf("timestamp: %w", err))
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, invalidCursor(fmt.Errorf("id: %w", err))
	}
	return &Cursor{CreatedAt: ts, ID: parsedID}, nil
}

// Fetch is the row count to request so Split can tell whether another page
// exists.
func Fetch(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Split trims rows fetched with Fetch(limit) to one page and builds the next
// cursor from the last kept row, or "" on the final page.
func Split[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, key(page[limit-1]).Encode()
}

func invalidCursor(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
}
