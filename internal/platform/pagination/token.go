package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPageToken signals that a client-supplied page token could not be
// decoded. Callers map it to an invalid-input error on their boundary.
var ErrInvalidPageToken = errors.New("pagination: invalid page token")

// EncodeCursor serialises the provided cursor value into an opaque base64
// URL-safe page token. The cursor must be JSON-marshalable.
func EncodeCursor(cursor any) (string, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a token produced by EncodeCursor into dst. An empty
// token leaves dst untouched and reports false.
func DecodeCursor(token string, dst any) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return true, nil
}

// ClampPageSize normalises a requested page size against a fallback and an
// upper bound.
func ClampPageSize(requested, fallback, max int) int {
	if requested <= 0 {
		return fallback
	}
	if max > 0 && requested > max {
		return max
	}
	return requested
}
