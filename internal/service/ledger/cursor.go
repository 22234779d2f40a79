package ledger

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
)

// Position of the last entry on a page
type pageCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func encodeCursor(c pageCursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (pageCursor, error) {
	var c pageCursor

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("%w: %w", apperrors.ErrInvalidCursor, err)
	}

	createdAt, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return c, apperrors.ErrInvalidCursor
	}

	c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return c, fmt.Errorf("%w: %w", apperrors.ErrInvalidCursor, err)
	}

	c.ID, err = uuid.Parse(id)
	if err != nil {
		return c, fmt.Errorf("%w: %w", apperrors.ErrInvalidCursor, err)
	}

	return c, nil
}
