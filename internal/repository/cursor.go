package repository

import (
	"encoding/base64"
	"encoding/json"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

// keysetCursor resumes a listing ordered by subscribed_at DESC, id DESC.
type keysetCursor struct {
	SubscribedAt int64  `json:"subscribed_at"`
	ID           string `json:"id"`
}

func encodeCursor(v any) (*string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	token := base64.URLEncoding.EncodeToString(raw)
	return &token, nil
}

func decodeCursor(token string, v any) error {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return model.ErrInvalidCursor
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return model.ErrInvalidCursor
	}
	return nil
}

func decodeKeyset(token string) (*keysetCursor, error) {
	if token == "" {
		return nil, nil
	}
	var c keysetCursor
	if err := decodeCursor(token, &c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, model.ErrInvalidCursor
	}
	return &c, nil
}

// before reports whether s sorts after the cursor position.
func (c *keysetCursor) before(s *model.Subscriber) bool {
	if c == nil {
		return true
	}
	if s.SubscribedAt != c.SubscribedAt {
		return s.SubscribedAt < c.SubscribedAt
	}
	return s.ID < c.ID
}
