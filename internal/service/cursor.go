package service

import (
	"encoding/base64"
	"encoding/json"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type messageCursor struct {
	ID int64 `json:"id"`
}

type offsetCursor struct {
	Offset int `json:"offset"`
}

func encodeCursor(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(raw string, v any) error {
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return ErrInvalidCursor
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrInvalidCursor
	}
	return nil
}

func decodeMessageCursor(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	var c messageCursor
	if err := decodeCursor(raw, &c); err != nil {
		return 0, err
	}
	if err := CheckMessageID(c.ID); err != nil {
		return 0, ErrInvalidCursor
	}
	return c.ID, nil
}

func decodeOffsetCursor(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	var c offsetCursor
	if err := decodeCursor(raw, &c); err != nil {
		return 0, err
	}
	if c.Offset < 0 {
		return 0, ErrInvalidCursor
	}
	return c.Offset, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return defaultPageSize
	}
	return limit
}
