package domain

import (
	"time"
)

type MediaFile struct {
	ID              int64     `json:"id"`
	MessageID       int64     `json:"message_id"`
	StorageKey      string    `json:"storage_key"`
	URL             string    `json:"url"`
	ResourceType    string    `json:"resource_type"`
	MimeType        string    `json:"mime_type"`
	FileName        string    `json:"file_name,omitempty"`
	SizeBytes       int64     `json:"size_bytes"`
	Width           *int      `json:"width,omitempty"`
	Height          *int      `json:"height,omitempty"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	ThumbnailURL    *string   `json:"thumbnail_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Clone copies the row for a new message; the blob itself is shared.
func (f *MediaFile) Clone(messageID int64) *MediaFile {
	c := *f
	c.ID = 0
	c.MessageID = messageID
	c.CreatedAt = time.Time{}
	return &c
}

// ResourceTypeFor maps a message type to the blob store's resource class.
func ResourceTypeFor(t MessageType) string {
	switch t {
	case MessageImage:
		return "image"
	case MessageVideo, MessageAudio:
		return "video"
	default:
		return "raw"
	}
}
