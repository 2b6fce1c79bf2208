// Package blob stores uploaded media outside the relational database.
package blob

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob not found")

type UploadOptions struct {
	ResourceType string
	Folder       string
	MimeType     string
	FileName     string
	// DurationSeconds is the client-reported length of audio/video content.
	DurationSeconds *float64
}

type UploadResult struct {
	PublicID        string
	SecureURL       string
	Bytes           int64
	DurationSeconds *float64
}

type Object struct {
	Data         []byte
	MimeType     string
	FileName     string
	ResourceType string
}

type Store interface {
	Upload(ctx context.Context, data []byte, opts UploadOptions) (*UploadResult, error)
	Delete(ctx context.Context, publicID, resourceType string) error
}
