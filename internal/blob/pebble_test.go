package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := OpenPebble(t.TempDir(), "/media/", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUploadGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dur := 12.5

	res, err := s.Upload(ctx, []byte("video-bytes"), UploadOptions{
		ResourceType:    "video",
		Folder:          "chat",
		MimeType:        "video/mp4",
		FileName:        "clip.mp4",
		DurationSeconds: &dur,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.PublicID, "chat/"))
	assert.Equal(t, "/media/"+res.PublicID, res.SecureURL)
	assert.Equal(t, int64(11), res.Bytes)
	require.NotNil(t, res.DurationSeconds)
	assert.Equal(t, 12.5, *res.DurationSeconds)

	obj, err := s.Get(ctx, res.PublicID)
	require.NoError(t, err)
	assert.Equal(t, []byte("video-bytes"), obj.Data)
	assert.Equal(t, "video/mp4", obj.MimeType)
	assert.Equal(t, "clip.mp4", obj.FileName)

	require.NoError(t, s.Delete(ctx, res.PublicID, "video"))
	_, err = s.Get(ctx, res.PublicID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadRejectsEmpty(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Upload(context.Background(), nil, UploadOptions{ResourceType: "raw"})
	assert.Error(t, err)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	s := openTestStore(t)

	assert.NoError(t, s.Delete(context.Background(), "chat/missing", "image"))
}
