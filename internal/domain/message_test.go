package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectKeyIsSymmetric(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	assert.Equal(t, DirectKey(a, b), DirectKey(b, a))
	assert.Equal(t, a.String()+":"+a.String(), DirectKey(a, a))
}

func TestNewMessageValidatesShape(t *testing.T) {
	conv, sender := uuid.New(), uuid.New()

	_, err := NewMessage(conv, sender, TextBody{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = NewMessage(conv, sender, MediaBody{Kind: MessageImage})
	assert.ErrorIs(t, err, ErrInvalidMedia)

	_, err = NewMessage(conv, sender, MediaBody{Kind: MessageText, URL: "x"})
	assert.Error(t, err)

	_, err = NewMessage(conv, sender, LocationBody{Latitude: 91})
	assert.ErrorIs(t, err, ErrInvalidLocation)

	_, err = NewMessage(conv, sender, CallBody{Outcome: "exploded"})
	assert.Error(t, err)
}

func TestBodyRoundTrip(t *testing.T) {
	conv, sender := uuid.New(), uuid.New()
	bodies := []Body{
		TextBody{Text: "hello"},
		MediaBody{Kind: MessageVideo, URL: "/media/abc", Caption: "clip"},
		LocationBody{Latitude: 45.81, Longitude: 15.98, Label: "Zagreb"},
		CallBody{Video: true, Outcome: CallCompleted, DurationSeconds: 42},
		SystemBody{Text: "group created"},
	}

	for _, body := range bodies {
		msg, err := NewMessage(conv, sender, body)
		require.NoError(t, err)
		assert.Equal(t, body.Type(), msg.Type)
		assert.Equal(t, StatusSent, msg.Status)

		decoded, err := msg.Body()
		require.NoError(t, err)
		assert.Equal(t, body, decoded)
	}
}

func TestStatusAdvances(t *testing.T) {
	assert.True(t, StatusSent.Advances(StatusDelivered))
	assert.True(t, StatusDelivered.Advances(StatusRead))
	assert.False(t, StatusRead.Advances(StatusDelivered))
	assert.False(t, StatusRead.Advances(StatusRead))
}

func TestMarkDeletedForIsIdempotent(t *testing.T) {
	user := uuid.New()
	msg := &Message{}

	assert.True(t, msg.MarkDeletedFor(user))
	assert.False(t, msg.MarkDeletedFor(user))
	assert.Len(t, msg.DeletedBy, 1)
	assert.True(t, msg.IsDeletedFor(user))
}

func TestQuoteIsSnapshot(t *testing.T) {
	caption := "before"
	msg := &Message{ID: 3, Type: MessageImage, Content: "/media/x", Caption: &caption}

	q := msg.Quote()
	*msg.Caption = "after"
	msg.Content = "changed"

	assert.Equal(t, "/media/x", q.Content)
	assert.Equal(t, "before", *q.Caption)
}
