package chat

import (
	"errors"
	"testing"

	"github.com/chatpush/notifier/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	raw := []byte(`{
		"senderId": "u1",
		"text": "Hi",
		"receiverId": "u2",
		"isSystemMessage": false,
		"user": {"firstName": "Alice"}
	}`)

	msg, err := DecodeMessage("c1", "m1", raw)
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "c1", msg.ChatID)
	assert.Equal(t, "u1", msg.SenderID)
	assert.True(t, msg.HasText())
	assert.Equal(t, "Hi", *msg.Text)
	assert.True(t, msg.HasReceiver())
	assert.Equal(t, "u2", *msg.ReceiverID)
	assert.Equal(t, "Alice", msg.SenderName())
	assert.False(t, msg.IsSystemMessage)
}

func TestDecodeMessage_OptionalFieldsAbsent(t *testing.T) {
	msg, err := DecodeMessage("c1", "m1", []byte(`{"senderId":"u1","isSystemMessage":true}`))
	require.NoError(t, err)

	assert.Nil(t, msg.Text)
	assert.Nil(t, msg.ReceiverID)
	assert.Nil(t, msg.UserDisplayName)
	assert.Equal(t, "", msg.SenderName())
	assert.True(t, msg.IsSystemMessage)
}

func TestDecodeMessage_Invalid(t *testing.T) {
	_, err := DecodeMessage("c1", "m1", []byte(`{not json`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidMessage))
	assert.True(t, shared.IsValidation(err))
}

func TestDecodeChat(t *testing.T) {
	c, err := DecodeChat("c1", []byte(`{"isGroup":true,"groupName":" Team ","users":["a","b"]}`))
	require.NoError(t, err)

	assert.Equal(t, "c1", c.ID)
	assert.True(t, c.IsGroup)
	assert.Equal(t, "Team", c.DisplayName())
	assert.Equal(t, []string{"a", "b"}, c.MemberIDs)
}

func TestDecodeChat_Defaults(t *testing.T) {
	c, err := DecodeChat("c1", []byte(`{}`))
	require.NoError(t, err)

	assert.False(t, c.IsGroup)
	assert.Equal(t, "", c.DisplayName())
	assert.Empty(t, c.MemberIDs)
}

func TestDecodeChat_Invalid(t *testing.T) {
	_, err := DecodeChat("c1", []byte(`[1,2]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidChat))
}
