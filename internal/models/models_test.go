package models

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "alice_bob", ConversationID("bob", "alice"))
	assert.Equal(t, ConversationID("x", "y"), ConversationID("y", "x"))
}

func TestConversationPeer(t *testing.T) {
	c := Conversation{Participants: []string{"a", "b"}}
	assert.Equal(t, "b", c.Peer("a"))
	assert.True(t, c.HasParticipant("b"))
	assert.False(t, c.HasParticipant("z"))
}

func TestMessageWireFormHasExactlyOneBody(t *testing.T) {
	img := Message{ID: "m1", ConversationID: "a_b", SenderID: "a", CreatedAt: 7, Body: ImageBody{URL: "https://x/y.png"}}
	raw, err := json.Marshal(img)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","conversationId":"a_b","senderId":"a","createdAt":7,"image":"https://x/y.png"}`, string(raw))

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, img, back)
	assert.Equal(t, PreviewImage, back.Preview())

	txt := MessageRecord{ID: "m2", Text: "hi"}.Message()
	assert.Equal(t, TextBody{Text: "hi"}, txt.Body)
	assert.Equal(t, "hi", txt.Preview())
}

func TestNoticeFor(t *testing.T) {
	denied := NoticeFor(fmt.Errorf("open: %w", ErrAccessDenied))
	assert.Equal(t, "/chat", denied.Redirect)

	missing := NoticeFor(ErrNotFound)
	assert.Equal(t, "/chat", missing.Redirect)

	invalid := NoticeFor(Invalid("bio", "too long"))
	assert.Equal(t, NoticeWarning, invalid.Level)
	assert.Equal(t, "bio: too long", invalid.Message)

	assert.True(t, NoticeFor(ErrUpload).Transient)
	assert.True(t, NoticeFor(fmt.Errorf("x: %w", ErrNetwork)).Transient)
}
