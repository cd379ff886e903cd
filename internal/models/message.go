package models

import "encoding/json"

// PreviewImage is the chat-list preview shown for image messages.
const PreviewImage = "Image"

// Body is the content of a message: exactly one of TextBody or ImageBody.
type Body interface {
	Preview() string
	isBody()
}

// TextBody is a plain text message.
type TextBody struct {
	Text string
}

// ImageBody is an uploaded image referenced by URL.
type ImageBody struct {
	URL string
}

func (b TextBody) Preview() string  { return b.Text }
func (b ImageBody) Preview() string { return PreviewImage }

func (TextBody) isBody()  {}
func (ImageBody) isBody() {}

// Message is one chat message. Stored in messages/{id}.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	CreatedAt      int64
	Body           Body
}

// MessageRecord is the flat stored and wire form of a Message.
type MessageRecord struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	CreatedAt      int64  `json:"createdAt"`
	Text           string `json:"text,omitempty"`
	Image          string `json:"image,omitempty"`
}

// Record flattens the message.
func (m Message) Record() MessageRecord {
	r := MessageRecord{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		CreatedAt:      m.CreatedAt,
	}
	switch b := m.Body.(type) {
	case TextBody:
		r.Text = b.Text
	case ImageBody:
		r.Image = b.URL
	}
	return r
}

// Message rebuilds the variant. A record carrying an image is an image message.
func (r MessageRecord) Message() Message {
	m := Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		CreatedAt:      r.CreatedAt,
	}
	if r.Image != "" {
		m.Body = ImageBody{URL: r.Image}
	} else {
		m.Body = TextBody{Text: r.Text}
	}
	return m
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Record())
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var r MessageRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*m = r.Message()
	return nil
}

// Preview is the chat-list preview text of the message.
func (m Message) Preview() string {
	if m.Body == nil {
		return ""
	}
	return m.Body.Preview()
}
