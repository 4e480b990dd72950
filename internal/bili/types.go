// Package bili implements the Bilibili private-message HTTP transport used by
// the polling loop: session listing, message fetch, text/image send, and
// follower listing.
package bili

import (
	"encoding/json"
	"strings"
)

// Message is one private message inside a conversation.
type Message struct {
	SenderUID int64  `json:"sender_uid"`
	Timestamp int64  `json:"timestamp"`
	MsgType   int    `json:"msg_type"`
	Content   string `json:"content"`
}

// Text extracts the plain message text. Text messages carry a JSON envelope
// {"content": "..."}; anything else is returned trimmed as-is.
func (m Message) Text() string {
	var envelope struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(m.Content), &envelope); err == nil && envelope.Content != "" {
		return strings.TrimSpace(envelope.Content)
	}
	return strings.TrimSpace(m.Content)
}

// Session is one private-message conversation as returned by the session list.
type Session struct {
	TalkerID    int64    `json:"talker_id"`
	SessionType int      `json:"session_type"`
	LastMessage *Message `json:"last_msg"`
}

// LastTimestamp returns the timestamp of the last message, or 0 when unknown.
func (s Session) LastTimestamp() int64 {
	if s.LastMessage == nil {
		return 0
	}
	return s.LastMessage.Timestamp
}

// Follower is one entry from the recent-followers page.
type Follower struct {
	Mid       int64  `json:"mid"`
	Uname     string `json:"uname"`
	Face      string `json:"face"`
	Mtime     int64  `json:"mtime"`
	Attribute int    `json:"attribute"`
}

// SendResult carries the remote status of a send call. Code 0 means success;
// CodeRateLimited and CodeAuthInvalid are semantically significant to the
// polling loop, all other non-zero codes are generic failures.
type SendResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OK reports whether the send succeeded.
func (r SendResult) OK() bool { return r.Code == CodeOK }

// RateLimited reports whether the remote rejected the send for frequency.
func (r SendResult) RateLimited() bool { return r.Code == CodeRateLimited }

// AuthInvalid reports whether the session credentials are no longer valid.
func (r SendResult) AuthInvalid() bool { return r.Code == CodeAuthInvalid }
