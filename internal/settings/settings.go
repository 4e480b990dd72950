// Package settings holds the runtime bot settings persisted as JSON and
// mutable through the admin API.
package settings

import "time"

// Reply kinds accepted in the reply-type fields.
const (
	ReplyTypeText  = "text"
	ReplyTypeImage = "image"
)

// Interval bounds enforced by the accessors.
const (
	MinFollowCheckInterval = 5 * time.Second
	MaxFollowCheckInterval = 300 * time.Second
	MinRestartInterval     = 60 * time.Second
	MaxRestartInterval     = 3600 * time.Second
	MinCheckInterval       = 10 * time.Millisecond
	MinSendInterval        = 100 * time.Millisecond
)

// Settings mirrors the original config.json keys consumed by the bot.
type Settings struct {
	SessData string `json:"sessdata,omitempty"`
	BiliJct  string `json:"bili_jct,omitempty"`

	DefaultReplyEnabled bool   `json:"default_reply_enabled"`
	DefaultReplyMessage string `json:"default_reply_message"`
	DefaultReplyType    string `json:"default_reply_type"`
	DefaultReplyImage   string `json:"default_reply_image"`

	FollowReplyEnabled bool   `json:"follow_reply_enabled"`
	FollowReplyMessage string `json:"follow_reply_message"`
	FollowReplyType    string `json:"follow_reply_type"`
	FollowReplyImage   string `json:"follow_reply_image"`

	UnfollowReplyEnabled bool   `json:"unfollow_reply_enabled"`
	UnfollowReplyMessage string `json:"unfollow_reply_message"`
	UnfollowReplyType    string `json:"unfollow_reply_type"`
	UnfollowReplyImage   string `json:"unfollow_reply_image"`

	OnlyReplyNewMessages bool `json:"only_reply_new_messages"`

	FollowCheckInterval  float64 `json:"follow_check_interval"`
	MessageCheckInterval float64 `json:"message_check_interval"`
	SendDelayInterval    float64 `json:"send_delay_interval"`
	AutoRestartInterval  float64 `json:"auto_restart_interval"`

	AIEnabled     bool   `json:"ai_agent_enabled"`
	AIUseFallback bool   `json:"ai_use_fallback"`
	RAGServiceURL string `json:"rag_service_url"`
}

// Defaults returns the settings used when no file exists yet.
func Defaults() Settings {
	return Settings{
		DefaultReplyMessage:  "您好，我现在不在，稍后会回复您的消息。",
		DefaultReplyType:     ReplyTypeText,
		FollowReplyMessage:   "感谢您的关注！欢迎来到我的频道~",
		FollowReplyType:      ReplyTypeText,
		UnfollowReplyMessage: "很遗憾看到您取消了关注，希望我们还有机会再见！",
		UnfollowReplyType:    ReplyTypeText,
		FollowCheckInterval:  30,
		MessageCheckInterval: 0.05,
		SendDelayInterval:    1.0,
		AutoRestartInterval:  300,
		AIUseFallback:        true,
		RAGServiceURL:        "http://127.0.0.1:8000",
	}
}

// HasCredentials reports whether both Bilibili credentials are set.
func (s Settings) HasCredentials() bool {
	return s.SessData != "" && s.BiliJct != ""
}

// FollowCheckPeriod returns the follower-check interval clamped to [5s, 300s].
func (s Settings) FollowCheckPeriod() time.Duration {
	return clamp(secs(s.FollowCheckInterval), MinFollowCheckInterval, MaxFollowCheckInterval)
}

// CheckPeriod returns the polling-loop tick interval, at least 10ms.
func (s Settings) CheckPeriod() time.Duration {
	d := secs(s.MessageCheckInterval)
	if d < MinCheckInterval {
		return MinCheckInterval
	}
	return d
}

// SendPeriod returns the minimum spacing between outbound sends, at least 100ms.
func (s Settings) SendPeriod() time.Duration {
	d := secs(s.SendDelayInterval)
	if d < MinSendInterval {
		return MinSendInterval
	}
	return d
}

// RestartPeriod returns the inactivity watchdog interval clamped to [60s, 3600s].
func (s Settings) RestartPeriod() time.Duration {
	return clamp(secs(s.AutoRestartInterval), MinRestartInterval, MaxRestartInterval)
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
