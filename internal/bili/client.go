package bili

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default API hosts; tests override them through Config.
const (
	DefaultVCBaseURL  = "https://api.vc.bilibili.com"
	DefaultAPIBaseURL = "https://api.bilibili.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	referer   = "https://message.bilibili.com/"

	maxImageBytes = 20 * 1024 * 1024
)

// Per-call timeouts. Hot-path reads stay sub-second so a stalled endpoint
// degrades tick latency instead of hanging the loop.
const (
	sessionsTimeout  = 1500 * time.Millisecond
	fetchTimeout     = 800 * time.Millisecond
	sendTimeout      = 3 * time.Second
	navTimeout       = 2 * time.Second
	followersTimeout = 5 * time.Second
	uploadTimeout    = 15 * time.Second
)

// Config holds the credentials and optional overrides for a Client.
type Config struct {
	SessData string
	BiliJct  string

	// VCBaseURL and APIBaseURL override the production hosts (used in tests).
	VCBaseURL  string
	APIBaseURL string

	HTTPClient *http.Client
}

// Client talks to the Bilibili web APIs on behalf of one logged-in account.
type Client struct {
	http    *http.Client
	sess    string
	jct     string
	vcBase  string
	apiBase string
	devID   string

	mu     sync.Mutex
	selfID int64
}

// New creates a transport client. Credentials are not validated here; call
// SelfID to probe them.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	vcBase := cfg.VCBaseURL
	if vcBase == "" {
		vcBase = DefaultVCBaseURL
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = DefaultAPIBaseURL
	}
	return &Client{
		http:    httpClient,
		sess:    cfg.SessData,
		jct:     cfg.BiliJct,
		vcBase:  vcBase,
		apiBase: apiBase,
		devID:   strings.ToUpper(uuid.NewString()),
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ListSessions returns the active private-message conversations.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	params := url.Values{
		"session_type":  {"1"},
		"group_fold":    {"1"},
		"unfollow_fold": {"0"},
		"sort_rule":     {"2"},
		"build":         {"0"},
		"mobi_app":      {"web"},
	}
	env, err := c.get(ctx, c.vcBase+"/session_svr/v1/session_svr/get_sessions", params, sessionsTimeout)
	if err != nil {
		return nil, err
	}
	var data struct {
		SessionList []Session `json:"session_list"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("decode session list: %w", err)
		}
	}
	return data.SessionList, nil
}

// RecentMessages fetches up to size messages of a conversation, newest last.
func (c *Client) RecentMessages(ctx context.Context, talkerID int64, size int) ([]Message, error) {
	params := url.Values{
		"sender_device_id": {"1"},
		"talker_id":        {strconv.FormatInt(talkerID, 10)},
		"session_type":     {"1"},
		"size":             {strconv.Itoa(size)},
		"build":            {"0"},
		"mobi_app":         {"web"},
	}
	env, err := c.get(ctx, c.vcBase+"/svr_sync/v1/svr_sync/fetch_session_msgs", params, fetchTimeout)
	if err != nil {
		return nil, err
	}
	var data struct {
		Messages []Message `json:"messages"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
	}
	return data.Messages, nil
}

// LatestMessage fetches the single newest message of a conversation, or nil
// when the conversation is empty.
func (c *Client) LatestMessage(ctx context.Context, talkerID int64) (*Message, error) {
	msgs, err := c.RecentMessages(ctx, talkerID, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	msg := msgs[0]
	return &msg, nil
}

// SendText sends a text message. The SendResult code is returned even when
// non-zero so the caller can branch on rate-limit and auth codes; the error is
// reserved for transport failures.
func (c *Client) SendText(ctx context.Context, receiverID int64, text string) (SendResult, error) {
	content, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return SendResult{}, fmt.Errorf("encode content: %w", err)
	}
	return c.sendMsg(ctx, receiverID, 1, string(content))
}

// SendImage uploads the image at path and sends it as a picture message.
func (c *Client) SendImage(ctx context.Context, receiverID int64, imagePath string) (SendResult, error) {
	info, err := c.uploadImage(ctx, imagePath)
	if err != nil {
		return SendResult{}, err
	}
	content, err := json.Marshal(map[string]any{
		"url":       info.URL,
		"height":    info.Height,
		"width":     info.Width,
		"imageType": "jpeg",
		"original":  1,
		"size":      info.Size,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("encode image content: %w", err)
	}
	return c.sendMsg(ctx, receiverID, 2, string(content))
}

func (c *Client) sendMsg(ctx context.Context, receiverID int64, msgType int, content string) (SendResult, error) {
	selfID, err := c.SelfID(ctx)
	if err != nil {
		return SendResult{}, fmt.Errorf("resolve sender uid: %w", err)
	}

	form := url.Values{
		"msg[sender_uid]":       {strconv.FormatInt(selfID, 10)},
		"msg[receiver_id]":      {strconv.FormatInt(receiverID, 10)},
		"msg[receiver_type]":    {"1"},
		"msg[msg_type]":         {strconv.Itoa(msgType)},
		"msg[msg_status]":       {"0"},
		"msg[content]":          {content},
		"msg[timestamp]":        {strconv.FormatInt(time.Now().Unix(), 10)},
		"msg[new_face_version]": {"0"},
		"msg[dev_id]":           {c.devID},
		"build":                 {"0"},
		"mobi_app":              {"web"},
		"csrf":                  {c.jct},
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.vcBase+"/web_im/v1/web_im/send_msg", strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return SendResult{}, fmt.Errorf("decode send result: %w", err)
	}
	return SendResult{Code: env.Code, Message: env.Message}, nil
}

type imageInfo struct {
	URL    string `json:"image_url"`
	Width  int    `json:"image_width"`
	Height int    `json:"image_height"`
	Size   int    `json:"img_size"`
}

func (c *Client) uploadImage(ctx context.Context, imagePath string) (imageInfo, error) {
	st, err := os.Stat(imagePath)
	if err != nil {
		return imageInfo{}, fmt.Errorf("image file: %w", err)
	}
	if st.Size() > maxImageBytes {
		return imageInfo{}, fmt.Errorf("image too large: %d bytes", st.Size())
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return imageInfo{}, fmt.Errorf("read image: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file_up", filepath.Base(imagePath))
	if err != nil {
		return imageInfo{}, err
	}
	if _, err := part.Write(data); err != nil {
		return imageInfo{}, err
	}
	_ = writer.WriteField("biz", "im")
	_ = writer.WriteField("category", "daily")
	_ = writer.WriteField("csrf", c.jct)
	if err := writer.Close(); err != nil {
		return imageInfo{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.vcBase+"/api/v1/drawImage/upload", &body)
	if err != nil {
		return imageInfo{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return imageInfo{}, fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return imageInfo{}, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return imageInfo{}, fmt.Errorf("decode upload result: %w", err)
	}
	if env.Code != CodeOK {
		return imageInfo{}, &APIError{Code: env.Code, Message: env.Message}
	}
	var info imageInfo
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &info); err != nil {
			return imageInfo{}, fmt.Errorf("decode upload info: %w", err)
		}
	}
	return info, nil
}

// SelfID resolves and caches the uid of the logged-in account.
func (c *Client) SelfID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	cached := c.selfID
	c.mu.Unlock()
	if cached != 0 {
		return cached, nil
	}

	env, err := c.get(ctx, c.apiBase+"/x/web-interface/nav", nil, navTimeout)
	if err != nil {
		return 0, err
	}
	var data struct {
		Mid int64 `json:"mid"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, fmt.Errorf("decode nav: %w", err)
	}
	if data.Mid == 0 {
		return 0, fmt.Errorf("nav returned empty uid")
	}

	c.mu.Lock()
	c.selfID = data.Mid
	c.mu.Unlock()
	return data.Mid, nil
}

// RecentFollowers returns up to limit followers ordered by follow time
// descending.
func (c *Client) RecentFollowers(ctx context.Context, limit int) ([]Follower, error) {
	selfID, err := c.SelfID(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"vmid":       {strconv.FormatInt(selfID, 10)},
		"pn":         {"1"},
		"ps":         {strconv.Itoa(limit)},
		"order":      {"desc"},
		"order_type": {"attention"},
	}
	env, err := c.get(ctx, c.apiBase+"/x/relation/followers", params, followersTimeout)
	if err != nil {
		return nil, err
	}
	var data struct {
		List []Follower `json:"list"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("decode followers: %w", err)
		}
	}
	return data.List, nil
}

// VerifySent re-fetches the newest messages of a conversation and reports
// whether a self-sent message matching expected is present. Best effort; any
// fetch failure reports false.
func (c *Client) VerifySent(ctx context.Context, talkerID int64, expected string) bool {
	selfID, err := c.SelfID(ctx)
	if err != nil {
		return false
	}
	msgs, err := c.RecentMessages(ctx, talkerID, 3)
	if err != nil {
		return false
	}
	for _, msg := range msgs {
		if msg.SenderUID != selfID {
			continue
		}
		text := msg.Text()
		if text == "" {
			continue
		}
		if strings.Contains(text, expected) || strings.Contains(expected, text) {
			return true
		}
	}
	return false
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values, timeout time.Duration) (envelope, error) {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return envelope{}, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	if env.Code != CodeOK {
		return envelope{}, &APIError{Code: env.Code, Message: env.Message}
	}
	return env, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cookie", fmt.Sprintf("SESSDATA=%s; bili_jct=%s", c.sess, c.jct))
	req.Header.Set("Referer", referer)
}
