package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		SessData:   "sess",
		BiliJct:    "jct",
		VCBaseURL:  srv.URL,
		APIBaseURL: srv.URL,
	})
}

func TestListSessions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session_svr/v1/session_svr/get_sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"code":0,"data":{"session_list":[
			{"talker_id":42,"last_msg":{"timestamp":150,"sender_uid":42,"content":"{\"content\":\"问一下价格\"}"}},
			{"talker_id":7,"last_msg":{"timestamp":90,"sender_uid":7,"content":"hi"}}
		]}}`)
	}))

	sessions, err := client.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].TalkerID != 42 || sessions[0].LastTimestamp() != 150 {
		t.Errorf("unexpected first session: %+v", sessions[0])
	}
	if got := sessions[0].LastMessage.Text(); got != "问一下价格" {
		t.Errorf("Text() = %q", got)
	}
	if got := sessions[1].LastMessage.Text(); got != "hi" {
		t.Errorf("plain Text() = %q", got)
	}
}

func TestListSessionsAuthError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":-101,"message":"账号未登录"}`)
	}))

	_, err := client.ListSessions(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAuthError(err) {
		t.Errorf("expected auth-class error, got %v", err)
	}
}

func TestLatestMessageEmpty(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"messages":[]}}`)
	}))

	msg, err := client.LatestMessage(context.Background(), 42)
	if err != nil {
		t.Fatalf("LatestMessage: %v", err)
	}
	if msg != nil {
		t.Errorf("expected nil message, got %+v", msg)
	}
}

func TestSendTextCodes(t *testing.T) {
	var sentForm map[string][]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/x/web-interface/nav":
			fmt.Fprint(w, `{"code":0,"data":{"mid":10086}}`)
		case "/web_im/v1/web_im/send_msg":
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			sentForm = r.PostForm
			fmt.Fprint(w, `{"code":-412,"message":"操作太频繁"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	res, err := client.SendText(context.Background(), 42, "798元")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if !res.RateLimited() {
		t.Errorf("expected rate-limited result, got %+v", res)
	}
	if got := sentForm["msg[sender_uid]"]; len(got) != 1 || got[0] != "10086" {
		t.Errorf("sender uid = %v", got)
	}
	var content struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(sentForm["msg[content]"][0]), &content); err != nil {
		t.Fatalf("content envelope: %v", err)
	}
	if content.Content != "798元" {
		t.Errorf("content = %q", content.Content)
	}
}

func TestSelfIDCached(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"code":0,"data":{"mid":5}}`)
	}))

	for i := 0; i < 3; i++ {
		id, err := client.SelfID(context.Background())
		if err != nil {
			t.Fatalf("SelfID: %v", err)
		}
		if id != 5 {
			t.Errorf("SelfID = %d", id)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 nav call, got %d", calls)
	}
}

func TestVerifySent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/x/web-interface/nav":
			fmt.Fprint(w, `{"code":0,"data":{"mid":10086}}`)
		default:
			fmt.Fprint(w, `{"code":0,"data":{"messages":[
				{"sender_uid":42,"timestamp":150,"content":"{\"content\":\"你好\"}"},
				{"sender_uid":10086,"timestamp":151,"content":"{\"content\":\"798元\"}"}
			]}}`)
		}
	}))

	if !client.VerifySent(context.Background(), 42, "798元") {
		t.Error("expected VerifySent to find self-sent reply")
	}
	if client.VerifySent(context.Background(), 42, "不存在的内容") {
		t.Error("did not expect a match for unrelated content")
	}
}

func TestRecentFollowers(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/x/web-interface/nav":
			fmt.Fprint(w, `{"code":0,"data":{"mid":10086}}`)
		case "/x/relation/followers":
			if got := r.URL.Query().Get("ps"); got != "15" {
				t.Errorf("ps = %s", got)
			}
			if got := r.URL.Query().Get("vmid"); got != "10086" {
				t.Errorf("vmid = %s", got)
			}
			fmt.Fprint(w, `{"code":0,"data":{"list":[{"mid":1,"uname":"a","mtime":100}]}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	followers, err := client.RecentFollowers(context.Background(), 15)
	if err != nil {
		t.Fatalf("RecentFollowers: %v", err)
	}
	if len(followers) != 1 || followers[0].Mid != 1 || followers[0].Mtime != 100 {
		t.Errorf("unexpected followers: %+v", followers)
	}
}
