package settings

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	svc, err := NewService(slog.Default(), path)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, path
}

func TestDefaultsWhenFileMissing(t *testing.T) {
	svc, _ := newTestService(t)
	got := svc.Get()
	if got.SendDelayInterval != 1.0 {
		t.Errorf("send_delay_interval = %v, want 1.0", got.SendDelayInterval)
	}
	if !got.AIUseFallback {
		t.Error("ai_use_fallback should default to true")
	}
	if got.DefaultReplyType != ReplyTypeText {
		t.Errorf("default_reply_type = %q, want text", got.DefaultReplyType)
	}
}

func TestReplacePersists(t *testing.T) {
	svc, path := newTestService(t)

	next := svc.Get()
	next.DefaultReplyEnabled = true
	next.DefaultReplyMessage = "brb"
	if err := svc.Replace(next); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved settings: %v", err)
	}
	var onDisk Settings
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("parse saved settings: %v", err)
	}
	if !onDisk.DefaultReplyEnabled || onDisk.DefaultReplyMessage != "brb" {
		t.Errorf("saved settings not updated: %+v", onDisk)
	}

	reloaded, err := NewService(slog.Default(), path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Get().DefaultReplyEnabled {
		t.Error("reloaded settings lost default_reply_enabled")
	}
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv(EnvSessData, "env-sess")
	t.Setenv(EnvBiliJct, "env-jct")

	svc, _ := newTestService(t)
	got := svc.Get()
	if got.SessData != "env-sess" || got.BiliJct != "env-jct" {
		t.Errorf("env credentials not applied: %+v", got)
	}
	if !got.HasCredentials() {
		t.Error("HasCredentials should be true with env overrides")
	}

	next := got
	next.SessData = "file-sess"
	if err := svc.Replace(next); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if svc.Get().SessData != "env-sess" {
		t.Error("env override should win over replaced value")
	}
}

func TestIntervalClamps(t *testing.T) {
	s := Defaults()

	s.FollowCheckInterval = 1
	if got := s.FollowCheckPeriod(); got != MinFollowCheckInterval {
		t.Errorf("FollowCheckPeriod = %v, want %v", got, MinFollowCheckInterval)
	}
	s.FollowCheckInterval = 9999
	if got := s.FollowCheckPeriod(); got != MaxFollowCheckInterval {
		t.Errorf("FollowCheckPeriod = %v, want %v", got, MaxFollowCheckInterval)
	}

	s.AutoRestartInterval = 10
	if got := s.RestartPeriod(); got != MinRestartInterval {
		t.Errorf("RestartPeriod = %v, want %v", got, MinRestartInterval)
	}
	s.AutoRestartInterval = 7200
	if got := s.RestartPeriod(); got != MaxRestartInterval {
		t.Errorf("RestartPeriod = %v, want %v", got, MaxRestartInterval)
	}

	s.MessageCheckInterval = 0
	if got := s.CheckPeriod(); got != MinCheckInterval {
		t.Errorf("CheckPeriod = %v, want %v", got, MinCheckInterval)
	}
	s.SendDelayInterval = 0.001
	if got := s.SendPeriod(); got != MinSendInterval {
		t.Errorf("SendPeriod = %v, want %v", got, MinSendInterval)
	}
	s.SendDelayInterval = 2.5
	if got := s.SendPeriod(); got != 2500*time.Millisecond {
		t.Errorf("SendPeriod = %v, want 2.5s", got)
	}
}
