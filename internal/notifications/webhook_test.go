package notifications

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(url, name string) (*Sender, *test.Hook) {
	l, hook := test.NewNullLogger()
	s := NewSender(url, name, logrus.NewEntry(l))
	s.retry.BaseDelay = time.Millisecond
	s.retry.MaxDelay = time.Millisecond
	return s, hook
}

func TestSend_NoWebhook(t *testing.T) {
	s, hook := newTestSender("", "TestBot")
	assert.False(t, s.Enabled())

	s.Send("hello from test")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "hello from test", hook.LastEntry().Message)
}

func TestSend_SlackFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, _ := newTestSender(srv.URL, "TestBot")
	require.True(t, s.Enabled())

	s.Send("position closed")
	assert.Equal(t, "TestBot", received["username"])
	assert.Equal(t, "`[TestBot] position closed`", received["text"])
}

func TestSend_DiscordFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// a URL containing "discord" selects the Discord payload
	s, _ := newTestSender(srv.URL+"/discord/webhook", "TrahnBot")
	s.Send("BUY 0xabc: 1 tokens @ 100")

	assert.Equal(t, "[TrahnBot] BUY 0xabc: 1 tokens @ 100", received["content"])
	assert.Equal(t, "TrahnBot", received["username"])
	_, hasText := received["text"]
	assert.False(t, hasText)
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, _ := newTestSender(srv.URL, "TestBot")
	s.Send("retry me")
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_WebhookError(t *testing.T) {
	s, hook := newTestSender("http://127.0.0.1:1/bogus", "TestBot")
	s.Send("this will fail gracefully")

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestDefaultBotName(t *testing.T) {
	s := NewSender("", "", nil)
	assert.Equal(t, DefaultBotName, s.botName)
}
