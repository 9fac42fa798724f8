package discord_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/botflow/pkg/adapters/discord"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redirect sends every request to the test server, keeping the path.
type redirect struct {
	target *url.URL
}

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = r.target.Scheme
	req.URL.Host = r.target.Host
	req.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

type fakeDiscord struct {
	mu     sync.Mutex
	bodies []map[string]any
	paths  []string
	auth   string
	status int
	reply  string
}

func (f *fakeDiscord) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	f.bodies = append(f.bodies, body)
	f.paths = append(f.paths, r.URL.Path)
	f.auth = r.Header.Get("Authorization")

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		fmt.Fprint(w, f.reply)
		return
	}
	fmt.Fprint(w, `{"id":"1","channel_id":"555","content":""}`)
}

func newSender(t *testing.T, api *fakeDiscord) *discord.Sender {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return discord.NewSender(
		discord.WithDefaultToken("secret"),
		discord.WithHTTPClient(&http.Client{Transport: redirect{target: target}}),
		discord.WithTimeout(2*time.Second),
	)
}

func TestSender_SendText(t *testing.T) {
	api := &fakeDiscord{}
	s := newSender(t, api)

	require.NoError(t, s.SendText(context.Background(), ports.Target{ChatID: "555"}, "hello"))
	require.Len(t, api.bodies, 1)
	assert.Equal(t, "hello", api.bodies[0]["content"])
	assert.True(t, strings.HasSuffix(api.paths[0], "/channels/555/messages"))
	assert.Equal(t, "Bot secret", api.auth)
}

func TestSender_SendButtonsChunksRows(t *testing.T) {
	api := &fakeDiscord{}
	s := newSender(t, api)

	buttons := make([]ports.Button, 0, 7)
	for i := 0; i < 6; i++ {
		buttons = append(buttons, ports.Button{Label: fmt.Sprint(i), Value: fmt.Sprint(i)})
	}
	buttons = append(buttons, ports.Button{Label: "Docs", URL: "https://example.com"})
	require.NoError(t, s.SendButtons(context.Background(), ports.Target{ChatID: "555"}, "pick", buttons))

	rows, ok := api.bodies[0]["components"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)
	first := rows[0].(map[string]any)["components"].([]any)
	assert.Len(t, first, 5)
	last := rows[1].(map[string]any)["components"].([]any)
	link := last[1].(map[string]any)
	assert.Equal(t, "https://example.com", link["url"])
}

func TestSender_SendPhoto(t *testing.T) {
	api := &fakeDiscord{}
	s := newSender(t, api)

	require.NoError(t, s.SendPhoto(context.Background(), ports.Target{ChatID: "555"}, "https://example.com/p.png", "look"))
	embeds := api.bodies[0]["embeds"].([]any)
	embed := embeds[0].(map[string]any)
	assert.Equal(t, "look", embed["description"])
	assert.Equal(t, "https://example.com/p.png", embed["image"].(map[string]any)["url"])
}

func TestSender_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
		code   string
	}{
		{"cannot message user", http.StatusForbidden, `{"code":50007,"message":"Cannot send messages to this user"}`, domain.CodeBlocked},
		{"unknown channel", http.StatusNotFound, `{"code":10003,"message":"Unknown Channel"}`, domain.CodeUnreachable},
		{"bad request", http.StatusBadRequest, `{"code":50006,"message":"Cannot send an empty message"}`, domain.CodeProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeDiscord{status: tt.status, reply: tt.reply}
			s := newSender(t, api)
			err := s.SendText(context.Background(), ports.Target{ChatID: "555"}, "x")
			require.Error(t, err)
			code, _ := ports.ClassifySendError(err)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestSender_RateLimitIsSurfaced(t *testing.T) {
	api := &fakeDiscord{
		status: http.StatusTooManyRequests,
		reply:  `{"message":"You are being rate limited.","retry_after":2.5,"global":false}`,
	}
	s := newSender(t, api)

	err := s.SendText(context.Background(), ports.Target{ChatID: "555"}, "x")
	require.Error(t, err)
	code, wait := ports.ClassifySendError(err)
	assert.Equal(t, domain.CodeRateLimited, code)
	assert.Equal(t, 2500*time.Millisecond, wait)
}

func TestSender_EmptyChannel(t *testing.T) {
	s := discord.NewSender(discord.WithDefaultToken("secret"))
	code, _ := ports.ClassifySendError(s.SendText(context.Background(), ports.Target{}, "x"))
	assert.Equal(t, domain.CodeUnreachable, code)
}
