package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/txnotify/pkg/api"
)

func newServer(t *testing.T, cfg Config) (*httptest.Server, chan *api.Notification) {
	t.Helper()
	out := make(chan *api.Notification, 10)
	r := New(cfg, nil)
	srv := httptest.NewServer(r.Handler(context.Background(), out))
	t.Cleanup(srv.Close)
	return srv, out
}

func post(t *testing.T, url, contentType, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/v1/notifications", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeID(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["id"]
}

func TestNotification_JSON(t *testing.T) {
	srv, out := newServer(t, Config{})

	resp := post(t, srv.URL, "application/json",
		`{"id":"sms-42","text":"Paid ₹ 1,250 to Zomato via HDFC Bank on 25 Feb."}`, nil)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "sms-42", decodeID(t, resp))

	n := <-out
	assert.Equal(t, "sms-42", n.ID)
	assert.Equal(t, "Paid ₹ 1,250 to Zomato via HDFC Bank on 25 Feb.", n.Text)
	assert.Equal(t, SourceName, n.Source)
}

func TestNotification_PlainTextAssignsID(t *testing.T) {
	srv, out := newServer(t, Config{})

	resp := post(t, srv.URL, "text/plain; charset=utf-8", "  Debited Rs 400 from A/C *1234. Info: Uber Rides.\n", nil)

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := decodeID(t, resp)
	assert.NotEmpty(t, id)

	n := <-out
	assert.Equal(t, id, n.ID)
	assert.Equal(t, "Debited Rs 400 from A/C *1234. Info: Uber Rides.", n.Text)
}

func TestNotification_Rejected(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"empty text", "application/json", `{"text":"   "}`, http.StatusBadRequest},
		{"empty body", "text/plain", "", http.StatusBadRequest},
		{"invalid json", "application/json", `{"text":`, http.StatusBadRequest},
		{"unsupported type", "application/xml", `<text>hi</text>`, http.StatusUnsupportedMediaType},
		{"too large", "text/plain", strings.Repeat("a", DefaultMaxBodyBytes+1), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, out := newServer(t, Config{})
			resp := post(t, srv.URL, tt.contentType, tt.body, nil)

			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Empty(t, out)
		})
	}
}

func TestNotification_Token(t *testing.T) {
	srv, out := newServer(t, Config{Token: "s3cret"})

	resp := post(t, srv.URL, "text/plain", "Paid Rs 10 to Asha", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, srv.URL, "text/plain", "Paid Rs 10 to Asha", http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, out)

	resp = post(t, srv.URL, "text/plain", "Paid Rs 10 to Asha", http.Header{"Authorization": {"Bearer s3cret"}})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Len(t, out, 1)
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t, Config{Token: "s3cret"})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNotification_ShuttingDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(Config{}, nil)
	srv := httptest.NewServer(r.Handler(ctx, make(chan *api.Notification)))
	defer srv.Close()

	resp := post(t, srv.URL, "text/plain", "Paid Rs 10 to Asha", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRead_ServesUntilCancelled(t *testing.T) {
	r := New(Config{Addr: "127.0.0.1:0"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *api.Notification, 1)

	errc := make(chan error, 1)
	go func() { errc <- r.Read(ctx, out, nil) }()

	var addr string
	select {
	case addr = <-r.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for listener")
	}

	resp := post(t, "http://"+addr, "text/plain", "Sent ₹ 5,000 to John Doe from A/c XX4567.", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "Sent ₹ 5,000 to John Doe from A/c XX4567.", (<-out).Text)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	_, ok := <-out
	assert.False(t, ok, "out should be closed")
}
