package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/txnotify/pkg/api"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  *gmail.Message
		want string
	}{
		{
			name: "plain text preferred over html",
			msg: &gmail.Message{Payload: &gmail.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>ignored</p>")}},
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("INR 2,499.00 spent on ICICI Bank Card XX1234\r\nat AMAZON on 2024-01-15.")}},
				},
			}},
			want: "INR 2,499.00 spent on ICICI Bank Card XX1234 at AMAZON on 2024-01-15.",
		},
		{
			name: "nested html part",
			msg: &gmail.Message{Payload: &gmail.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmail.MessagePart{{
					MimeType: "multipart/related",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<div>Rs.50.00 spent at <b>Starbucks</b> on your credit card</div>")}},
					},
				}},
			}},
			want: "Rs.50.00 spent at Starbucks on your credit card",
		},
		{
			name: "single part body without padding",
			msg: &gmail.Message{Payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte("Paid ₹ 850 to Zomato via UPI on 25 Feb."))},
			}},
			want: "Paid ₹ 850 to Zomato via UPI on 25 Feb.",
		},
		{
			name: "undecodable body",
			msg: &gmail.Message{Payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: "!!!"},
			}},
			want: "",
		},
		{
			name: "no payload",
			msg:  &gmail.Message{},
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractText(tc.msg); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

// fakeGmail serves the list, get and modify endpoints for a fixed mailbox.
type fakeGmail struct {
	mu       sync.Mutex
	bodies   map[string]string
	unread   map[string]bool
	lists    int
	modified []string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages")

	switch {
	case path == "" && r.Method == http.MethodGet:
		f.lists++
		var msgs []map[string]string
		for id := range f.bodies {
			if f.unread[id] {
				msgs = append(msgs, map[string]string{"id": id, "threadId": id})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"messages": msgs})
	case strings.HasSuffix(path, "/modify") && r.Method == http.MethodPost:
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/modify")
		f.unread[id] = false
		f.modified = append(f.modified, id)
		json.NewEncoder(w).Encode(map[string]string{"id": id})
	case r.Method == http.MethodGet:
		id := strings.TrimPrefix(path, "/")
		json.NewEncoder(w).Encode(map[string]any{
			"id": id,
			"payload": map[string]any{
				"mimeType": "text/plain",
				"headers":  []map[string]string{{"name": "Subject", "value": "Transaction alert"}},
				"body":     map[string]string{"data": b64(f.bodies[id])},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGmail) snapshot() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists, append([]string(nil), f.modified...)
}

func TestRead_EmitsAndMarksReadOnAck(t *testing.T) {
	fake := &fakeGmail{
		bodies: map[string]string{"m1": "Paid ₹ 1,250 to Zomato via HDFC Bank on 25 Feb."},
		unread: map[string]bool{"m1": true},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := New(ctx, srv.Client(), Config{Interval: 10 * time.Millisecond}, nil, option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out := make(chan *api.Notification)
	acks := make(chan string)
	errc := make(chan error, 1)
	go func() { errc <- r.Read(ctx, out, acks) }()

	var n *api.Notification
	select {
	case n = <-out:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
	if n.ID != "m1" || n.Source != SourceName {
		t.Errorf("notification: got %+v", n)
	}
	if n.Text != "Paid ₹ 1,250 to Zomato via HDFC Bank on 25 Feb." {
		t.Errorf("text: got %q", n.Text)
	}

	// Unacknowledged messages are not emitted again by later polls.
	for deadline := time.Now().Add(5 * time.Second); ; {
		if lists, _ := fake.snapshot(); lists >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for polls")
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case dup := <-out:
		t.Fatalf("unexpected re-emitted notification %+v", dup)
	default:
	}

	acks <- "m1"
	for deadline := time.Now().Add(5 * time.Second); ; {
		if _, modified := fake.snapshot(); len(modified) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for mark as read")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-errc; err != context.Canceled {
		t.Errorf("Read: got %v, want %v", err, context.Canceled)
	}
}

func TestClaim_ExpiresWithoutAck(t *testing.T) {
	now := time.Date(2026, 2, 25, 9, 0, 0, 0, time.UTC)
	r := &Reader{
		claimTimeout: time.Minute,
		now:          func() time.Time { return now },
		logger:       slog.Default(),
		inflight:     make(map[string]time.Time),
	}

	if !r.claim("m1") {
		t.Fatal("first claim: got false, want true")
	}
	now = now.Add(59 * time.Second)
	if r.claim("m1") {
		t.Error("claim before timeout: got true, want false")
	}
	now = now.Add(time.Second)
	if !r.claim("m1") {
		t.Error("claim after timeout: got false, want true")
	}
	if r.claim("m1") {
		t.Error("renewed claim: got true, want false")
	}

	r.release("m1")
	if !r.claim("m1") {
		t.Error("claim after release: got false, want true")
	}
}

func TestRead_ReemitsUnacknowledged(t *testing.T) {
	fake := &fakeGmail{
		bodies: map[string]string{"m1": "Rs. 50.00 spent at Starbucks"},
		unread: map[string]bool{"m1": true},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{Interval: 10 * time.Millisecond, ClaimTimeout: 30 * time.Millisecond}
	r, err := New(ctx, srv.Client(), cfg, nil, option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out := make(chan *api.Notification)
	errc := make(chan error, 1)
	go func() { errc <- r.Read(ctx, out, make(chan string)) }()

	for i := 0; i < 2; i++ {
		select {
		case n := <-out:
			if n.ID != "m1" {
				t.Errorf("emission %d: got %q, want m1", i, n.ID)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for emission %d", i)
		}
	}

	if _, modified := fake.snapshot(); len(modified) != 0 {
		t.Errorf("unacknowledged message marked read: %v", modified)
	}

	cancel()
	if err := <-errc; err != context.Canceled {
		t.Errorf("Read: got %v, want %v", err, context.Canceled)
	}
}
