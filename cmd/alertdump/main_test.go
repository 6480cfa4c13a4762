package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/txnotify/pkg/logging"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2026-02-25_093000_Alert : Debit/UPI", "2026-02-25_093000_Alert_Debit_UPI"},
		{"__a??b__", "a_b"},
		{strings.Repeat("x", 250), strings.Repeat("x", 200)},
	}
	for _, tc := range tests {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDump(t *testing.T) {
	messages := map[string]*gmail.Message{
		"m1": {
			Id:           "m1",
			InternalDate: 1771925400000,
			Payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Headers:  []*gmail.MessagePartHeader{{Name: "Subject", Value: "UPI txn"}},
				Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("Paid Rs. 850 to Zomato via UPI"))},
			},
		},
		"m2": {Id: "m2", Payload: &gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{}}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			if got := r.URL.Query().Get("q"); got != "label:alerts" {
				t.Errorf("query: got %q", got)
			}
			_ = json.NewEncoder(w).Encode(&gmail.ListMessagesResponse{
				Messages: []*gmail.Message{{Id: "m1"}, {Id: "m2"}},
			})
		default:
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			msg, ok := messages[id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(msg)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	svc, err := gmail.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "alerts")
	d := &dumper{svc: svc, dir: dir, logger: logging.Discard()}

	count, err := d.dump(ctx, "label:alerts", 10)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if count != 1 {
		t.Errorf("count: got %d, want 1", count)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("files: got %d, want 1", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Paid Rs. 850 to Zomato via UPI\n" {
		t.Errorf("content: got %q", data)
	}

	// A second run finds the file and writes nothing.
	count, err = d.dump(ctx, "label:alerts", 10)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if count != 0 {
		t.Errorf("second count: got %d, want 0", count)
	}
}
