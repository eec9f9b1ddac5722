package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/lherron/folio/internal/notify"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNormalize(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	got := notify.Normalize([]string{
		" http://example.com/hook/{user_id}/ ",
		"http://example.com/hook/{user_id}",
		"ftp://invalid.example.com/hook",
		"",
		"https://other.example.com",
	}, zap.New(core))

	want := []string{"http://example.com/hook/{user_id}", "https://other.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalize() = %v, want %v", got, want)
	}
	if logs.Len() != 1 {
		t.Errorf("expected one warning for the ftp url, got %d", logs.Len())
	}
}

func TestSend(t *testing.T) {
	var mu sync.Mutex
	received := map[string]notify.Payload{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p notify.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		received[r.URL.Path] = p
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := notify.New([]string{srv.URL + "/a/{user_id}", srv.URL + "/b"}, nil)
	n.Send(context.Background(), notify.Payload{Event: "sync.completed", UserID: "u 1", MergedRev: "sha256:abc"})

	if len(received) != 2 {
		t.Fatalf("received %d notifications, want 2: %v", len(received), received)
	}
	if p, ok := received["/a/u 1"]; !ok || p.MergedRev != "sha256:abc" {
		t.Errorf("templated target payload = %+v (present=%v)", p, ok)
	}
	if _, ok := received["/b"]; !ok {
		t.Errorf("plain target not called")
	}
}

func TestSend_NoTargetsIsNoop(t *testing.T) {
	var n *notify.Notifier
	n.Send(context.Background(), notify.Payload{})
	notify.New(nil, nil).Send(context.Background(), notify.Payload{})
}
