package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent/1.0" {
			t.Errorf("User-Agent = %q, want %q", got, "test-agent/1.0")
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want %q", got, "application/json")
		}
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	client := New(server.Client(), "test-agent/1.0", 1024)
	res, err := client.Get(context.Background(), server.URL, map[string]string{"Accept": "application/json"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !res.IsSuccess() {
		t.Errorf("IsSuccess() = false, want true (status %d)", res.StatusCode)
	}
	if string(res.Body) != "hello" {
		t.Errorf("Body = %q, want %q", res.Body, "hello")
	}
}

func TestClientGetTruncatesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer server.Close()

	client := New(server.Client(), "test-agent/1.0", 100)
	res, err := client.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(res.Body) != 100 {
		t.Errorf("len(Body) = %d, want 100", len(res.Body))
	}
}

func TestClientPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %q, want POST", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New(server.Client(), "test-agent/1.0", 1024)
	res, err := client.Post(context.Background(), server.URL, "application/json", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", res.StatusCode)
	}
}

func TestClientHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Method = %q, want HEAD", r.Method)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.Client(), "test-agent/1.0", 1024)
	res, err := client.Head(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if got := res.Header.Get("Content-Type"); got != "application/rss+xml" {
		t.Errorf("Content-Type = %q", got)
	}
}
