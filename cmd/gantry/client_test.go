package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewAPIClientDefaults(t *testing.T) {
	client := NewAPIClient("", 0)
	if client.baseURL != defaultAPIUrl {
		t.Errorf("expected default baseURL %s, got %s", defaultAPIUrl, client.baseURL)
	}
	if client.client.Timeout != 10*time.Second {
		t.Errorf("expected default timeout 10s, got %v", client.client.Timeout)
	}

	client = NewAPIClient("http://example.com/api", 5*time.Second)
	if client.baseURL != "http://example.com/api" {
		t.Errorf("expected baseURL http://example.com/api, got %s", client.baseURL)
	}
	if client.client.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", client.client.Timeout)
	}
}

func TestAPIClientStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"name":"backend","state":"ready","ready":true,"port":7861}`))
		}
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, time.Second)
	st, err := client.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Name != "backend" || !st.Ready || st.Port != 7861 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestAPIClientStatusUnreachable(t *testing.T) {
	client := NewAPIClient("http://127.0.0.1:1", 100*time.Millisecond)
	if _, err := client.Status(); err == nil {
		t.Fatal("expected error for unreachable daemon")
	}
}

func TestAPIClientStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" && r.Method == http.MethodPost {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true,"port":7862}`))
		}
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, time.Second)
	port, err := client.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if port != 7862 {
		t.Fatalf("expected port 7862, got %d", port)
	}
}

func TestAPIClientStartErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"backend startup timed out after 1m0s"}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, time.Second)
	if _, err := client.Start(); err == nil {
		t.Fatal("expected error from failed start")
	}
}

func TestAPIClientStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stop" && r.Method == http.MethodPost {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, time.Second)
	if err := client.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
