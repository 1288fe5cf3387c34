package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"promptguessr/internal/gamesvc"
	"promptguessr/internal/kv"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	manager := gamesvc.NewManager(kv.NewMemoryStore())
	store := kv.NewMemoryStore()
	srv := New(manager, store, Config{AllowedOrigins: []string{"*"}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestCreateRoom(t *testing.T) {
	ts := testServer(t)
	resp := doJSON(t, ts, http.MethodPost, "/rooms/create", createRoomRequest{PlayerName: "Ada"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["roomId"] == "" || body["roomCode"] == "" || body["playerId"] == "" {
		t.Fatalf("expected room identity fields, got %v", body)
	}
}

func TestCreateRoomRequiresPlayerName(t *testing.T) {
	ts := testServer(t)
	resp := doJSON(t, ts, http.MethodPost, "/rooms/create", createRoomRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestJoinRoomUnknownCode(t *testing.T) {
	ts := testServer(t)
	resp := doJSON(t, ts, http.MethodPost, "/rooms/join", joinRoomRequest{Code: "ZZZZ", PlayerName: "Bob"})
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 404 or 400 for unknown code, got %d", resp.StatusCode)
	}
}

func TestJoinRoomThenGetByCode(t *testing.T) {
	ts := testServer(t)
	createResp := doJSON(t, ts, http.MethodPost, "/rooms/create", createRoomRequest{PlayerName: "Ada"})
	created := decodeBody(t, createResp)
	code := created["roomCode"].(string)

	joinResp := doJSON(t, ts, http.MethodPost, "/rooms/join", joinRoomRequest{Code: code, PlayerName: "Bob"})
	if joinResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", joinResp.StatusCode)
	}
	joined := decodeBody(t, joinResp)
	if joined["roomId"] != created["roomId"] {
		t.Fatalf("expected same room id")
	}

	getResp, err := ts.Client().Get(ts.URL + "/rooms/" + code)
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}
}

func TestJoinRoomUppercasesCode(t *testing.T) {
	ts := testServer(t)
	createResp := doJSON(t, ts, http.MethodPost, "/rooms/create", createRoomRequest{PlayerName: "Ada"})
	created := decodeBody(t, createResp)
	code := created["roomCode"].(string)

	joinResp := doJSON(t, ts, http.MethodPost, "/rooms/join", joinRoomRequest{Code: strings.ToLower(code), PlayerName: "Bob"})
	if joinResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for lowercase room code, got %d", joinResp.StatusCode)
	}

	getResp, err := ts.Client().Get(ts.URL + "/rooms/" + strings.ToLower(code))
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for lowercase room code lookup, got %d", getResp.StatusCode)
	}
}

func TestHealthAndReady(t *testing.T) {
	ts := testServer(t)
	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp, err = ts.Client().Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

// failingStore reports every Get as a store error, simulating an unreachable
// backend for the /health and /ready probes.
type failingStore struct {
	kv.Store
}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store unavailable")
}

func TestHealthReturns503WhenStoreUnavailable(t *testing.T) {
	manager := gamesvc.NewManager(kv.NewMemoryStore())
	srv := New(manager, failingStore{}, Config{AllowedOrigins: []string{"*"}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
