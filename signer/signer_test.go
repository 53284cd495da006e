package signer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discoveryServer(t *testing.T, imgURL, subURL string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"wbi_img": map[string]string{
					"img_url": imgURL,
					"sub_url": subURL,
				},
			},
		})
	}))
}

func TestEncodeWBIDeterministicForFixedInputs(t *testing.T) {
	params := map[string]any{"mid": 12345, "pn": 1, "ps": 50}
	imgKey, subKey := "7cd084941338484aae1ad9425b84077c", "4932caff0ff746eab6f01bf08b70ac45"

	first := EncodeWBI(params, imgKey, subKey, 1700000000)
	second := EncodeWBI(params, imgKey, subKey, 1700000000)

	if first["w_rid"] != second["w_rid"] {
		t.Fatalf("w_rid not deterministic for identical input: %v vs %v", first["w_rid"], second["w_rid"])
	}
	if first["wts"] != second["wts"] {
		t.Fatalf("wts mismatch: %v vs %v", first["wts"], second["wts"])
	}
}

func TestSignDoesNotMutateInput(t *testing.T) {
	srv := discoveryServer(t, "https://i0.hdslb.com/bfs/wbi/abc123.png", "https://i0.hdslb.com/bfs/wbi/def456.png")
	defer srv.Close()

	s := New(srv.URL, srv.Client())
	params := map[string]any{"mid": 1}
	if _, err := s.Sign(context.Background(), params); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(params) != 1 {
		t.Fatalf("input map was mutated: %v", params)
	}
	if _, ok := params["wts"]; ok {
		t.Fatalf("input map gained wts key")
	}
}

func TestSignStripsForbiddenCharacters(t *testing.T) {
	srv := discoveryServer(t, "https://i0.hdslb.com/bfs/wbi/abc123.png", "https://i0.hdslb.com/bfs/wbi/def456.png")
	defer srv.Close()

	s := New(srv.URL, srv.Client())
	out, err := s.Sign(context.Background(), map[string]any{"q": "a!b'c(d)e*f"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if out["q"] != "abcdef" {
		t.Fatalf("forbidden characters not stripped: %q", out["q"])
	}
}

func TestKeysCachedAcrossCalls(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"wbi_img": map[string]string{
					"img_url": "https://i0.hdslb.com/bfs/wbi/aaa.png",
					"sub_url": "https://i0.hdslb.com/bfs/wbi/bbb.png",
				},
			},
		})
	}))
	defer srv.Close()

	s := New(srv.URL, srv.Client())
	for i := 0; i < 5; i++ {
		if _, err := s.Sign(context.Background(), map[string]any{"mid": 1}); err != nil {
			t.Fatalf("Sign: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly one discovery call, got %d", calls)
	}
}

func TestGetMixinKeyTruncatesTo32(t *testing.T) {
	key := getMixinKey("7cd084941338484aae1ad9425b84077c4932caff0ff746eab6f01bf08b70ac45")
	if len(key) != 32 {
		t.Fatalf("mixin key length = %d, want 32", len(key))
	}
}
