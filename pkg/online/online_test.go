package online

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

func testOptions() Options {
	return Options{Timeout: 2 * time.Second, MaxRetries: 0}
}

func TestHasheousLookupByHashHitAndMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/Lookup/ByHash/sha1/aaaa":
			w.Write([]byte(`{"platform":{"name":"SNES"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	h := NewHasheous(srv.URL, testOptions())
	raw, err := h.LookupByHash(context.Background(), "sha1", "aaaa")
	if err != nil {
		t.Fatalf("LookupByHash() error = %v", err)
	}
	if raw == nil {
		t.Fatal("expected a hit")
	}

	raw, err = h.LookupByHash(context.Background(), "md5", "bbbb")
	if err != nil {
		t.Fatalf("404 must be a clean miss, got %v", err)
	}
	if raw != nil {
		t.Fatal("404 must return nil payload")
	}
}

func TestHasheousLookupAnyPrefersStrongHashes(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if r.URL.Path == "/api/v1/Lookup/ByHash/sha1/"+"a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0" {
			w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewHasheous(srv.URL, testOptions())
	set := romset.ChecksumSet{
		SHA1:  "a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0",
		CRC32: "deadbeef",
	}
	raw, attempted, err := h.LookupAny(context.Background(), set)
	if err != nil || raw == nil || !attempted {
		t.Fatalf("LookupAny() = %v attempted=%v err=%v", raw, attempted, err)
	}
	if len(calls) != 1 || calls[0] != "/api/v1/Lookup/ByHash/sha1/a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0" {
		t.Fatalf("unexpected call order: %v", calls)
	}
}

func TestHasheousLookupAnyFallsBackThroughAlgorithms(t *testing.T) {
	var crcCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/Lookup/ByHash/crc32/deadbeef" {
			atomic.AddInt32(&crcCalls, 1)
			w.Write([]byte(`{"console":"Mega Drive"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewHasheous(srv.URL, testOptions())
	raw, _, err := h.LookupAny(context.Background(), romset.ChecksumSet{CRC32: "deadbeef"})
	if err != nil || raw == nil {
		t.Fatalf("LookupAny() = %v, %v", raw, err)
	}
	if atomic.LoadInt32(&crcCalls) != 1 {
		t.Fatalf("crc32 endpoint called %d times", crcCalls)
	}
}

func TestIGDBHeadersAndBody(t *testing.T) {
	var gotBody, gotClientID, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		gotClientID = r.Header.Get("Client-ID")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[{"id":1,"slug":"chrono-trigger","name":"Chrono Trigger"}]`))
	}))
	defer srv.Close()

	g := NewIGDB(srv.URL, "cid", "tok", testOptions())
	raw, err := g.SearchByName(context.Background(), "Chrono Trigger")
	if err != nil || raw == nil {
		t.Fatalf("SearchByName() = %v, %v", raw, err)
	}
	if gotClientID != "cid" || gotAuth != "Bearer tok" {
		t.Fatalf("headers = %q / %q", gotClientID, gotAuth)
	}
	want := `search "Chrono Trigger"; fields ` + QueryFields + `; limit 5;`
	if gotBody != want {
		t.Fatalf("body = %q, want %q", gotBody, want)
	}
}

func TestIGDBEmptyArrayIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := NewIGDB(srv.URL, "cid", "tok", testOptions())
	raw, err := g.LookupBySlug(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("LookupBySlug() error = %v", err)
	}
	if raw != nil {
		t.Fatal("empty array should be a miss")
	}
}

func TestRetryOn5xx(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	opts := Options{Timeout: 2 * time.Second, MaxRetries: 3}
	h := NewHasheous(srv.URL, opts)
	raw, err := h.LookupByHash(context.Background(), "sha1", "aaaa")
	if err != nil || raw == nil {
		t.Fatalf("retry did not recover: %v, %v", raw, err)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("hits = %d, want 3", hits)
	}
}

func TestExtractHasheousPlatformShapes(t *testing.T) {
	cases := map[string]string{
		`{"platform":{"name":"Super Nintendo"}}`:                                  "Super Nintendo",
		`{"platforms":["Mega Drive"]}`:                                            "Mega Drive",
		`{"platforms":[{"name":"Game Boy"}]}`:                                     "Game Boy",
		`{"console":"NES"}`:                                                       "NES",
		`{"system":"Saturn"}`:                                                     "Saturn",
		`{"metadata":[{"source":"platform","name":"PlayStation"}]}`:               "PlayStation",
		`{"metadata":[{"source":"Platform","id":"psx"}]}`:                         "psx",
		`{"signature":{"game":{"system":"Game Gear"}}}`:                           "Game Gear",
		`{"signature":{"game":{"systemVariant":"Mark III"}}}`:                     "Mark III",
		`{"title":"no platform here"}`:                                            "",
	}
	for payload, want := range cases {
		if got := ExtractHasheousPlatform(json.RawMessage(payload)); got != want {
			t.Errorf("ExtractHasheousPlatform(%s) = %q, want %q", payload, got, want)
		}
	}
}

func TestExtractEmbeddedHashes(t *testing.T) {
	payload := json.RawMessage(`{
		"nested": {"sha1": "DA39A3EE5E6B4B0D3255BFEF95601890AFD80709"},
		"list": [{"md5": "d41d8cd98f00b204e9800998ecf8427e"}],
		"noise": "not-a-hash"
	}`)
	sha1Hex, md5Hex := ExtractEmbeddedHashes(payload)
	if sha1Hex != "da39a3ee5e6b4b0d3255bfef95601890afd80709" {
		t.Errorf("sha1 = %q", sha1Hex)
	}
	if md5Hex != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("md5 = %q", md5Hex)
	}
}

func TestExtractIgdbSlugs(t *testing.T) {
	payload := json.RawMessage(`{
		"links": ["https://www.igdb.com/games/chrono-trigger?utm=x"],
		"metadata": [{"source": "IGDB", "id": "Secret of Mana"}]
	}`)
	slugs := ExtractIgdbSlugs(payload)
	if len(slugs) != 2 {
		t.Fatalf("slugs = %v", slugs)
	}
	if slugs[0] != "chrono-trigger" && slugs[1] != "chrono-trigger" {
		t.Errorf("missing url slug: %v", slugs)
	}
	found := false
	for _, s := range slugs {
		if s == "secret-of-mana" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing normalized id slug: %v", slugs)
	}
}

func TestExtractParentID(t *testing.T) {
	if got := ExtractParentID(json.RawMessage(`[{"id":1,"version_parent":2}]`)); got != 2 {
		t.Errorf("version_parent = %d", got)
	}
	if got := ExtractParentID(json.RawMessage(`[{"id":1,"parent_game":{"id":7}}]`)); got != 7 {
		t.Errorf("parent_game object = %d", got)
	}
	if got := ExtractParentID(json.RawMessage(`[{"id":1}]`)); got != 0 {
		t.Errorf("no parent = %d", got)
	}
}

func TestGraftParentGenres(t *testing.T) {
	child := json.RawMessage(`[{"id":1,"slug":"child","name":"C","genres":[],"version_parent":2,"platforms":[{"slug":"gba"}]}]`)
	parent := json.RawMessage(`[{"id":2,"slug":"parent","name":"P","genres":[{"name":"Action"}]}]`)

	combined := GraftParentGenres(child, parent)
	if combined == nil {
		t.Fatal("graft failed")
	}

	games := decodeGames(combined)
	if len(games) != 1 {
		t.Fatalf("combined entries = %d", len(games))
	}
	if games[0].Slug != "child" || games[0].Name != "C" {
		t.Fatalf("child identity lost: %+v", games[0])
	}
	if len(games[0].Genres) != 1 || games[0].Genres[0].Name != "Action" {
		t.Fatalf("genres not grafted: %+v", games[0].Genres)
	}
}

func TestNormalizeSlug(t *testing.T) {
	cases := map[string]string{
		`"Chrono Trigger"`: "chrono-trigger",
		"/games/x-men/":    "games-x-men",
		"already-a-slug":   "already-a-slug",
		"  __  ":           "",
	}
	for in, want := range cases {
		if got := NormalizeSlug(in); got != want {
			t.Errorf("NormalizeSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestThrottleSpacesRequests(t *testing.T) {
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := NewHasheous(srv.URL, Options{Timeout: time.Second, Throttle: 50 * time.Millisecond})
	for i := 0; i < 3; i++ {
		if _, err := h.LookupByHash(context.Background(), "sha1", "aaaa"); err != nil {
			t.Fatal(err)
		}
	}
	if len(stamps) != 3 {
		t.Fatalf("requests = %d", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 40*time.Millisecond {
			t.Fatalf("throttle gap %d = %v", i, gap)
		}
	}
}
