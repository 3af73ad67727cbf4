package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

const homePage = `<script>{"accessToken":"tok-123","accessTokenExpirationTimestampMs":1,"isPremium":true,"x":1}</script>`

// newTestClient starts srv's handler behind every endpoint and bootstraps a client.
func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()

	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sp_dc"); err != nil || c.Value != "dc-cookie" {
			http.Error(w, "missing cookie", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, homePage)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Config{
		Cookies: []*http.Cookie{{Name: "sp_dc", Value: "dc-cookie"}},
		Endpoints: Endpoints{
			HomePage:   srv.URL + "/home",
			SPClient:   srv.URL + "/sp",
			GUE1:       srv.URL + "/gue1",
			Seektables: srv.URL + "/seek",
			PublicAPI:  srv.URL + "/v1",
			Images:     srv.URL + "/image/",
		},
		CacheMaxSize: 10,
		CacheTTL:     3600,
	})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client, srv
}

func requireBearer(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("authorization"); got != "Bearer tok-123" {
		t.Errorf("expected bearer token, got %q", got)
	}
	if got := r.Header.Get("app-platform"); got != "WebPlayer" {
		t.Errorf("expected app-platform header, got %q", got)
	}
}

func TestNewClient_Bootstrap(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())

	if client.token != "tok-123" {
		t.Errorf("Expected token tok-123, got %q", client.token)
	}
	if !client.IsPremium() {
		t.Error("Expected premium account")
	}
}

func TestNewClient_MissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>logged out</html>")
	}))
	defer srv.Close()

	_, err := NewClient(context.Background(), Config{
		Cookies:   []*http.Cookie{{Name: "sp_dc", Value: "x"}},
		Endpoints: Endpoints{HomePage: srv.URL},
	})
	var spErr *SpotifyError
	if !errors.As(err, &spErr) {
		t.Fatalf("Expected SpotifyError, got %v", err)
	}
}

func TestNewClient_MissingCookie(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	if err == nil {
		t.Fatal("Expected error without sp_dc cookie")
	}
}

func TestGetAlbum_DrainsPagesAndCaches(t *testing.T) {
	var albumCalls int32
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/v1/albums/album1", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		atomic.AddInt32(&albumCalls, 1)
		fmt.Fprintf(w, `{"id":"album1","name":"A","album_type":"album",
			"tracks":{"items":[{"id":"t1","track_number":1,"disc_number":1},{"id":"t2","track_number":2,"disc_number":1}],
			"next":"%s/v1/albums/album1/tracks?offset=2"}}`, base)
	})
	mux.HandleFunc("/v1/albums/album1/tracks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "2" {
			fmt.Fprintf(w, `{"items":[{"id":"t3","track_number":3,"disc_number":1}],"next":"%s/v1/albums/album1/tracks?offset=3"}`, base)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"t4","track_number":1,"disc_number":2}],"next":null}`)
	})
	client, srv := newTestClient(t, mux)
	base = srv.URL

	for i := 0; i < 2; i++ {
		album, err := client.GetAlbum(context.Background(), "album1")
		if err != nil {
			t.Fatalf("GetAlbum() failed: %v", err)
		}
		var ids []string
		for _, tr := range album.Tracks.Items {
			ids = append(ids, tr.ID)
		}
		if strings.Join(ids, ",") != "t1,t2,t3,t4" {
			t.Errorf("unexpected track order %v", ids)
		}
		if album.Tracks.Next != "" {
			t.Errorf("drained album should have no next cursor, got %q", album.Tracks.Next)
		}
	}
	if albumCalls != 1 {
		t.Errorf("album should be fetched once, fetched %d times", albumCalls)
	}
	if stats := client.GetCacheStats(); stats.Hits != 1 {
		t.Errorf("expected one cache hit, got %+v", stats)
	}
}

func TestGetPlaylist_KeepsNullEntriesForBuilder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/playlists/pl1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"pl1","name":"Mix","tracks":{"items":[{"track":{"id":"t1","type":"track"}},{"track":null},{"track":{"id":"e1","type":"episode"}}],"next":null}}`)
	})
	client, _ := newTestClient(t, mux)

	pl, err := client.GetPlaylist(context.Background(), "pl1")
	if err != nil {
		t.Fatalf("GetPlaylist() failed: %v", err)
	}
	if len(pl.Tracks.Items) != 3 {
		t.Fatalf("Expected 3 raw items, got %d", len(pl.Tracks.Items))
	}
	if pl.Tracks.Items[1].Track != nil {
		t.Error("null playlist track should decode as nil")
	}
	if pl.Tracks.Items[2].Track.Type != "episode" {
		t.Errorf("Expected episode, got %q", pl.Tracks.Items[2].Track.Type)
	}
}

func TestGetLyrics_NotFoundIsNil(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sp/color-lyrics/v2/track/nolyrics", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/sp/color-lyrics/v2/track/synced", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"lyrics":{"syncType":"LINE_SYNCED","lines":[{"startTimeMs":"1500","words":"hello"}]}}`)
	})
	client, _ := newTestClient(t, mux)

	lyrics, err := client.GetLyrics(context.Background(), "nolyrics")
	if err != nil || lyrics != nil {
		t.Errorf("Expected nil, nil for 404; got %v, %v", lyrics, err)
	}

	lyrics, err = client.GetLyrics(context.Background(), "synced")
	if err != nil {
		t.Fatalf("GetLyrics() failed: %v", err)
	}
	if lyrics.Lyrics.SyncType != "LINE_SYNCED" || lyrics.Lyrics.Lines[0].StartTimeMs != "1500" {
		t.Errorf("unexpected lyrics %+v", lyrics)
	}
}

func TestNon2xxReturnsRequestError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tracks/bad", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "forbidden")
	})
	client, _ := newTestClient(t, mux)

	_, err := client.GetTrack(context.Background(), "bad")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != 403 || reqErr.Body != "forbidden" {
		t.Errorf("unexpected error %+v", reqErr)
	}
	if err.Error() != "Request failed with status code 403: forbidden" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRateLimitedResponseUpdatesTracker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tracks/busy", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client, _ := newTestClient(t, mux)

	_, err := client.GetTrack(context.Background(), "busy")
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("Expected RateLimitError, got %v", err)
	}
	if rlErr.RetryAfter != 7 {
		t.Errorf("Expected RetryAfter 7, got %d", rlErr.RetryAfter)
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != 429 {
		t.Errorf("RateLimitError should wrap the 429 RequestError")
	}

	info := client.GetRateLimitInfo()
	if info == nil || !info.Active {
		t.Fatal("tracker should hold an active rate limit")
	}
}

func TestPSSHAndStreamURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/seek/seektable/file1.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("authorization") != "" {
			t.Error("seektable requests must be unauthenticated")
		}
		fmt.Fprint(w, `{"pssh":"AAAAU3Bzc2g=","offset":0}`)
	})
	mux.HandleFunc("/gue1/storage-resolve/v2/files/audio/interactive/11/file1", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		if r.URL.Query().Get("alt") != "json" {
			t.Errorf("expected alt=json, got %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"cdnurl":["https://cdn.example/a.mp4","https://cdn.example/b.mp4"]}`)
	})
	mux.HandleFunc("/seek/seektable/empty.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	client, _ := newTestClient(t, mux)

	pssh, err := client.GetPSSH(context.Background(), "file1")
	if err != nil || pssh != "AAAAU3Bzc2g=" {
		t.Errorf("GetPSSH() = %q, %v", pssh, err)
	}
	url, err := client.GetStreamURL(context.Background(), "file1")
	if err != nil || url != "https://cdn.example/a.mp4" {
		t.Errorf("GetStreamURL() = %q, %v", url, err)
	}
	if _, err := client.GetPSSH(context.Background(), "empty"); err == nil {
		t.Error("Expected error for seektable without pssh")
	}
}

func TestGetWidevineLicense_PostsRawChallenge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gue1/widevine-license/v1/audio/license", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "challenge-bytes" {
			t.Errorf("unexpected challenge %q", body)
		}
		_, _ = w.Write([]byte{0x08, 0x02, 0xff})
	})
	client, _ := newTestClient(t, mux)

	license, err := client.GetWidevineLicense(context.Background(), "audio", []byte("challenge-bytes"))
	if err != nil {
		t.Fatalf("GetWidevineLicense() failed: %v", err)
	}
	if len(license) != 3 || license[2] != 0xff {
		t.Errorf("unexpected license bytes %v", license)
	}
}

func TestGetEpisode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/episodes/ep1", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		fmt.Fprint(w, `{"id":"ep1","name":"Pilot","type":"episode","release_date":"2021-03-04",
			"show":{"id":"show1","name":"The Show","publisher":"Studio"}}`)
	})
	client, _ := newTestClient(t, mux)

	episode, err := client.GetEpisode(context.Background(), "ep1")
	if err != nil {
		t.Fatalf("GetEpisode() failed: %v", err)
	}
	if episode.Type != "episode" || episode.Name != "Pilot" || episode.ReleaseDate != "2021-03-04" {
		t.Errorf("unexpected episode %+v", episode)
	}
	if episode.Show == nil || episode.Show.ID != "show1" || episode.Show.Publisher != "Studio" {
		t.Errorf("unexpected show %+v", episode.Show)
	}
}

func TestGetTrackCredits(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sp/track-credits-view/v0/experimental/t1/credits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"trackUri":"spotify:track:t1","roleCredits":[
			{"roleTitle":"Performers","artists":[{"name":"Singer"}]},
			{"roleTitle":"Writers","artists":[{"name":"Writer A"},{"name":"Writer B"}]},
			{"roleTitle":"Producers","artists":[{"name":"Producer"}]}]}`)
	})
	client, _ := newTestClient(t, mux)

	credits, err := client.GetTrackCredits(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTrackCredits() failed: %v", err)
	}
	if strings.Join(credits.Composers, "|") != "Writer A|Writer B" {
		t.Errorf("unexpected composers %v", credits.Composers)
	}
	if strings.Join(credits.Producers, "|") != "Producer" {
		t.Errorf("unexpected producers %v", credits.Producers)
	}
}

func TestGetImage_Cached(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/image/cover1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("jpeg"))
	})
	client, _ := newTestClient(t, mux)

	url := client.ImageURL("cover1")
	for i := 0; i < 3; i++ {
		data, err := client.GetImage(context.Background(), url)
		if err != nil || string(data) != "jpeg" {
			t.Fatalf("GetImage() = %q, %v", data, err)
		}
	}
	if calls != 1 {
		t.Errorf("image should be fetched once, fetched %d times", calls)
	}
}

func TestGetGIDMetadataAndManifest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sp/metadata/4/track/abcd", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("market") != "from_token" {
			t.Errorf("expected market=from_token")
		}
		fmt.Fprint(w, `{"gid":"abcd","name":"Song","number":3,"disc_number":1,"explicit":true,
			"external_id":[{"type":"isrc","id":"USABC1234567"}],
			"file":[{"file_id":"f128","format":"MP4_128"},{"file_id":"f256","format":"MP4_256"}],
			"album":{"gid":"ef01","name":"Album","date":{"year":2020,"month":5}}}`)
	})
	mux.HandleFunc("/gue1/manifests/v7/json/sources/vid1/options/supports_drm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"base_urls":["https://v.example/"],"end_time_millis":8000,
			"contents":[{"segment_length":4,"profiles":[{"id":1,"file_type":"mp4","video_bitrate":100}],
			"encryption_infos":[{"key_system":"widevine","encryption_data":"UFNTSA=="}]}]}`)
	})
	client, _ := newTestClient(t, mux)

	md, err := client.GetGIDMetadata(context.Background(), "track", "abcd")
	if err != nil {
		t.Fatalf("GetGIDMetadata() failed: %v", err)
	}
	if md.ISRC() != "USABC1234567" || len(md.File) != 2 || md.Album.Date.Month != 5 || !md.Explicit {
		t.Errorf("unexpected metadata %+v", md)
	}

	manifest, err := client.GetVideoManifest(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("GetVideoManifest() failed: %v", err)
	}
	if manifest.Contents[0].EncryptionInfos[0].EncryptionData != "UFNTSA==" || manifest.EndTimeMillis != 8000 {
		t.Errorf("unexpected manifest %+v", manifest)
	}
}

func TestParseCookiesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	content := "# Netscape HTTP Cookie File\n\n" +
		".spotify.com\tTRUE\t/\tTRUE\t1999999999\tsp_t\tabc\n" +
		"#HttpOnly_.spotify.com\tTRUE\t/\tTRUE\t1999999999\tsp_dc\tsecret-dc\n" +
		"# a comment line\n" +
		"malformed line\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cookies, err := ParseCookiesFile(path)
	if err != nil {
		t.Fatalf("ParseCookiesFile() failed: %v", err)
	}
	if len(cookies) != 2 {
		t.Fatalf("Expected 2 cookies, got %d", len(cookies))
	}
	dc, err := SpDC(cookies)
	if err != nil || dc != "secret-dc" {
		t.Errorf("SpDC() = %q, %v", dc, err)
	}

	if _, err := SpDC(cookies[:1]); err == nil {
		t.Error("Expected error when sp_dc is missing")
	}
}

func TestGIDConversion(t *testing.T) {
	tests := []struct {
		id  string
		gid string
	}{
		{"4uLU6hMCjMI75M1A2tKUQC", "93bc414a606747b2b612491ef83d5a3e"},
		{"00000000000000000000A0", "000000000000000000000000000008b8"},
		{"0000000000000000000001", "00000000000000000000000000000001"},
	}
	for _, tt := range tests {
		gid, err := TrackIDToGID(tt.id)
		if err != nil || gid != tt.gid {
			t.Errorf("TrackIDToGID(%q) = %q, %v; want %q", tt.id, gid, err, tt.gid)
		}
		id, err := GIDToTrackID(tt.gid)
		if err != nil || id != tt.id {
			t.Errorf("GIDToTrackID(%q) = %q, %v; want %q", tt.gid, id, err, tt.id)
		}
	}

	if _, err := TrackIDToGID("bad-id!"); err == nil {
		t.Error("Expected error for invalid base62")
	}
	if _, err := GIDToTrackID("zz"); err == nil {
		t.Error("Expected error for invalid hex")
	}
}

func TestDrain_StopsOnError(t *testing.T) {
	first := Page[int]{Items: []int{1, 2}, Next: "page2"}
	calls := 0
	fetch := func(ctx context.Context, next string) (Page[int], error) {
		calls++
		if next == "page2" {
			return Page[int]{Items: []int{3}, Next: "page3"}, nil
		}
		return Page[int]{}, errors.New("boom")
	}

	if _, err := Drain(context.Background(), first, fetch, 0); err == nil {
		t.Error("Expected error from failing page")
	}
	if calls != 2 {
		t.Errorf("Expected 2 fetches, got %d", calls)
	}

	items, err := Drain(context.Background(), Page[int]{Items: []int{9}}, fetch, 0)
	if err != nil || len(items) != 1 || items[0] != 9 {
		t.Errorf("single page drain = %v, %v", items, err)
	}
}
