package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// Endpoints holds the provider base URLs. Tests point them at httptest servers.
type Endpoints struct {
	HomePage   string // https://open.spotify.com/
	SPClient   string // metadata, lyrics, credits
	GUE1       string // manifests, license, storage-resolve
	Seektables string // PSSH lookups, unauthenticated
	PublicAPI  string // api.spotify.com/v1
	Images     string // cover art, unauthenticated
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		HomePage:   "https://open.spotify.com/",
		SPClient:   "https://spclient.wg.spotify.com",
		GUE1:       "https://gue1-spclient.spotify.com",
		Seektables: "https://seektables.scdn.co",
		PublicAPI:  "https://api.spotify.com/v1",
		Images:     "https://i.scdn.co/image/",
	}
}

// Config holds configuration for the provider client.
type Config struct {
	// Cookies from a Netscape cookies.txt. Must contain sp_dc.
	Cookies []*http.Cookie

	HTTPClient *http.Client
	Endpoints  Endpoints

	// Cache configuration
	CacheMaxSize         int
	CacheTTL             int
	CacheCleanupInterval time.Duration // 0 = disabled

	// Rate limiting configuration
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   float64

	// PageWait is slept between collection page fetches.
	PageWait time.Duration
}

var sessionHeaders = map[string]string{
	"sec-ch-ua":           `"Google Chrome";v="123", "Not:A-Brand";v="8", "Chromium";v="123"`,
	"accept-language":     "en-US",
	"sec-ch-ua-mobile":    "?0",
	"app-platform":        "WebPlayer",
	"User-Agent":          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"accept":              "application/json",
	"Referer":             "https://open.spotify.com/",
	"spotify-app-version": "1.2.35.284.g56aba07f",
	"sec-ch-ua-platform":  `"Windows"`,
}

var (
	accessTokenRe = regexp.MustCompile(`accessToken":"(.*?)"`)
	isPremiumRe   = regexp.MustCompile(`isPremium":(.*?),`)
)

// Client is a cookie-authenticated session against the provider's web
// player surface. It adds:
// - Proactive rate limiting and 429 tracking
// - Album and image caching
// - Transparent pagination of album and playlist tracks
type Client struct {
	http             *http.Client
	endpoints        Endpoints
	spDC             string
	token            string
	premium          bool
	pageWait         time.Duration
	albums           *TTLCache[*Album]
	images           *TTLCache[[]byte]
	rateLimiter      *RateLimiter
	rateLimitTracker *RateLimitTracker
}

// NewClient bootstraps a session: it scrapes the home page for the bearer
// token and the premium flag.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	spDC, err := SpDC(config.Cookies)
	if err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	endpoints := config.Endpoints
	if endpoints == (Endpoints{}) {
		endpoints = DefaultEndpoints()
	}

	maxSize := config.CacheMaxSize
	if maxSize <= 0 {
		maxSize = 512
	}
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = 3600
	}
	albums := NewTTLCache[*Album](maxSize, ttl)
	images := NewTTLCache[[]byte](maxSize, ttl)
	if config.CacheCleanupInterval > 0 {
		albums.StartCleanup(config.CacheCleanupInterval)
		images.StartCleanup(config.CacheCleanupInterval)
	}

	c := &Client{
		http:             httpClient,
		endpoints:        endpoints,
		spDC:             spDC,
		pageWait:         config.PageWait,
		albums:           albums,
		images:           images,
		rateLimiter:      NewRateLimiter(config.RateLimitEnabled, config.RateLimitRequests, config.RateLimitWindow),
		rateLimitTracker: NewRateLimitTracker(),
	}

	if err := c.bootstrap(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) bootstrap(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodGet, c.endpoints.HomePage, nil, true)
	if err != nil {
		return &SpotifyError{Message: "failed to load home page", Original: err}
	}

	m := accessTokenRe.FindSubmatch(body)
	if m == nil {
		return &SpotifyError{Message: "access token not found on home page, check the sp_dc cookie"}
	}
	c.token = string(m[1])

	if p := isPremiumRe.FindSubmatch(body); p != nil {
		c.premium = string(p[1]) == "true"
	}
	log.Printf("DEBUG: session_ready premium=%t", c.premium)
	return nil
}

// IsPremium reports whether the session belongs to a premium account.
func (c *Client) IsPremium() bool {
	return c.premium
}

// applyRateLimiting waits for both an active 429 back-off and the sliding window.
func (c *Client) applyRateLimiting(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := c.rateLimitTracker.Wait(ctx); err != nil {
		return err
	}
	return c.rateLimiter.WaitIfNeeded(ctx)
}

// do performs one request. session adds the browser headers, the sp_dc
// cookie and, once bootstrapped, the bearer token.
func (c *Client) do(ctx context.Context, method, url string, body []byte, session bool) ([]byte, error) {
	if err := c.applyRateLimiting(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if session {
		for k, v := range sessionHeaders {
			req.Header.Set(k, v)
		}
		req.AddCookie(&http.Cookie{Name: "sp_dc", Value: c.spDC})
		if c.token != "" {
			req.Header.Set("authorization", "Bearer "+c.token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.handleError(resp, data, url)
	}
	return data, nil
}

// handleError converts a non-2xx response and updates rate limit state.
func (c *Client) handleError(resp *http.Response, body []byte, url string) error {
	reqErr := &RequestError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		URL:        url,
	}

	if resp.StatusCode != http.StatusTooManyRequests {
		return reqErr
	}

	retryAfter := 1
	if v, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && v > 0 {
		retryAfter = v
	}
	c.rateLimitTracker.Update(retryAfter)
	log.Printf("WARN: rate_limited retry_after=%d url=%s", retryAfter, url)
	return &RateLimitError{RetryAfter: retryAfter, Original: reqErr}
}

func (c *Client) getJSON(ctx context.Context, url string, session bool, v interface{}) error {
	data, err := c.do(ctx, http.MethodGet, url, nil, session)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &SpotifyError{Message: fmt.Sprintf("invalid JSON from %s", url), Original: err}
	}
	return nil
}

func fetchPage[T any](c *Client) PageFetcher[T] {
	return func(ctx context.Context, next string) (Page[T], error) {
		var page Page[T]
		err := c.getJSON(ctx, next, true, &page)
		return page, err
	}
}

// GetRateLimitInfo returns the current rate limit state.
func (c *Client) GetRateLimitInfo() *RateLimitInfo {
	return c.rateLimitTracker.GetInfo()
}

// GetCacheStats returns album cache statistics.
func (c *Client) GetCacheStats() CacheStats {
	return c.albums.Stats()
}

// Close stops background cache cleanup.
func (c *Client) Close() {
	c.albums.StopCleanup()
	c.images.StopCleanup()
}

// GetGIDMetadata fetches internal metadata for a track or episode GID.
// kind is "track" or "episode".
func (c *Client) GetGIDMetadata(ctx context.Context, kind, gid string) (*GIDMetadata, error) {
	url := fmt.Sprintf("%s/metadata/4/%s/%s?market=from_token", c.endpoints.SPClient, kind, gid)
	var md GIDMetadata
	if err := c.getJSON(ctx, url, true, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// GetVideoManifest fetches the DRM manifest of a music video.
func (c *Client) GetVideoManifest(ctx context.Context, gid string) (*VideoManifest, error) {
	url := fmt.Sprintf("%s/manifests/v7/json/sources/%s/options/supports_drm", c.endpoints.GUE1, gid)
	var manifest VideoManifest
	if err := c.getJSON(ctx, url, true, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// GetWidevineLicense POSTs a raw license challenge. kind is "audio" or "video".
func (c *Client) GetWidevineLicense(ctx context.Context, kind string, challenge []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/widevine-license/v1/%s/license", c.endpoints.GUE1, kind)
	return c.do(ctx, http.MethodPost, url, challenge, true)
}

// GetLyrics fetches lyrics. A 404 means the track has none and yields nil, nil.
func (c *Client) GetLyrics(ctx context.Context, trackID string) (*Lyrics, error) {
	url := fmt.Sprintf("%s/color-lyrics/v2/track/%s", c.endpoints.SPClient, trackID)
	var lyrics Lyrics
	if err := c.getJSON(ctx, url, true, &lyrics); err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &lyrics, nil
}

// GetPSSH returns the base64 Widevine PSSH of an audio file from its seektable.
func (c *Client) GetPSSH(ctx context.Context, fileID string) (string, error) {
	url := fmt.Sprintf("%s/seektable/%s.json", c.endpoints.Seektables, fileID)
	body, err := c.do(ctx, http.MethodGet, url, nil, false)
	if err != nil {
		return "", err
	}
	pssh := gjson.GetBytes(body, "pssh")
	if !pssh.Exists() || pssh.String() == "" {
		return "", &SpotifyError{Message: fmt.Sprintf("seektable for %s has no pssh", fileID)}
	}
	return pssh.String(), nil
}

// GetStreamURL resolves a short-lived CDN URL for an audio file.
func (c *Client) GetStreamURL(ctx context.Context, fileID string) (string, error) {
	url := fmt.Sprintf(
		"%s/storage-resolve/v2/files/audio/interactive/11/%s?version=10000000&product=9&platform=39&alt=json",
		c.endpoints.GUE1, fileID,
	)
	body, err := c.do(ctx, http.MethodGet, url, nil, true)
	if err != nil {
		return "", err
	}
	cdn := gjson.GetBytes(body, "cdnurl.0")
	if !cdn.Exists() {
		return "", &SpotifyError{Message: fmt.Sprintf("storage-resolve for %s returned no cdnurl", fileID)}
	}
	return cdn.String(), nil
}

// GetTrack fetches public track metadata.
func (c *Client) GetTrack(ctx context.Context, id string) (*Track, error) {
	var track Track
	if err := c.getJSON(ctx, fmt.Sprintf("%s/tracks/%s", c.endpoints.PublicAPI, id), true, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// GetEpisode fetches public episode metadata. The result is a Track with
// Type "episode" and its show reference set.
func (c *Client) GetEpisode(ctx context.Context, id string) (*Track, error) {
	var episode Track
	if err := c.getJSON(ctx, fmt.Sprintf("%s/episodes/%s", c.endpoints.PublicAPI, id), true, &episode); err != nil {
		return nil, err
	}
	return &episode, nil
}

// GetAlbum fetches an album with every track page drained (cached).
func (c *Client) GetAlbum(ctx context.Context, id string) (*Album, error) {
	return c.albums.GetOrLoad("album:"+id, func() (*Album, error) {
		var album Album
		if err := c.getJSON(ctx, fmt.Sprintf("%s/albums/%s", c.endpoints.PublicAPI, id), true, &album); err != nil {
			return nil, err
		}
		items, err := Drain(ctx, album.Tracks, fetchPage[Track](c), c.pageWait)
		if err != nil {
			return nil, err
		}
		album.Tracks = Page[Track]{Items: items, Total: len(items)}
		return &album, nil
	})
}

// GetPlaylist fetches a playlist with every item page drained.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	var playlist Playlist
	if err := c.getJSON(ctx, fmt.Sprintf("%s/playlists/%s", c.endpoints.PublicAPI, id), true, &playlist); err != nil {
		return nil, err
	}
	items, err := Drain(ctx, playlist.Tracks, fetchPage[PlaylistItem](c), c.pageWait)
	if err != nil {
		return nil, err
	}
	playlist.Tracks = Page[PlaylistItem]{Items: items, Total: len(items)}
	return &playlist, nil
}

// GetShow fetches public show metadata.
func (c *Client) GetShow(ctx context.Context, id string) (*Show, error) {
	var show Show
	if err := c.getJSON(ctx, fmt.Sprintf("%s/shows/%s", c.endpoints.PublicAPI, id), true, &show); err != nil {
		return nil, err
	}
	return &show, nil
}

// GetTrackCredits fetches composer and producer credits.
func (c *Client) GetTrackCredits(ctx context.Context, trackID string) (*Credits, error) {
	url := fmt.Sprintf("%s/track-credits-view/v0/experimental/%s/credits", c.endpoints.SPClient, trackID)
	body, err := c.do(ctx, http.MethodGet, url, nil, true)
	if err != nil {
		return nil, err
	}

	names := func(role string) []string {
		res := gjson.GetBytes(body, fmt.Sprintf(`roleCredits.#(roleTitle=="%s").artists.#.name`, role))
		return lo.Map(res.Array(), func(r gjson.Result, _ int) string { return r.String() })
	}

	composers := names("Composers")
	if len(composers) == 0 {
		composers = names("Writers")
	}
	return &Credits{
		Composers: composers,
		Producers: names("Producers"),
	}, nil
}

// ImageURL returns the cover URL of an image file id.
func (c *Client) ImageURL(fileID string) string {
	return c.endpoints.Images + fileID
}

// GetImage downloads image bytes (cached by URL).
func (c *Client) GetImage(ctx context.Context, url string) ([]byte, error) {
	return c.images.GetOrLoad(url, func() ([]byte, error) {
		return c.do(ctx, http.MethodGet, url, nil, false)
	})
}
