package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"

	"github.com/sv4u/spotifydl/download/spotify"
)

// ErrInvalidURL is returned for URLs that are not an album, playlist, track
// or episode.
var ErrInvalidURL = errors.New("Invalid URL")

var urlRe = regexp.MustCompile(`(album|playlist|track|episode)/(\w{22})`)

// URLInfo is the parsed kind and id of a source URL.
type URLInfo struct {
	Type string
	ID   string
}

// ParseURL extracts the collection type and 22 character id from url.
func ParseURL(url string) (URLInfo, error) {
	m := urlRe.FindStringSubmatch(url)
	if m == nil {
		return URLInfo{}, ErrInvalidURL
	}
	return URLInfo{Type: m[1], ID: m[2]}, nil
}

// MetadataClient is the subset of the provider client the builder needs.
type MetadataClient interface {
	GetTrack(ctx context.Context, id string) (*spotify.Track, error)
	GetEpisode(ctx context.Context, id string) (*spotify.Track, error)
	GetAlbum(ctx context.Context, id string) (*spotify.Album, error)
	GetPlaylist(ctx context.Context, id string) (*spotify.Playlist, error)
}

// Builder expands source URLs into download queues.
type Builder struct {
	client MetadataClient
}

// NewBuilder creates a builder backed by client.
func NewBuilder(client MetadataClient) *Builder {
	return &Builder{client: client}
}

// Resolve returns the items of url in server order. Collections are fully
// drained by the client; null playlist entries are skipped.
func (b *Builder) Resolve(ctx context.Context, url string) ([]*Item, error) {
	info, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	switch info.Type {
	case "album":
		return b.resolveAlbum(ctx, info.ID)
	case "playlist":
		return b.resolvePlaylist(ctx, info.ID)
	case "episode":
		return b.resolveEpisode(ctx, info.ID)
	default:
		return b.resolveTrack(ctx, info.ID)
	}
}

func (b *Builder) resolveTrack(ctx context.Context, id string) ([]*Item, error) {
	track, err := b.client.GetTrack(ctx, id)
	if err != nil {
		log.Printf("ERROR: api_call_failed type=track spotify_id=%s error=%v", id, err)
		return nil, fmt.Errorf("failed to get track %s: %w", id, err)
	}
	return []*Item{newItem(1, track)}, nil
}

func (b *Builder) resolveEpisode(ctx context.Context, id string) ([]*Item, error) {
	episode, err := b.client.GetEpisode(ctx, id)
	if err != nil {
		log.Printf("ERROR: api_call_failed type=episode spotify_id=%s error=%v", id, err)
		return nil, fmt.Errorf("failed to get episode %s: %w", id, err)
	}
	// newItem derives the kind from Type
	episode.Type = string(ItemKindEpisode)
	return []*Item{newItem(1, episode)}, nil
}

func (b *Builder) resolveAlbum(ctx context.Context, id string) ([]*Item, error) {
	album, err := b.client.GetAlbum(ctx, id)
	if err != nil {
		log.Printf("ERROR: api_call_failed type=album spotify_id=%s error=%v", id, err)
		return nil, fmt.Errorf("failed to get album %s: %w", id, err)
	}

	// album tracks come without their album reference
	ref := &spotify.AlbumRef{
		ID:          album.ID,
		Name:        album.Name,
		AlbumType:   album.AlbumType,
		Artists:     album.Artists,
		ReleaseDate: album.ReleaseDate,
	}

	items := make([]*Item, 0, len(album.Tracks.Items))
	for idx := range album.Tracks.Items {
		track := album.Tracks.Items[idx]
		if track.Album == nil {
			track.Album = ref
		}
		item := newItem(idx+1, &track)
		item.Album = album
		items = append(items, item)
	}
	log.Printf("INFO: queue_resolved type=album spotify_id=%s items=%d", id, len(items))
	return items, nil
}

func (b *Builder) resolvePlaylist(ctx context.Context, id string) ([]*Item, error) {
	playlist, err := b.client.GetPlaylist(ctx, id)
	if err != nil {
		log.Printf("ERROR: api_call_failed type=playlist spotify_id=%s error=%v", id, err)
		return nil, fmt.Errorf("failed to get playlist %s: %w", id, err)
	}

	items := make([]*Item, 0, len(playlist.Tracks.Items))
	for idx, entry := range playlist.Tracks.Items {
		if entry.Track == nil || entry.Track.ID == "" {
			log.Printf("INFO: playlist_entry_skipped spotify_id=%s position=%d reason=unavailable", id, idx+1)
			continue
		}
		item := newItem(len(items)+1, entry.Track)
		item.Playlist = &PlaylistInfo{
			ID:       playlist.ID,
			Title:    playlist.Name,
			Artist:   playlist.Owner.DisplayName,
			Position: idx + 1,
		}
		items = append(items, item)
	}
	log.Printf("INFO: queue_resolved type=playlist spotify_id=%s items=%d", id, len(items))
	return items, nil
}

func newItem(position int, track *spotify.Track) *Item {
	kind := ItemKindTrack
	if track.Type == string(ItemKindEpisode) {
		kind = ItemKindEpisode
	}
	return &Item{
		Position:  position,
		Kind:      kind,
		SpotifyID: track.ID,
		Name:      track.Name,
		Track:     track,
		Status:    ItemStatusPending,
	}
}
