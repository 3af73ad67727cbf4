package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sv4u/spotifydl/download/media"
	"github.com/sv4u/spotifydl/download/metadata"
	"github.com/sv4u/spotifydl/download/queue"
	"github.com/sv4u/spotifydl/download/spotify"
)

const testKey = "00112233445566778899aabbccddeeff"

// fakeClient serves canned metadata keyed by GID and counts heavy calls.
type fakeClient struct {
	mu       sync.Mutex
	metadata map[string]*spotify.GIDMetadata
	lyrics   map[string]*spotify.Lyrics
	albums   map[string]*spotify.Album
	shows    map[string]*spotify.Show
	manifest *spotify.VideoManifest
	premium  bool

	calls map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		metadata: map[string]*spotify.GIDMetadata{},
		lyrics:   map[string]*spotify.Lyrics{},
		albums:   map[string]*spotify.Album{},
		shows:    map[string]*spotify.Show{},
		calls:    map[string]int{},
	}
}

func (f *fakeClient) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeClient) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// addTrack registers GID metadata for a base62 track id.
func (f *fakeClient) addTrack(t *testing.T, id string, md *spotify.GIDMetadata) {
	t.Helper()
	gid, err := spotify.TrackIDToGID(id)
	if err != nil {
		t.Fatalf("TrackIDToGID(%q) error = %v", id, err)
	}
	md.GID = gid
	f.metadata[gid] = md
}

func (f *fakeClient) GetGIDMetadata(ctx context.Context, kind, gid string) (*spotify.GIDMetadata, error) {
	f.count("metadata")
	md, ok := f.metadata[gid]
	if !ok {
		return nil, &spotify.RequestError{URL: gid, StatusCode: 404}
	}
	return md, nil
}

func (f *fakeClient) GetVideoManifest(ctx context.Context, gid string) (*spotify.VideoManifest, error) {
	f.count("manifest")
	if f.manifest == nil {
		return nil, fmt.Errorf("no manifest for %s", gid)
	}
	return f.manifest, nil
}

func (f *fakeClient) GetLyrics(ctx context.Context, trackID string) (*spotify.Lyrics, error) {
	f.count("lyrics")
	return f.lyrics[trackID], nil
}

func (f *fakeClient) GetPSSH(ctx context.Context, fileID string) (string, error) {
	f.count("pssh")
	return "pssh-" + fileID, nil
}

func (f *fakeClient) GetStreamURL(ctx context.Context, fileID string) (string, error) {
	f.count("stream_url")
	return "https://audio.example/" + fileID, nil
}

func (f *fakeClient) GetAlbum(ctx context.Context, id string) (*spotify.Album, error) {
	f.count("album")
	return f.albums[id], nil
}

func (f *fakeClient) GetShow(ctx context.Context, id string) (*spotify.Show, error) {
	f.count("show")
	return f.shows[id], nil
}

func (f *fakeClient) GetTrackCredits(ctx context.Context, trackID string) (*spotify.Credits, error) {
	f.count("credits")
	return &spotify.Credits{Composers: []string{"Writer"}}, nil
}

func (f *fakeClient) ImageURL(fileID string) string {
	return "https://i.scdn.co/image/" + fileID
}

func (f *fakeClient) GetImage(ctx context.Context, url string) ([]byte, error) {
	f.count("image")
	return []byte("jpeg:" + url), nil
}

func (f *fakeClient) IsPremium() bool { return f.premium }

type fakeKeys struct {
	mu    sync.Mutex
	kinds []string
}

func (k *fakeKeys) GetDecryptionKey(ctx context.Context, kind, pssh string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kinds = append(k.kinds, kind)
	return testKey, nil
}

type fakeStream struct{ urls []string }

func (s *fakeStream) Download(ctx context.Context, url, dst string) error {
	s.urls = append(s.urls, url)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("encrypted:"+url), 0644)
}

type fakeSegments struct{ playlists []string }

func (s *fakeSegments) DownloadSegments(ctx context.Context, playlistPath, dst string) error {
	s.playlists = append(s.playlists, filepath.Base(playlistPath))
	return os.WriteFile(dst, []byte("segments"), 0644)
}

type fakeRemuxer struct {
	jobs      []media.Job
	videoJobs []media.VideoJob
}

func (r *fakeRemuxer) Remux(ctx context.Context, job media.Job) error {
	r.jobs = append(r.jobs, job)
	data, err := os.ReadFile(job.EncryptedPath)
	if err != nil {
		return err
	}
	return os.WriteFile(job.OutputPath, append([]byte("decrypted:"), data...), 0644)
}

func (r *fakeRemuxer) RemuxVideo(ctx context.Context, job media.VideoJob) error {
	r.videoJobs = append(r.videoJobs, job)
	return os.WriteFile(job.OutputPath, []byte("video"), 0644)
}

type fakeTagger struct {
	tagged []*metadata.Tags
	covers [][]byte
}

func (tg *fakeTagger) Embed(ctx context.Context, path string, tags *metadata.Tags, cover []byte) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	tg.tagged = append(tg.tagged, tags)
	tg.covers = append(tg.covers, cover)
	return nil
}

// pipeline bundles a Downloader with its fakes.
type pipeline struct {
	client   *fakeClient
	keys     *fakeKeys
	stream   *fakeStream
	segments *fakeSegments
	remuxer  *fakeRemuxer
	tagger   *fakeTagger
	out      string
	temp     string
	d        *Downloader
}

func testTemplater(out string) *metadata.Templater {
	return metadata.NewTemplater(metadata.TemplateConfig{
		OutputPath:        out,
		FolderAlbum:       "{artist}/{album}",
		FolderCompilation: "Compilations/{album}",
		FileSingleDisc:    "{track:02d} {title}",
		FileMultiDisc:     "{disc}-{track:02d} {title}",
		FolderNoAlbum:     "{artist}/Unknown Album",
		FileNoAlbum:       "{title}",
		FolderMusicVideo:  "{artist}/Unknown Album",
		FileMusicVideo:    "{title}",
		FilePlaylist:      "Playlists/{playlist_artist}/{playlist_title}",
		Truncate:          40,
	})
}

func newPipeline(t *testing.T, opts Options) *pipeline {
	t.Helper()
	root := t.TempDir()
	p := &pipeline{
		client:   newFakeClient(),
		keys:     &fakeKeys{},
		stream:   &fakeStream{},
		segments: &fakeSegments{},
		remuxer:  &fakeRemuxer{},
		tagger:   &fakeTagger{},
		out:      filepath.Join(root, "output"),
		temp:     filepath.Join(root, "temp"),
	}
	opts.TempPath = p.temp
	if opts.Tags.DateTagTemplate == "" {
		opts.Tags.DateTagTemplate = "%Y-%m-%dT%H:%M:%SZ"
	}
	p.d = NewDownloader(opts, Components{
		Client:    p.client,
		Keys:      p.keys,
		Stream:    p.stream,
		Segments:  p.segments,
		Remuxer:   p.remuxer,
		Tagger:    p.tagger,
		Templater: testTemplater(p.out),
	})
	return p
}

func (p *pipeline) heavyCalls() int {
	return p.client.Calls("pssh") + p.client.Calls("stream_url") + len(p.keys.kinds) + len(p.stream.urls) + len(p.remuxer.jobs)
}

func songMetadata(name string, number int, formats ...string) *spotify.GIDMetadata {
	md := &spotify.GIDMetadata{
		Name:       name,
		Artist:     []spotify.GIDArtist{{Name: "Artist"}},
		Number:     number,
		DiscNumber: 1,
		Album: spotify.GIDAlbum{
			Name:   "Album",
			Artist: []spotify.GIDArtist{{Name: "Artist"}},
			Date:   spotify.GIDDate{Year: 2020, Month: 5, Day: 1},
			CoverGroup: spotify.ImageGroup{Image: []spotify.Image{
				{FileID: "small", Size: "SMALL", Width: 64},
				{FileID: "large", Size: "LARGE", Width: 640},
				{FileID: "xxl", Size: "XXLARGE", Width: 2000},
			}},
		},
	}
	for _, f := range formats {
		md.File = append(md.File, spotify.AudioFile{FileID: name + "-" + f, Format: f})
	}
	return md
}

func trackItem(position int, id, name string) *queue.Item {
	return &queue.Item{
		Position:  position,
		Kind:      queue.ItemKindTrack,
		SpotifyID: id,
		Name:      name,
		Track:     &spotify.Track{ID: id, Name: name, Type: "track", DurationMs: 180000},
		Status:    queue.ItemStatusPending,
	}
}
