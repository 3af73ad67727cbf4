package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sv4u/spotifydl/download/queue"
	"github.com/sv4u/spotifydl/download/spotify"
)

const (
	idOne     = "4uLU6hMCjMI75M1A2tKUQC"
	idTwo     = "1301WleyT98MSxVHPZCA6M"
	idThree   = "3n3Ppam7vgaVa1iaRUc9Lp"
	idEpisode = "0eGsygTp906u18L0Oimnem"
)

func TestSelectFileID(t *testing.T) {
	tests := []struct {
		name    string
		md      *spotify.GIDMetadata
		quality string
		want    string
		wantErr bool
	}{
		{
			name:    "own file",
			md:      songMetadata("a", 1, QualityDefault, QualityPremium),
			quality: QualityPremium,
			want:    "a-" + QualityPremium,
		},
		{
			name: "alternative",
			md: &spotify.GIDMetadata{Alternative: []spotify.Alternative{
				{File: []spotify.AudioFile{{FileID: "alt", Format: QualityDefault}}},
			}},
			quality: QualityDefault,
			want:    "alt",
		},
		{
			name: "alternative when own files lack the quality",
			md: &spotify.GIDMetadata{
				File: []spotify.AudioFile{{FileID: "own-ogg", Format: "OGG_VORBIS_320"}},
				Alternative: []spotify.Alternative{
					{File: []spotify.AudioFile{{FileID: "alt-128", Format: QualityDefault}}},
				},
			},
			quality: QualityDefault,
			want:    "alt-128",
		},
		{
			name: "own file preferred over alternative",
			md: &spotify.GIDMetadata{
				File: []spotify.AudioFile{{FileID: "own-128", Format: QualityDefault}},
				Alternative: []spotify.Alternative{
					{File: []spotify.AudioFile{{FileID: "alt-128", Format: QualityDefault}}},
				},
			},
			quality: QualityDefault,
			want:    "own-128",
		},
		{
			name: "alternative lacks the quality too",
			md: &spotify.GIDMetadata{
				File: []spotify.AudioFile{{FileID: "own-ogg", Format: "OGG_VORBIS_320"}},
				Alternative: []spotify.Alternative{
					{File: []spotify.AudioFile{{FileID: "alt-256", Format: QualityPremium}}},
				},
			},
			quality: QualityDefault,
			wantErr: true,
		},
		{
			name:    "quality missing",
			md:      songMetadata("a", 1, "OGG_VORBIS_320"),
			quality: QualityDefault,
			wantErr: true,
		},
		{
			name:    "no files",
			md:      &spotify.GIDMetadata{},
			quality: QualityDefault,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectFileID(tt.md, tt.quality)
			if tt.wantErr {
				if !errors.Is(err, ErrUnavailable) {
					t.Fatalf("selectFileID() error = %v, want ErrUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("selectFileID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("selectFileID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDownloader_Track(t *testing.T) {
	p := newPipeline(t, Options{})
	p.client.addTrack(t, idOne, songMetadata("Song", 1, QualityDefault, QualityPremium))

	res, err := p.d.Download(context.Background(), trackItem(1, idOne, "Song"))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	want := filepath.Join(p.out, "Artist", "Album", "01 Song.m4a")
	if res.FilePath != want {
		t.Errorf("FilePath = %q, want %q", res.FilePath, want)
	}
	if res.Outcome != OutcomeDownloaded {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeDownloaded)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("final file missing: %v", err)
	}
	if string(data) != "decrypted:encrypted:https://audio.example/Song-MP4_128" {
		t.Errorf("final file content = %q", data)
	}

	if len(p.keys.kinds) != 1 || p.keys.kinds[0] != "audio" {
		t.Errorf("license kinds = %v, want [audio]", p.keys.kinds)
	}
	if len(p.remuxer.jobs) != 1 || p.remuxer.jobs[0].Key != testKey {
		t.Errorf("remux jobs = %+v", p.remuxer.jobs)
	}
	if len(p.tagger.covers) != 1 || string(p.tagger.covers[0]) != "jpeg:https://i.scdn.co/image/large" {
		t.Errorf("embedded cover = %q", p.tagger.covers)
	}
	if p.tagger.tagged[0].Composer != "Writer" {
		t.Errorf("Composer = %q, want Writer", p.tagger.tagged[0].Composer)
	}
	if _, err := os.Stat(p.temp); !os.IsNotExist(err) {
		t.Errorf("temp dir still present: %v", err)
	}
}

func TestDownloader_PremiumQuality(t *testing.T) {
	p := newPipeline(t, Options{PremiumQuality: true})
	p.client.addTrack(t, idOne, songMetadata("Song", 1, QualityDefault, QualityPremium))

	if _, err := p.d.Download(context.Background(), trackItem(1, idOne, "Song")); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if len(p.stream.urls) != 1 || !strings.HasSuffix(p.stream.urls[0], "Song-MP4_256") {
		t.Errorf("stream urls = %v, want the MP4_256 file", p.stream.urls)
	}
}

func TestDownloader_Idempotent(t *testing.T) {
	p := newPipeline(t, Options{})
	p.client.addTrack(t, idOne, songMetadata("Song", 1, QualityDefault))
	item := trackItem(1, idOne, "Song")

	if _, err := p.d.Download(context.Background(), item); err != nil {
		t.Fatalf("first Download() error = %v", err)
	}
	before := p.heavyCalls()

	res, err := p.d.Download(context.Background(), item)
	if err != nil {
		t.Fatalf("second Download() error = %v", err)
	}
	if res.Outcome != OutcomeExists {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeExists)
	}
	if got := p.heavyCalls(); got != before {
		t.Errorf("heavy calls = %d after second run, want %d", got, before)
	}

	// A fresh pipeline sees the file on disk, not just the cache.
	fresh := NewDownloader(p.d.opts, p.d.c)
	res, err = fresh.Download(context.Background(), item)
	if err != nil {
		t.Fatalf("fresh Download() error = %v", err)
	}
	if res.Outcome != OutcomeExists || p.heavyCalls() != before {
		t.Errorf("fresh pipeline outcome = %q heavy = %d", res.Outcome, p.heavyCalls())
	}
}

func TestDownloader_Overwrite(t *testing.T) {
	p := newPipeline(t, Options{Overwrite: true})
	p.client.addTrack(t, idOne, songMetadata("Song", 1, QualityDefault))
	item := trackItem(1, idOne, "Song")

	for i := 0; i < 2; i++ {
		res, err := p.d.Download(context.Background(), item)
		if err != nil {
			t.Fatalf("Download() #%d error = %v", i+1, err)
		}
		if res.Outcome != OutcomeDownloaded {
			t.Errorf("Download() #%d outcome = %q", i+1, res.Outcome)
		}
	}
	if len(p.stream.urls) != 2 {
		t.Errorf("stream downloads = %d, want 2", len(p.stream.urls))
	}
}

func syncedLyrics() *spotify.Lyrics {
	l := &spotify.Lyrics{}
	l.Lyrics.SyncType = "LINE_SYNCED"
	l.Lyrics.Lines = []spotify.LyricsLine{
		{StartTimeMs: "1500", Words: "Hello"},
		{StartTimeMs: "61000", Words: "World"},
	}
	return l
}

func TestDownloader_LyricsAndCover(t *testing.T) {
	p := newPipeline(t, Options{SaveCover: true})
	p.client.premium = true
	md := songMetadata("Song", 1, QualityDefault)
	md.HasLyrics = true
	p.client.addTrack(t, idOne, md)
	p.client.lyrics[idOne] = syncedLyrics()

	res, err := p.d.Download(context.Background(), trackItem(1, idOne, "Song"))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	wantLrc := filepath.Join(p.out, "Artist", "Album", "01 Song.lrc")
	if res.LrcPath != wantLrc {
		t.Errorf("LrcPath = %q, want %q", res.LrcPath, wantLrc)
	}
	lrc, err := os.ReadFile(wantLrc)
	if err != nil {
		t.Fatalf("lrc missing: %v", err)
	}
	if string(lrc) != "[00:01.50]Hello\n[01:01.00]World\n" {
		t.Errorf("lrc = %q", lrc)
	}
	if p.tagger.tagged[0].Lyrics != "Hello\nWorld" {
		t.Errorf("Lyrics tag = %q", p.tagger.tagged[0].Lyrics)
	}

	wantCover := filepath.Join(p.out, "Artist", "Album", "Cover.jpg")
	cover, err := os.ReadFile(wantCover)
	if err != nil {
		t.Fatalf("cover missing: %v", err)
	}
	if string(cover) != "jpeg:https://i.scdn.co/image/large" {
		t.Errorf("cover = %q", cover)
	}
	if got := p.client.Calls("image"); got != 1 {
		t.Errorf("image fetches = %d, want 1", got)
	}
}

func TestDownloader_NoLyricsForFreeAccount(t *testing.T) {
	p := newPipeline(t, Options{})
	md := songMetadata("Song", 1, QualityDefault)
	md.HasLyrics = true
	p.client.addTrack(t, idOne, md)
	p.client.lyrics[idOne] = syncedLyrics()

	res, err := p.d.Download(context.Background(), trackItem(1, idOne, "Song"))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if p.client.Calls("lyrics") != 0 || res.LrcPath != "" {
		t.Errorf("lyrics fetched for a free account: calls=%d lrc=%q", p.client.Calls("lyrics"), res.LrcPath)
	}
}

func TestDownloader_LrcOnly(t *testing.T) {
	p := newPipeline(t, Options{LrcOnly: true, SaveCover: true})
	p.client.premium = true
	md := songMetadata("Song", 1, QualityDefault)
	md.HasLyrics = true
	p.client.addTrack(t, idOne, md)
	p.client.lyrics[idOne] = syncedLyrics()

	res, err := p.d.Download(context.Background(), trackItem(1, idOne, "Song"))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if res.Outcome != OutcomeLrcOnly {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeLrcOnly)
	}
	if p.heavyCalls() != 0 {
		t.Errorf("heavy calls = %d, want 0", p.heavyCalls())
	}
	if res.LrcPath == "" || res.CoverPath != "" {
		t.Errorf("LrcPath = %q CoverPath = %q", res.LrcPath, res.CoverPath)
	}
	if _, err := os.Stat(res.FilePath); !os.IsNotExist(err) {
		t.Errorf("audio file written in lrc-only mode")
	}
}

func TestDownloader_Unavailable(t *testing.T) {
	p := newPipeline(t, Options{})
	p.client.addTrack(t, idOne, songMetadata("Song", 1))

	_, err := p.d.Download(context.Background(), trackItem(1, idOne, "Song"))
	if !errors.Is(err, ErrUnavailable) || !IsSkip(err) {
		t.Fatalf("Download() error = %v, want ErrUnavailable", err)
	}
	if p.client.Calls("pssh") != 0 {
		t.Errorf("PSSH requested for an unavailable track")
	}
}

func TestDownloader_MetadataFailure(t *testing.T) {
	p := newPipeline(t, Options{})

	_, err := p.d.Download(context.Background(), trackItem(1, idOne, "Missing"))
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) || dlErr.Stage != "metadata" {
		t.Fatalf("Download() error = %v, want metadata DownloadError", err)
	}
	var reqErr *spotify.RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != 404 {
		t.Errorf("wrapped error = %v, want RequestError 404", err)
	}
	if IsSkip(err) {
		t.Error("metadata failure reported as skip")
	}
}

func videoManifest() *spotify.VideoManifest {
	return &spotify.VideoManifest{
		BaseURLs:               []string{"https://video.example/"},
		InitializationTemplate: "{{profile_id}}/init.{{file_type}}",
		SegmentTemplate:        "{{profile_id}}/{{segment_timestamp}}.{{file_type}}",
		EndTimeMillis:          8000,
		Contents: []spotify.ManifestContent{{
			SegmentLength: 4,
			Profiles: []spotify.ManifestProfile{
				{ID: 1, FileType: "mp4", VideoBitrate: 1000},
				{ID: 2, FileType: "mp4", VideoBitrate: 4000},
				{ID: 3, FileType: "webm", VideoBitrate: 9000},
				{ID: 4, FileType: "mp4", AudioBitrate: 128},
				{ID: 5, FileType: "mp4", AudioBitrate: 256},
			},
			EncryptionInfos: []spotify.EncryptionInfo{
				{KeySystem: "playready", EncryptionData: "pr"},
				{KeySystem: "widevine", EncryptionData: "wv"},
			},
		}},
	}
}

func TestSelectVideoStreams(t *testing.T) {
	streams, err := selectVideoStreams(videoManifest())
	if err != nil {
		t.Fatalf("selectVideoStreams() error = %v", err)
	}
	if streams.Video.ProfileID != 2 || streams.Audio.ProfileID != 5 {
		t.Errorf("profiles = video %d audio %d, want 2 and 5", streams.Video.ProfileID, streams.Audio.ProfileID)
	}
	if streams.PSSH != "wv" {
		t.Errorf("PSSH = %q, want wv", streams.PSSH)
	}
	if streams.Video.SegmentLength != 4 || streams.Video.BaseURL != "https://video.example/" {
		t.Errorf("video source = %+v", streams.Video)
	}

	if _, err := selectVideoStreams(&spotify.VideoManifest{}); err == nil {
		t.Error("selectVideoStreams() on empty manifest returned no error")
	}
}

func TestDownloader_MusicVideo(t *testing.T) {
	p := newPipeline(t, Options{DownloadMusicVideo: true, SaveCover: true})
	p.client.premium = true
	p.client.manifest = videoManifest()
	md := songMetadata("Clip", 1)
	md.OriginalVideo = []spotify.VideoRef{{GID: "videogid"}}
	p.client.addTrack(t, idOne, md)

	res, err := p.d.Download(context.Background(), trackItem(1, idOne, "Clip"))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	want := filepath.Join(p.out, "Artist", "Unknown Album", "Clip.mp4")
	if res.FilePath != want {
		t.Errorf("FilePath = %q, want %q", res.FilePath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("video file missing: %v", err)
	}
	wantPlaylists := []string{idOne + "_video.m3u8", idOne + "_audio.m3u8"}
	if strings.Join(p.segments.playlists, ",") != strings.Join(wantPlaylists, ",") {
		t.Errorf("playlists = %v, want %v", p.segments.playlists, wantPlaylists)
	}
	if len(p.keys.kinds) != 1 || p.keys.kinds[0] != "video" {
		t.Errorf("license kinds = %v, want [video]", p.keys.kinds)
	}
	if len(p.remuxer.videoJobs) != 1 {
		t.Fatalf("video remux jobs = %d, want 1", len(p.remuxer.videoJobs))
	}
	if string(p.tagger.covers[0]) != "jpeg:https://i.scdn.co/image/xxl" {
		t.Errorf("embedded cover = %q", p.tagger.covers[0])
	}
	if res.CoverPath != filepath.Join(p.out, "Artist", "Unknown Album", "Clip.jpg") {
		t.Errorf("CoverPath = %q", res.CoverPath)
	}
}

func TestDownloader_MusicVideoSkips(t *testing.T) {
	tests := []struct {
		name    string
		premium bool
		lrcOnly bool
		want    error
	}{
		{"free account", false, false, ErrPremiumRequired},
		{"lrc only", true, true, ErrVideoLrcOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, Options{DownloadMusicVideo: true, LrcOnly: tt.lrcOnly})
			p.client.premium = tt.premium
			md := songMetadata("Clip", 1)
			md.OriginalVideo = []spotify.VideoRef{{GID: "videogid"}}
			p.client.addTrack(t, idOne, md)

			_, err := p.d.Download(context.Background(), trackItem(1, idOne, "Clip"))
			if !errors.Is(err, tt.want) {
				t.Errorf("Download() error = %v, want %v", err, tt.want)
			}
			if p.client.Calls("manifest") != 0 {
				t.Error("manifest requested for a skipped video")
			}
		})
	}
}

func TestDownloader_Episode(t *testing.T) {
	p := newPipeline(t, Options{SaveCover: true})
	p.client.shows["show1"] = &spotify.Show{ID: "show1", Name: "Show", Publisher: "Publisher"}
	p.client.addTrack(t, idEpisode, &spotify.GIDMetadata{
		Name:        "Episode",
		Audio:       []spotify.AudioFile{{FileID: "ep-128", Format: QualityDefault}},
		CoverImage:  spotify.ImageGroup{Image: []spotify.Image{{FileID: "epcover", Size: "LARGE", Width: 640}}},
		PublishTime: spotify.GIDDate{Year: 2023, Month: 2, Day: 3},
	})

	item := &queue.Item{
		Position:  1,
		Kind:      queue.ItemKindEpisode,
		SpotifyID: idEpisode,
		Name:      "Episode",
		Track:     &spotify.Track{ID: idEpisode, Type: "episode", Show: &spotify.ShowRef{ID: "show1"}},
	}
	res, err := p.d.Download(context.Background(), item)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	want := filepath.Join(p.out, "Publisher", "Show", "Episode.m4a")
	if res.FilePath != want {
		t.Errorf("FilePath = %q, want %q", res.FilePath, want)
	}
	if len(p.stream.urls) != 1 || !strings.HasSuffix(p.stream.urls[0], "ep-128") {
		t.Errorf("stream urls = %v", p.stream.urls)
	}
	if res.CoverPath != filepath.Join(p.out, "Publisher", "Show", "Cover.jpg") {
		t.Errorf("CoverPath = %q", res.CoverPath)
	}
}

func TestDownloader_FileExistsCached(t *testing.T) {
	p := newPipeline(t, Options{})
	testFile := filepath.Join(t.TempDir(), "test.m4a")

	if p.d.fileExistsCached(testFile) {
		t.Fatal("fileExistsCached() = true for a missing file")
	}
	if err := os.WriteFile(testFile, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if p.d.fileExistsCached(testFile) {
		t.Error("cached miss not served from cache")
	}
	p.d.invalidateFileCache(testFile)
	if !p.d.fileExistsCached(testFile) {
		t.Error("fileExistsCached() = false after invalidation")
	}

	stats := p.d.GetFileExistenceCacheStats()
	if stats["size"] != 1 || stats["max_size"] != 10000 {
		t.Errorf("stats = %v", stats)
	}
}

func TestDownloader_FileCacheEviction(t *testing.T) {
	p := newPipeline(t, Options{})
	p.d.cacheMaxSize = 10
	for i := 0; i < 10; i++ {
		p.d.setFileExistsCached(filepath.Join("x", string(rune('a'+i))), true)
	}
	p.d.setFileExistsCached("extra", true)
	if got := p.d.GetFileExistenceCacheStats()["size"]; got != 10 {
		t.Errorf("size after eviction = %d, want 10", got)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.m4a")
	dst := filepath.Join(dir, "a", "b", "dst.m4a")
	if err := os.WriteFile(src, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := moveFile(src, dst); err != nil {
		t.Fatalf("moveFile() error = %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still present")
	}
	if data, _ := os.ReadFile(dst); string(data) != "data" {
		t.Errorf("dst content = %q", data)
	}
}
