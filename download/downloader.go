package download

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/sv4u/spotifydl/download/config"
	"github.com/sv4u/spotifydl/download/media"
	"github.com/sv4u/spotifydl/download/metadata"
	"github.com/sv4u/spotifydl/download/queue"
	"github.com/sv4u/spotifydl/download/spotify"
)

// Audio quality tiers.
const (
	QualityDefault = "MP4_128"
	QualityPremium = "MP4_256"
)

// Cover sizes requested from the image CDN.
const (
	CoverSizeSong  = "LARGE"
	CoverSizeVideo = "XXLARGE"
)

// Client is the subset of the provider client the pipeline needs.
type Client interface {
	GetGIDMetadata(ctx context.Context, kind, gid string) (*spotify.GIDMetadata, error)
	GetVideoManifest(ctx context.Context, gid string) (*spotify.VideoManifest, error)
	GetLyrics(ctx context.Context, trackID string) (*spotify.Lyrics, error)
	GetPSSH(ctx context.Context, fileID string) (string, error)
	GetStreamURL(ctx context.Context, fileID string) (string, error)
	GetAlbum(ctx context.Context, id string) (*spotify.Album, error)
	GetShow(ctx context.Context, id string) (*spotify.Show, error)
	GetTrackCredits(ctx context.Context, trackID string) (*spotify.Credits, error)
	ImageURL(fileID string) string
	GetImage(ctx context.Context, url string) ([]byte, error)
	IsPremium() bool
}

// KeyProvider turns a PSSH into a hex content key.
type KeyProvider interface {
	GetDecryptionKey(ctx context.Context, kind, pssh string) (string, error)
}

// TagWriter embeds tags and cover art into an MP4 file in place.
type TagWriter interface {
	Embed(ctx context.Context, path string, tags *metadata.Tags, cover []byte) error
}

// Options are the per-run switches of the pipeline.
type Options struct {
	TempPath           string
	PremiumQuality     bool
	DownloadMusicVideo bool
	SaveCover          bool
	Overwrite          bool
	LrcOnly            bool
	NoLrc              bool
	Tags               metadata.TagOptions
}

// OptionsFromConfig copies the pipeline switches out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TempPath:           cfg.TempPath,
		PremiumQuality:     cfg.PremiumQuality,
		DownloadMusicVideo: cfg.DownloadMusicVideo,
		SaveCover:          cfg.SaveCover,
		Overwrite:          cfg.Overwrite,
		LrcOnly:            cfg.LrcOnly,
		NoLrc:              cfg.NoLrc,
		Tags: metadata.TagOptions{
			DateTagTemplate:  cfg.DateTagTemplate,
			ReplaceJoinChars: cfg.ReplaceJoinChars,
		},
	}
}

// TemplateConfigFrom copies the output root and path templates out of cfg.
func TemplateConfigFrom(cfg *config.Config) metadata.TemplateConfig {
	return metadata.TemplateConfig{
		OutputPath:        cfg.OutputPath,
		FolderAlbum:       cfg.TemplateFolderAlbum,
		FolderCompilation: cfg.TemplateFolderCompilation,
		FileSingleDisc:    cfg.TemplateFileSingleDisc,
		FileMultiDisc:     cfg.TemplateFileMultiDisc,
		FolderNoAlbum:     cfg.TemplateFolderNoAlbum,
		FileNoAlbum:       cfg.TemplateFileNoAlbum,
		FolderMusicVideo:  cfg.TemplateFolderMusicVideo,
		FileMusicVideo:    cfg.TemplateFileMusicVideo,
		FilePlaylist:      cfg.TemplateFilePlaylist,
		Truncate:          cfg.Truncate,
	}
}

// Components are the collaborators of a Downloader.
type Components struct {
	Client    Client
	Keys      KeyProvider
	Stream    media.Downloader
	Segments  media.SegmentDownloader
	Remuxer   media.Remuxer
	Tagger    TagWriter
	Templater *metadata.Templater
}

// Outcome says what happened to the main file of an item.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeExists     Outcome = "exists"
	OutcomeLrcOnly    Outcome = "lrc_only"
)

// Result describes one processed item.
type Result struct {
	Outcome   Outcome
	Kind      metadata.PathKind
	FilePath  string
	Tags      *metadata.Tags
	LrcPath   string // set when a .lrc was written
	CoverPath string // set when a cover was written
}

// Downloader runs the per-item pipeline: metadata, key, stream, remux, tag
// and placement.
type Downloader struct {
	opts Options
	c    Components

	// File existence cache
	fileExistenceCache map[string]bool
	cacheMu            sync.RWMutex
	cacheMaxSize       int
}

// NewDownloader creates a pipeline. Client, Templater and Tagger are required;
// the heavy collaborators are only used when something is downloaded.
func NewDownloader(opts Options, c Components) *Downloader {
	return &Downloader{
		opts:               opts,
		c:                  c,
		fileExistenceCache: make(map[string]bool),
		cacheMaxSize:       10000,
	}
}

// Download processes one queue item. The temp directory is removed when it
// returns, whatever the outcome.
func (d *Downloader) Download(ctx context.Context, item *queue.Item) (*Result, error) {
	defer d.cleanupTemp()

	gid, err := spotify.TrackIDToGID(item.SpotifyID)
	if err != nil {
		return nil, stageErr("gid", item.SpotifyID, err)
	}

	if item.Kind == queue.ItemKindEpisode {
		return d.downloadEpisode(ctx, item, gid)
	}

	log.Printf("DEBUG: Getting GID metadata")
	md, err := d.c.Client.GetGIDMetadata(ctx, "track", gid)
	if err != nil {
		return nil, stageErr("metadata", item.SpotifyID, err)
	}

	if d.opts.DownloadMusicVideo && len(md.OriginalVideo) > 0 {
		return d.downloadMusicVideo(ctx, item, md)
	}
	return d.downloadTrack(ctx, item, md)
}

func (d *Downloader) quality() string {
	if d.opts.PremiumQuality {
		return QualityPremium
	}
	return QualityDefault
}

// selectFileID picks the file of the requested quality from the track's own
// files, falling back to the first alternative recording.
func selectFileID(md *spotify.GIDMetadata, quality string) (string, error) {
	match := func(f spotify.AudioFile) bool { return f.Format == quality }
	if f, ok := lo.Find(md.File, match); ok {
		return f.FileID, nil
	}
	if len(md.Alternative) > 0 {
		if f, ok := lo.Find(md.Alternative[0].File, match); ok {
			return f.FileID, nil
		}
	}
	return "", ErrUnavailable
}

// coverURL returns the image of the exact size, or the widest one.
func (d *Downloader) coverURL(group spotify.ImageGroup, size string) string {
	if len(group.Image) == 0 {
		return ""
	}
	img, ok := lo.Find(group.Image, func(i spotify.Image) bool { return i.Size == size })
	if !ok {
		img = lo.MaxBy(group.Image, func(a, b spotify.Image) bool { return a.Width > b.Width })
	}
	return d.c.Client.ImageURL(img.FileID)
}

func (d *Downloader) tempFile(name string) string {
	return filepath.Join(d.opts.TempPath, name)
}

func (d *Downloader) album(ctx context.Context, item *queue.Item, md *spotify.GIDMetadata) (*spotify.Album, error) {
	if item.Album != nil {
		return item.Album, nil
	}
	if md.Album.GID == "" {
		return nil, nil
	}
	albumID, err := spotify.GIDToTrackID(md.Album.GID)
	if err != nil {
		return nil, err
	}
	log.Printf("DEBUG: Getting album metadata")
	return d.c.Client.GetAlbum(ctx, albumID)
}

// credits never fails an item; missing credits leave composer and producer empty.
func (d *Downloader) credits(ctx context.Context, trackID string) *spotify.Credits {
	log.Printf("DEBUG: Getting track credits")
	credits, err := d.c.Client.GetTrackCredits(ctx, trackID)
	if err != nil {
		log.Printf("WARN: track_credits_failed track_id=%s error=%v", trackID, err)
		return nil
	}
	return credits
}

func (d *Downloader) lyrics(ctx context.Context, trackID string, md *spotify.GIDMetadata) (synced, unsynced string, err error) {
	if !md.HasLyrics || !d.c.Client.IsPremium() {
		return "", "", nil
	}
	log.Printf("DEBUG: Getting lyrics")
	lyrics, err := d.c.Client.GetLyrics(ctx, trackID)
	if err != nil {
		return "", "", err
	}
	synced, unsynced = metadata.RenderLyrics(lyrics)
	return synced, unsynced, nil
}

func (d *Downloader) downloadTrack(ctx context.Context, item *queue.Item, md *spotify.GIDMetadata) (*Result, error) {
	id := item.SpotifyID

	synced, unsynced, err := d.lyrics(ctx, id, md)
	if err != nil {
		return nil, stageErr("lyrics", id, err)
	}
	album, err := d.album(ctx, item, md)
	if err != nil {
		return nil, stageErr("album", id, err)
	}

	tags, err := metadata.BuildTrackTags(metadata.TrackInput{
		Metadata: md,
		Album:    album,
		Credits:  d.credits(ctx, id),
		Lyrics:   unsynced,
	}, d.opts.Tags)
	if err != nil {
		return nil, stageErr("tags", id, err)
	}
	if p := item.Playlist; p != nil {
		tags.SetPlaylist(p.Title, p.Artist, p.Position)
	}

	finalPath, err := d.c.Templater.FinalPath(tags, metadata.PathKindTrack)
	if err != nil {
		return nil, stageErr("template", id, err)
	}
	res := &Result{Kind: metadata.PathKindTrack, FilePath: finalPath, Tags: tags}
	cover := newCoverSource(d.c.Client, d.coverURL(md.Album.CoverGroup, CoverSizeSong))

	switch {
	case d.opts.LrcOnly:
		res.Outcome = OutcomeLrcOnly
	case !d.opts.Overwrite && d.fileExistsCached(finalPath):
		res.Outcome = OutcomeExists
	default:
		if err := d.fetchTrack(ctx, id, md, tags, cover, finalPath); err != nil {
			return nil, err
		}
		res.Outcome = OutcomeDownloaded
	}

	if !d.opts.NoLrc && synced != "" {
		lrcPath := replaceExt(finalPath, ".lrc")
		written, err := d.saveArtifact(lrcPath, func() ([]byte, error) { return []byte(synced), nil })
		if err != nil {
			return nil, stageErr("lrc", id, err)
		}
		if written {
			res.LrcPath = lrcPath
		}
	}

	if !d.opts.LrcOnly && d.opts.SaveCover {
		coverPath := filepath.Join(filepath.Dir(finalPath), "Cover.jpg")
		written, err := d.saveArtifact(coverPath, func() ([]byte, error) { return cover.bytes(ctx) })
		if err != nil {
			return nil, stageErr("cover", id, err)
		}
		if written {
			res.CoverPath = coverPath
		}
	}
	return res, nil
}

// fetchTrack is the heavy path of a song: PSSH, key, stream, remux, tag, move.
func (d *Downloader) fetchTrack(ctx context.Context, id string, md *spotify.GIDMetadata, tags *metadata.Tags, cover *coverSource, finalPath string) error {
	log.Printf("DEBUG: Getting file info")
	fileID, err := selectFileID(md, d.quality())
	if err != nil {
		return err
	}

	log.Printf("DEBUG: Getting PSSH")
	pssh, err := d.c.Client.GetPSSH(ctx, fileID)
	if err != nil {
		return stageErr("pssh", id, err)
	}
	log.Printf("DEBUG: Getting decryption key")
	key, err := d.c.Keys.GetDecryptionKey(ctx, "audio", pssh)
	if err != nil {
		return stageErr("license", id, err)
	}
	log.Printf("DEBUG: Getting stream URL")
	streamURL, err := d.c.Client.GetStreamURL(ctx, fileID)
	if err != nil {
		return stageErr("stream_url", id, err)
	}

	encrypted := d.tempFile(id + "_encrypted.m4a")
	log.Printf("DEBUG: Downloading to %q", encrypted)
	if err := d.c.Stream.Download(ctx, streamURL, encrypted); err != nil {
		return stageErr("download", id, err)
	}

	remuxed := d.tempFile(id + "_remuxed.m4a")
	log.Printf("DEBUG: Decrypting/Remuxing to %q", remuxed)
	if err := d.c.Remuxer.Remux(ctx, media.Job{
		EncryptedPath: encrypted,
		DecryptedPath: d.tempFile(id + "_decrypted.m4a"),
		OutputPath:    remuxed,
		Key:           key,
	}); err != nil {
		return stageErr("remux", id, err)
	}

	return d.finish(ctx, id, remuxed, finalPath, tags, cover)
}

// finish tags the remuxed temp file and moves it into place.
func (d *Downloader) finish(ctx context.Context, id, remuxed, finalPath string, tags *metadata.Tags, cover *coverSource) error {
	coverData, err := cover.bytes(ctx)
	if err != nil {
		return stageErr("cover", id, err)
	}
	log.Printf("DEBUG: Applying tags")
	if err := d.c.Tagger.Embed(ctx, remuxed, tags, coverData); err != nil {
		return stageErr("tag", id, err)
	}
	log.Printf("DEBUG: Moving to %q", finalPath)
	if err := moveFile(remuxed, finalPath); err != nil {
		d.invalidateFileCache(finalPath)
		return stageErr("move", id, err)
	}
	d.setFileExistsCached(finalPath, true)
	return nil
}

func (d *Downloader) downloadEpisode(ctx context.Context, item *queue.Item, gid string) (*Result, error) {
	id := item.SpotifyID

	log.Printf("DEBUG: Getting GID metadata")
	md, err := d.c.Client.GetGIDMetadata(ctx, "episode", gid)
	if err != nil {
		return nil, stageErr("metadata", id, err)
	}

	showID := ""
	if item.Track != nil && item.Track.Show != nil {
		showID = item.Track.Show.ID
	}
	if showID == "" && md.Show.GID != "" {
		if showID, err = spotify.GIDToTrackID(md.Show.GID); err != nil {
			return nil, stageErr("show", id, err)
		}
	}
	var show *spotify.Show
	if showID != "" {
		log.Printf("DEBUG: Getting show metadata")
		if show, err = d.c.Client.GetShow(ctx, showID); err != nil {
			return nil, stageErr("show", id, err)
		}
	}

	tags, err := metadata.BuildEpisodeTags(md, show, d.opts.Tags)
	if err != nil {
		return nil, stageErr("tags", id, err)
	}
	if p := item.Playlist; p != nil {
		tags.SetPlaylist(p.Title, p.Artist, p.Position)
	}
	finalPath, err := d.c.Templater.FinalPath(tags, metadata.PathKindEpisode)
	if err != nil {
		return nil, stageErr("template", id, err)
	}
	res := &Result{Kind: metadata.PathKindEpisode, FilePath: finalPath, Tags: tags}
	cover := newCoverSource(d.c.Client, d.coverURL(md.CoverImage, CoverSizeSong))

	switch {
	case d.opts.LrcOnly:
		res.Outcome = OutcomeLrcOnly
		return res, nil
	case !d.opts.Overwrite && d.fileExistsCached(finalPath):
		res.Outcome = OutcomeExists
	default:
		episode := *md
		episode.File, episode.Alternative = md.Audio, nil
		if err := d.fetchTrack(ctx, id, &episode, tags, cover, finalPath); err != nil {
			return nil, err
		}
		res.Outcome = OutcomeDownloaded
	}

	if d.opts.SaveCover {
		coverPath := filepath.Join(filepath.Dir(finalPath), "Cover.jpg")
		written, err := d.saveArtifact(coverPath, func() ([]byte, error) { return cover.bytes(ctx) })
		if err != nil {
			return nil, stageErr("cover", id, err)
		}
		if written {
			res.CoverPath = coverPath
		}
	}
	return res, nil
}

func (d *Downloader) downloadMusicVideo(ctx context.Context, item *queue.Item, md *spotify.GIDMetadata) (*Result, error) {
	id := item.SpotifyID

	if !d.c.Client.IsPremium() {
		return nil, ErrPremiumRequired
	}
	if d.opts.LrcOnly {
		return nil, ErrVideoLrcOnly
	}

	album, err := d.album(ctx, item, md)
	if err != nil {
		return nil, stageErr("album", id, err)
	}
	tags, err := metadata.BuildVideoTags(metadata.TrackInput{
		Metadata: md,
		Album:    album,
		Credits:  d.credits(ctx, id),
	}, d.opts.Tags)
	if err != nil {
		return nil, stageErr("tags", id, err)
	}
	if p := item.Playlist; p != nil {
		tags.SetPlaylist(p.Title, p.Artist, p.Position)
	}
	finalPath, err := d.c.Templater.FinalPath(tags, metadata.PathKindMusicVideo)
	if err != nil {
		return nil, stageErr("template", id, err)
	}
	res := &Result{Kind: metadata.PathKindMusicVideo, FilePath: finalPath, Tags: tags}
	cover := newCoverSource(d.c.Client, d.coverURL(md.Album.CoverGroup, CoverSizeVideo))

	if !d.opts.Overwrite && d.fileExistsCached(finalPath) {
		res.Outcome = OutcomeExists
	} else {
		if err := d.fetchMusicVideo(ctx, id, md, tags, cover, finalPath); err != nil {
			return nil, err
		}
		res.Outcome = OutcomeDownloaded
	}

	if d.opts.SaveCover {
		coverPath := replaceExt(finalPath, ".jpg")
		written, err := d.saveArtifact(coverPath, func() ([]byte, error) { return cover.bytes(ctx) })
		if err != nil {
			return nil, stageErr("cover", id, err)
		}
		if written {
			res.CoverPath = coverPath
		}
	}
	return res, nil
}

// videoStreams is the best mp4 rendition pair of a manifest plus its
// widevine init data.
type videoStreams struct {
	Video media.SegmentSource
	Audio media.SegmentSource
	PSSH  string
}

func selectVideoStreams(m *spotify.VideoManifest) (*videoStreams, error) {
	if len(m.Contents) == 0 || len(m.BaseURLs) == 0 {
		return nil, fmt.Errorf("video manifest has no contents")
	}
	content := m.Contents[0]

	videos := lo.Filter(content.Profiles, func(p spotify.ManifestProfile, _ int) bool {
		return p.VideoBitrate > 0 && p.FileType == "mp4"
	})
	audios := lo.Filter(content.Profiles, func(p spotify.ManifestProfile, _ int) bool {
		return p.AudioBitrate > 0 && p.FileType == "mp4"
	})
	if len(videos) == 0 || len(audios) == 0 {
		return nil, fmt.Errorf("video manifest has no mp4 video and audio profiles")
	}
	video := lo.MaxBy(videos, func(a, b spotify.ManifestProfile) bool { return a.VideoBitrate > b.VideoBitrate })
	audio := lo.MaxBy(audios, func(a, b spotify.ManifestProfile) bool { return a.AudioBitrate > b.AudioBitrate })

	wv, ok := lo.Find(content.EncryptionInfos, func(e spotify.EncryptionInfo) bool { return e.KeySystem == "widevine" })
	if !ok {
		return nil, fmt.Errorf("video manifest has no widevine encryption info")
	}

	source := func(p spotify.ManifestProfile) media.SegmentSource {
		return media.SegmentSource{
			BaseURL:                m.BaseURLs[0],
			InitializationTemplate: m.InitializationTemplate,
			SegmentTemplate:        m.SegmentTemplate,
			EndTimeMillis:          m.EndTimeMillis,
			SegmentLength:          content.SegmentLength,
			ProfileID:              p.ID,
			FileType:               p.FileType,
		}
	}
	return &videoStreams{Video: source(video), Audio: source(audio), PSSH: wv.EncryptionData}, nil
}

func (d *Downloader) fetchMusicVideo(ctx context.Context, id string, md *spotify.GIDMetadata, tags *metadata.Tags, cover *coverSource, finalPath string) error {
	log.Printf("DEBUG: Getting video manifest")
	manifest, err := d.c.Client.GetVideoManifest(ctx, md.OriginalVideo[0].GID)
	if err != nil {
		return stageErr("manifest", id, err)
	}
	streams, err := selectVideoStreams(manifest)
	if err != nil {
		return stageErr("manifest", id, err)
	}

	log.Printf("DEBUG: Getting decryption key")
	key, err := d.c.Keys.GetDecryptionKey(ctx, "video", streams.PSSH)
	if err != nil {
		return stageErr("license", id, err)
	}

	job := media.VideoJob{
		EncryptedVideoPath: d.tempFile(id + "_encrypted_video.mp4"),
		EncryptedAudioPath: d.tempFile(id + "_encrypted_audio.mp4"),
		DecryptedVideoPath: d.tempFile(id + "_decrypted_video.mp4"),
		DecryptedAudioPath: d.tempFile(id + "_decrypted_audio.mp4"),
		OutputPath:         d.tempFile(id + "_remuxed.mp4"),
		Key:                key,
	}
	tracks := []struct {
		name string
		src  media.SegmentSource
		dst  string
	}{
		{"video", streams.Video, job.EncryptedVideoPath},
		{"audio", streams.Audio, job.EncryptedAudioPath},
	}
	for _, t := range tracks {
		playlist := d.tempFile(id + "_" + t.name + ".m3u8")
		if err := media.WriteSegmentPlaylist(t.src, playlist); err != nil {
			return stageErr("playlist", id, err)
		}
		log.Printf("DEBUG: Downloading %s to %q", t.name, t.dst)
		if err := d.c.Segments.DownloadSegments(ctx, playlist, t.dst); err != nil {
			return stageErr("download", id, err)
		}
	}

	log.Printf("DEBUG: Decrypting/Remuxing to %q", job.OutputPath)
	if err := d.c.Remuxer.RemuxVideo(ctx, job); err != nil {
		return stageErr("remux", id, err)
	}
	return d.finish(ctx, id, job.OutputPath, finalPath, tags, cover)
}

// saveArtifact writes a side file unless it exists and overwrite is off.
func (d *Downloader) saveArtifact(path string, data func() ([]byte, error)) (bool, error) {
	if !d.opts.Overwrite && d.fileExistsCached(path) {
		log.Printf("DEBUG: %q already exists, skipping", path)
		return false, nil
	}
	b, err := data()
	if err != nil {
		return false, err
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	log.Printf("DEBUG: Saving %q", path)
	if err := os.WriteFile(path, b, 0644); err != nil {
		return false, err
	}
	d.setFileExistsCached(path, true)
	return true, nil
}

// coverSource fetches a cover at most once per item.
type coverSource struct {
	client Client
	url    string
	once   sync.Once
	data   []byte
	err    error
}

func newCoverSource(client Client, url string) *coverSource {
	return &coverSource{client: client, url: url}
}

func (c *coverSource) bytes(ctx context.Context) ([]byte, error) {
	if c.url == "" {
		return nil, nil
	}
	c.once.Do(func() {
		c.data, c.err = c.client.GetImage(ctx, c.url)
	})
	return c.data, c.err
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// moveFile renames src to dst, copying across filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func (d *Downloader) cleanupTemp() {
	if d.opts.TempPath == "" {
		return
	}
	if err := os.RemoveAll(d.opts.TempPath); err != nil {
		log.Printf("WARN: temp_cleanup_failed path=%s error=%v", d.opts.TempPath, err)
	}
}

// fileExistsCached checks if a file exists, using cache to avoid repeated filesystem calls.
func (d *Downloader) fileExistsCached(filePath string) bool {
	d.cacheMu.RLock()
	exists, ok := d.fileExistenceCache[filePath]
	d.cacheMu.RUnlock()
	if ok {
		return exists
	}

	_, err := os.Stat(filePath)
	exists = err == nil
	d.setFileExistsCached(filePath, exists)
	return exists
}

// setFileExistsCached records an existence result, evicting a tenth of the
// entries when the cache is full.
func (d *Downloader) setFileExistsCached(filePath string, exists bool) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()

	if len(d.fileExistenceCache) >= d.cacheMaxSize {
		evict := d.cacheMaxSize / 10
		for k := range d.fileExistenceCache {
			if evict <= 0 {
				break
			}
			delete(d.fileExistenceCache, k)
			evict--
		}
	}
	d.fileExistenceCache[filePath] = exists
}

// invalidateFileCache drops a cached result after the file changed on disk.
func (d *Downloader) invalidateFileCache(filePath string) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	delete(d.fileExistenceCache, filePath)
}

// GetFileExistenceCacheStats returns file existence cache statistics.
func (d *Downloader) GetFileExistenceCacheStats() map[string]int {
	d.cacheMu.RLock()
	defer d.cacheMu.RUnlock()
	return map[string]int{
		"size":     len(d.fileExistenceCache),
		"max_size": d.cacheMaxSize,
	}
}
