package spotify

// Public web API models (api.spotify.com/v1).

// Artist is an artist reference.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Copyright is an album or show copyright line. Type is "C" or "P".
type Copyright struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// AlbumRef is the album reference embedded in a track.
type AlbumRef struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AlbumType   string   `json:"album_type"`
	Artists     []Artist `json:"artists"`
	ReleaseDate string   `json:"release_date"`
}

// ShowRef is the show reference embedded in an episode.
type ShowRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Publisher string `json:"publisher"`
}

// Track is a public track, or an episode when Type is "episode".
type Track struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Artists     []Artist          `json:"artists"`
	Album       *AlbumRef         `json:"album,omitempty"`
	Show        *ShowRef          `json:"show,omitempty"`
	DiscNumber  int               `json:"disc_number"`
	TrackNumber int               `json:"track_number"`
	DurationMs  int               `json:"duration_ms"`
	Explicit    bool              `json:"explicit"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	ReleaseDate string            `json:"release_date,omitempty"`
}

// Album is a public album with its fully drained track list.
type Album struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	AlbumType            string      `json:"album_type"`
	Artists              []Artist    `json:"artists"`
	Copyrights           []Copyright `json:"copyrights"`
	Label                string      `json:"label"`
	ReleaseDate          string      `json:"release_date"`
	ReleaseDatePrecision string      `json:"release_date_precision"`
	Tracks               Page[Track] `json:"tracks"`
}

// PlaylistItem wraps a playlist entry. Track is nil for entries that are no
// longer available.
type PlaylistItem struct {
	Track *Track `json:"track"`
}

// Owner is a playlist owner.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Playlist is a public playlist with its fully drained item list.
type Playlist struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Owner  Owner              `json:"owner"`
	Tracks Page[PlaylistItem] `json:"tracks"`
}

// Show is a public podcast show.
type Show struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Publisher   string      `json:"publisher"`
	Description string      `json:"description"`
	Copyrights  []Copyright `json:"copyrights"`
	Explicit    bool        `json:"explicit"`
}

// Internal spclient models.

// AudioFile is one encoded variant of a track or episode.
type AudioFile struct {
	FileID string `json:"file_id"`
	Format string `json:"format"`
}

// Image is one size of a cover.
type Image struct {
	FileID string `json:"file_id"`
	Size   string `json:"size"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ImageGroup is the set of sizes available for one cover.
type ImageGroup struct {
	Image []Image `json:"image"`
}

// GIDArtist is an artist reference in GID metadata.
type GIDArtist struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// GIDDate is a release date whose month and day may be zero.
type GIDDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// GIDAlbum is the album reference in GID metadata.
type GIDAlbum struct {
	GID        string      `json:"gid"`
	Name       string      `json:"name"`
	Artist     []GIDArtist `json:"artist"`
	Label      string      `json:"label"`
	Date       GIDDate     `json:"date"`
	CoverGroup ImageGroup  `json:"cover_group"`
}

// GIDShow is the show reference in episode GID metadata.
type GIDShow struct {
	GID       string `json:"gid"`
	Name      string `json:"name"`
	Publisher string `json:"publisher"`
}

// ExternalID is an external identifier such as an ISRC.
type ExternalID struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Alternative is a substitute recording offered when the original has no files.
type Alternative struct {
	GID  string      `json:"gid"`
	File []AudioFile `json:"file"`
}

// VideoRef points at a music video's manifest.
type VideoRef struct {
	GID string `json:"gid"`
}

// GIDMetadata is spclient track or episode metadata.
type GIDMetadata struct {
	GID           string        `json:"gid"`
	Name          string        `json:"name"`
	Album         GIDAlbum      `json:"album"`
	Artist        []GIDArtist   `json:"artist"`
	Number        int           `json:"number"`
	DiscNumber    int           `json:"disc_number"`
	Duration      int           `json:"duration"`
	Explicit      bool          `json:"explicit"`
	ExternalID    []ExternalID  `json:"external_id"`
	File          []AudioFile   `json:"file"`
	Alternative   []Alternative `json:"alternative"`
	OriginalVideo []VideoRef    `json:"original_video"`
	HasLyrics     bool          `json:"has_lyrics"`
	CanonicalURI  string        `json:"canonical_uri"`

	// Episode fields
	Audio       []AudioFile `json:"audio"`
	Show        GIDShow     `json:"show"`
	CoverImage  ImageGroup  `json:"cover_image"`
	PublishTime GIDDate     `json:"publish_time"`
	Description string      `json:"description"`
}

// ISRC returns the ISRC external id, if any.
func (m *GIDMetadata) ISRC() string {
	for _, e := range m.ExternalID {
		if e.Type == "isrc" {
			return e.ID
		}
	}
	return ""
}

// LyricsLine is one line of provider lyrics. StartTimeMs is a decimal string.
type LyricsLine struct {
	StartTimeMs string `json:"startTimeMs"`
	Words       string `json:"words"`
	EndTimeMs   string `json:"endTimeMs"`
}

// Lyrics is the color-lyrics response.
type Lyrics struct {
	Lyrics struct {
		SyncType string       `json:"syncType"`
		Lines    []LyricsLine `json:"lines"`
	} `json:"lyrics"`
}

// ManifestProfile is one encoded rendition in a video manifest.
type ManifestProfile struct {
	ID           int    `json:"id"`
	FileType     string `json:"file_type"`
	VideoBitrate int    `json:"video_bitrate"`
	AudioBitrate int    `json:"audio_bitrate"`
	VideoWidth   int    `json:"video_width"`
	VideoHeight  int    `json:"video_height"`
}

// EncryptionInfo carries a key system's init data.
type EncryptionInfo struct {
	KeySystem      string `json:"key_system"`
	EncryptionData string `json:"encryption_data"`
}

// ManifestContent is one content block of a video manifest.
type ManifestContent struct {
	Profiles        []ManifestProfile `json:"profiles"`
	SegmentLength   int               `json:"segment_length"`
	EncryptionInfos []EncryptionInfo  `json:"encryption_infos"`
}

// VideoManifest is the music video source manifest.
type VideoManifest struct {
	BaseURLs               []string          `json:"base_urls"`
	InitializationTemplate string            `json:"initialization_template"`
	SegmentTemplate        string            `json:"segment_template"`
	EndTimeMillis          int64             `json:"end_time_millis"`
	Contents               []ManifestContent `json:"contents"`
}

// Credits lists the credited composers and producers of a track.
type Credits struct {
	Composers []string
	Producers []string
}
