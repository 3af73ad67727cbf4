package metadata

import (
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/samber/lo"

	"github.com/sv4u/spotifydl/download/spotify"
)

// iTunes media kinds.
const (
	MediaTypeMusic      = 1
	MediaTypeMusicVideo = 6
	MediaTypePodcast    = 21
)

// Tags is the tag map of one item. Values feeds the path templates.
type Tags struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Composer    string
	Producer    string
	Copyright   string
	Disc        int
	DiscTotal   int
	Track       int
	TrackTotal  int
	ISRC        string
	Label       string
	Lyrics      string
	MediaType   int
	Rating      int
	ReleaseDate string
	ReleaseYear string
	Compilation bool
	Comment     string

	// Set for items that came from a playlist URL.
	PlaylistTitle  string
	PlaylistArtist string
	PlaylistTrack  int
}

// Values returns the template substitution map.
func (t *Tags) Values() map[string]interface{} {
	values := map[string]interface{}{
		"title":        t.Title,
		"artist":       t.Artist,
		"album":        t.Album,
		"album_artist": t.AlbumArtist,
		"composer":     t.Composer,
		"producer":     t.Producer,
		"copyright":    t.Copyright,
		"disc":         t.Disc,
		"disc_total":   t.DiscTotal,
		"track":        t.Track,
		"track_total":  t.TrackTotal,
		"isrc":         t.ISRC,
		"label":        t.Label,
		"lyrics":       t.Lyrics,
		"media_type":   t.MediaType,
		"rating":       t.Rating,
		"release_date": t.ReleaseDate,
		"release_year": t.ReleaseYear,
		"compilation":  t.Compilation,
		"comment":      t.Comment,
	}
	if t.PlaylistTitle != "" {
		values["playlist_title"] = t.PlaylistTitle
		values["playlist_artist"] = t.PlaylistArtist
		values["playlist_track"] = t.PlaylistTrack
	}
	return values
}

// SetPlaylist attaches playlist position tags.
func (t *Tags) SetPlaylist(title, artist string, position int) {
	t.PlaylistTitle = title
	t.PlaylistArtist = artist
	t.PlaylistTrack = position
}

// TagOptions controls tag formatting.
type TagOptions struct {
	DateTagTemplate  string
	ReplaceJoinChars bool
}

// TrackInput bundles everything a track or music video tag map is built from.
type TrackInput struct {
	Metadata *spotify.GIDMetadata
	Album    *spotify.Album   // public album, nil when unknown
	Credits  *spotify.Credits // nil when unavailable
	Lyrics   string           // unsynced lyrics
}

// JoinArtists joins names as "A, B & C", or "A / B / C" with replaceJoinChars.
func JoinArtists(names []string, replaceJoinChars bool) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	if replaceJoinChars {
		return strings.Join(names, " / ")
	}
	return strings.Join(names[:len(names)-1], ", ") + " & " + names[len(names)-1]
}

func gidArtistNames(artists []spotify.GIDArtist) []string {
	return lo.Map(artists, func(a spotify.GIDArtist, _ int) string { return a.Name })
}

// ReleaseTime turns a partial date into a time; missing month or day become 1.
func ReleaseTime(d spotify.GIDDate) (time.Time, bool) {
	if d.Year == 0 {
		return time.Time{}, false
	}
	month, day := d.Month, d.Day
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	return time.Date(d.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func formatReleaseDate(d spotify.GIDDate, pattern string) (string, string, error) {
	ts, ok := ReleaseTime(d)
	if !ok {
		return "", "", nil
	}
	if pattern == "" {
		pattern = "%Y-%m-%dT%H:%M:%SZ"
	}
	date, err := strftime.Format(pattern, ts)
	if err != nil {
		return "", "", &MetadataError{Message: fmt.Sprintf("invalid date_tag_template %q", pattern), Original: err}
	}
	return date, fmt.Sprintf("%04d", d.Year), nil
}

// TrackURL returns the open.spotify.com URL of a canonical uri such as
// "spotify:track:<id>".
func TrackURL(canonicalURI, kind, fallbackID string) string {
	id := fallbackID
	if canonicalURI != "" {
		parts := strings.Split(canonicalURI, ":")
		id = parts[len(parts)-1]
	}
	return fmt.Sprintf("https://open.spotify.com/%s/%s", kind, id)
}

func copyrightText(copyrights []spotify.Copyright, kind string) string {
	c, ok := lo.Find(copyrights, func(c spotify.Copyright) bool { return c.Type == kind })
	if !ok {
		return ""
	}
	return c.Text
}

// BuildTrackTags builds the tag map of a music track.
func BuildTrackTags(in TrackInput, opts TagOptions) (*Tags, error) {
	md := in.Metadata
	if md == nil {
		return nil, &MetadataError{Message: "missing track metadata"}
	}

	releaseDate, releaseYear, err := formatReleaseDate(md.Album.Date, opts.DateTagTemplate)
	if err != nil {
		return nil, err
	}

	fallbackID, _ := spotify.GIDToTrackID(md.GID)
	tags := &Tags{
		Title:       md.Name,
		Artist:      JoinArtists(gidArtistNames(md.Artist), opts.ReplaceJoinChars),
		Album:       md.Album.Name,
		AlbumArtist: JoinArtists(gidArtistNames(md.Album.Artist), opts.ReplaceJoinChars),
		Disc:        md.DiscNumber,
		DiscTotal:   md.DiscNumber,
		Track:       md.Number,
		TrackTotal:  md.Number,
		ISRC:        md.ISRC(),
		Label:       md.Album.Label,
		Lyrics:      in.Lyrics,
		MediaType:   MediaTypeMusic,
		ReleaseDate: releaseDate,
		ReleaseYear: releaseYear,
		Comment:     TrackURL(md.CanonicalURI, "track", fallbackID),
	}
	if md.Explicit {
		tags.Rating = 1
	}

	if album := in.Album; album != nil {
		tags.Compilation = album.AlbumType == "compilation"
		tags.Copyright = copyrightText(album.Copyrights, "P")
		if tags.Label == "" {
			tags.Label = album.Label
		}
		if n := len(album.Tracks.Items); n > 0 {
			tags.DiscTotal = album.Tracks.Items[n-1].DiscNumber
			sameDisc := lo.Filter(album.Tracks.Items, func(t spotify.Track, _ int) bool {
				return t.DiscNumber == md.DiscNumber
			})
			if len(sameDisc) > 0 {
				tags.TrackTotal = lo.MaxBy(sameDisc, func(a, b spotify.Track) bool {
					return a.TrackNumber > b.TrackNumber
				}).TrackNumber
			}
		}
	}

	if in.Credits != nil {
		tags.Composer = JoinArtists(in.Credits.Composers, opts.ReplaceJoinChars)
		tags.Producer = JoinArtists(in.Credits.Producers, opts.ReplaceJoinChars)
	}
	return tags, nil
}

// BuildVideoTags builds the tag map of a music video.
func BuildVideoTags(in TrackInput, opts TagOptions) (*Tags, error) {
	in.Lyrics = ""
	tags, err := BuildTrackTags(in, opts)
	if err != nil {
		return nil, err
	}
	tags.MediaType = MediaTypeMusicVideo
	return tags, nil
}

// BuildEpisodeTags builds the tag map of a podcast episode.
func BuildEpisodeTags(md *spotify.GIDMetadata, show *spotify.Show, opts TagOptions) (*Tags, error) {
	if md == nil {
		return nil, &MetadataError{Message: "missing episode metadata"}
	}

	releaseDate, releaseYear, err := formatReleaseDate(md.PublishTime, opts.DateTagTemplate)
	if err != nil {
		return nil, err
	}

	publisher, showName := md.Show.Publisher, md.Show.Name
	var copyright string
	if show != nil {
		if show.Publisher != "" {
			publisher = show.Publisher
		}
		if show.Name != "" {
			showName = show.Name
		}
		copyright = copyrightText(show.Copyrights, "P")
		if copyright == "" && len(show.Copyrights) > 0 {
			copyright = show.Copyrights[0].Text
		}
	}

	fallbackID, _ := spotify.GIDToTrackID(md.GID)
	tags := &Tags{
		Title:       md.Name,
		Artist:      publisher,
		Album:       showName,
		AlbumArtist: publisher,
		Copyright:   copyright,
		Disc:        1,
		DiscTotal:   1,
		Lyrics:      md.Description,
		MediaType:   MediaTypePodcast,
		ReleaseDate: releaseDate,
		ReleaseYear: releaseYear,
		Comment:     TrackURL(md.CanonicalURI, "episode", fallbackID),
	}
	if md.Explicit {
		tags.Rating = 1
	}
	return tags, nil
}
