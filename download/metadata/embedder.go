package metadata

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/zhaarey/go-mp4tag"
)

// TagCover is the exclude_tags name that drops embedded artwork.
const TagCover = "cover"

// Embedder writes MP4 tags.
type Embedder struct {
	exclude map[string]bool
}

// NewEmbedder creates an embedder that skips the named tags (case insensitive).
func NewEmbedder(excludeTags []string) *Embedder {
	exclude := make(map[string]bool, len(excludeTags))
	for _, name := range excludeTags {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			exclude[name] = true
		}
	}
	return &Embedder{exclude: exclude}
}

func (e *Embedder) keep(name string) bool {
	return !e.exclude[name]
}

// MP4Tags maps a tag map onto the atoms go-mp4tag writes. ISRC, LABEL and
// PRODUCER go to freeform iTunes atoms.
func (e *Embedder) MP4Tags(tags *Tags, cover []byte) *mp4tag.MP4Tags {
	t := &mp4tag.MP4Tags{
		Custom:         map[string]string{},
		ItunesAdvisory: mp4tag.ItunesAdvisoryNone,
	}

	str := func(name, value string, set func(string)) {
		if value != "" && e.keep(name) {
			set(value)
		}
	}
	str("title", tags.Title, func(v string) { t.Title = v })
	str("artist", tags.Artist, func(v string) { t.Artist = v })
	str("album", tags.Album, func(v string) { t.Album = v })
	str("album_artist", tags.AlbumArtist, func(v string) { t.AlbumArtist = v })
	str("composer", tags.Composer, func(v string) { t.Composer = v })
	str("copyright", tags.Copyright, func(v string) { t.Copyright = v })
	str("lyrics", tags.Lyrics, func(v string) { t.Lyrics = v })
	str("release_date", tags.ReleaseDate, func(v string) { t.Date = v })
	str("label", tags.Label, func(v string) {
		t.Publisher = v
		t.Custom["LABEL"] = v
	})
	str("isrc", tags.ISRC, func(v string) { t.Custom["ISRC"] = v })
	str("producer", tags.Producer, func(v string) { t.Custom["PRODUCER"] = v })
	str("comment", tags.Comment, func(v string) { t.Comment = v })

	if e.keep("track") {
		t.TrackNumber = int16(tags.Track)
	}
	if e.keep("track_total") {
		t.TrackTotal = int16(tags.TrackTotal)
	}
	if e.keep("disc") {
		t.DiscNumber = int16(tags.Disc)
	}
	if e.keep("disc_total") {
		t.DiscTotal = int16(tags.DiscTotal)
	}
	if tags.Rating == 1 && e.keep("rating") {
		t.ItunesAdvisory = mp4tag.ItunesAdvisoryExplicit
	}
	if len(cover) > 0 && e.keep(TagCover) {
		t.Pictures = []*mp4tag.MP4Picture{{Data: cover}}
	}
	return t
}

// itemAtoms returns the integer items written after go-mp4tag: cpil always,
// stik when the media type is known.
func (e *Embedder) itemAtoms(tags *Tags) []itemAtom {
	var atoms []itemAtom
	if e.keep("compilation") {
		var v byte
		if tags.Compilation {
			v = 1
		}
		atoms = append(atoms, itemAtom{Name: "cpil", Value: v})
	}
	if tags.MediaType > 0 && e.keep("media_type") {
		atoms = append(atoms, itemAtom{Name: "stik", Value: byte(tags.MediaType)})
	}
	return atoms
}

// Embed writes tags and optional cover art into an MP4 file in place.
func (e *Embedder) Embed(ctx context.Context, filePath string, tags *Tags, cover []byte) error {
	log.Printf("INFO: metadata_embed_start file=%s track=%s artist=%s", filePath, tags.Title, tags.Artist)

	if err := ctx.Err(); err != nil {
		return &MetadataError{
			Message:  fmt.Sprintf("Context cancelled: %v", err),
			Original: err,
		}
	}

	if _, err := os.Stat(filePath); err != nil {
		log.Printf("ERROR: metadata_embed_failed file=%s error=file_not_found: %v", filePath, err)
		return &MetadataError{
			Message:  fmt.Sprintf("File not found: %s", filePath),
			Original: err,
		}
	}

	mp4, err := mp4tag.Open(filePath)
	if err != nil {
		return &MetadataError{Message: fmt.Sprintf("Failed to open MP4: %s", filePath), Original: err}
	}
	err = mp4.Write(e.MP4Tags(tags, cover), []string{})
	if closeErr := mp4.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		log.Printf("ERROR: metadata_embed_failed file=%s track=%s error=%v", filePath, tags.Title, err)
		return &MetadataError{Message: fmt.Sprintf("Failed to write MP4 tags: %s", filePath), Original: err}
	}
	if err := writeItemAtoms(filePath, e.itemAtoms(tags)); err != nil {
		log.Printf("ERROR: metadata_embed_failed file=%s track=%s error=%v", filePath, tags.Title, err)
		return &MetadataError{Message: fmt.Sprintf("Failed to write MP4 item atoms: %s", filePath), Original: err}
	}

	log.Printf("INFO: metadata_embed_complete file=%s track=%s artist=%s", filePath, tags.Title, tags.Artist)
	return nil
}
