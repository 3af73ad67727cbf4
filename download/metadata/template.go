package metadata

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// TemplateError reports a path template that cannot be rendered.
type TemplateError struct {
	Template string
	Message  string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("Template error: %s in %q", e.Message, e.Template)
}

// PathKind selects the template family for an item.
type PathKind string

const (
	PathKindTrack      PathKind = "track"
	PathKindMusicVideo PathKind = "music_video"
	PathKindEpisode    PathKind = "episode"
)

// TemplateConfig holds the output root, every template and the truncation limit.
type TemplateConfig struct {
	OutputPath        string
	FolderAlbum       string
	FolderCompilation string
	FileSingleDisc    string
	FileMultiDisc     string
	FolderNoAlbum     string
	FileNoAlbum       string
	FolderMusicVideo  string
	FileMusicVideo    string
	FilePlaylist      string // empty disables playlist files
	Truncate          int
}

// Templater renders final paths from tags.
type Templater struct {
	cfg TemplateConfig
}

// NewTemplater creates a templater. A truncate below 4 disables truncation.
func NewTemplater(cfg TemplateConfig) *Templater {
	if cfg.Truncate < 4 {
		cfg.Truncate = 0
	}
	return &Templater{cfg: cfg}
}

var illegalChars = regexp.MustCompile(`[\\/:*?"<>|;]`)

// Sanitize replaces illegal path characters and applies truncation. Folder
// segments keep truncate characters and never end in "."; file stems keep
// truncate-4 so a four character extension fits.
func Sanitize(s string, isFolder bool, truncate int) string {
	return sanitize(s, isFolder, truncate, 4)
}

// sanitize reserves extLen characters of a file segment for its extension.
func sanitize(s string, isFolder bool, truncate, extLen int) string {
	s = illegalChars.ReplaceAllString(s, "_")
	if isFolder {
		s = strings.TrimSpace(truncateRunes(s, truncate))
		if strings.HasSuffix(s, ".") {
			s = strings.TrimSuffix(s, ".") + "_"
		}
		return s
	}
	if truncate >= 4 {
		s = truncateRunes(s, max(truncate-extLen, 1))
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// FinalPath renders the output path of an item.
func (t *Templater) FinalPath(tags *Tags, kind PathKind) (string, error) {
	var folder, file, ext string
	switch kind {
	case PathKindMusicVideo:
		folder, file, ext = t.cfg.FolderMusicVideo, t.cfg.FileMusicVideo, ".mp4"
	case PathKindEpisode:
		folder, file, ext = t.cfg.FolderAlbum, t.cfg.FileNoAlbum, ".m4a"
	default:
		ext = ".m4a"
		switch {
		case tags.Album == "":
			folder = t.cfg.FolderNoAlbum
		case tags.Compilation:
			folder = t.cfg.FolderCompilation
		default:
			folder = t.cfg.FolderAlbum
		}
		switch {
		case tags.Album == "":
			file = t.cfg.FileNoAlbum
		case tags.DiscTotal > 1:
			file = t.cfg.FileMultiDisc
		default:
			file = t.cfg.FileSingleDisc
		}
	}
	return t.render(folder, file, ext, tags.Values())
}

// PlaylistPath renders the playlist file path, or "" when disabled.
func (t *Templater) PlaylistPath(tags *Tags) (string, error) {
	if t.cfg.FilePlaylist == "" || tags.PlaylistTitle == "" {
		return "", nil
	}
	return t.render("", t.cfg.FilePlaylist, ".m3u8", tags.Values())
}

// render splits folder and file templates on "/". Every segment but the last
// file segment is sanitized as a folder.
func (t *Templater) render(folder, file, ext string, values map[string]interface{}) (string, error) {
	parts := []string{t.cfg.OutputPath}

	var folderSegs []string
	if folder != "" {
		folderSegs = strings.Split(folder, "/")
	}
	fileSegs := strings.Split(file, "/")

	for _, seg := range append(folderSegs, fileSegs[:len(fileSegs)-1]...) {
		rendered, err := Format(seg, values)
		if err != nil {
			return "", err
		}
		parts = append(parts, Sanitize(rendered, true, t.cfg.Truncate))
	}

	last, err := Format(fileSegs[len(fileSegs)-1], values)
	if err != nil {
		return "", err
	}
	parts = append(parts, sanitize(last, false, t.cfg.Truncate, len(ext))+ext)
	return filepath.Join(parts...), nil
}

var placeholderRe = regexp.MustCompile(`\{\{|\}\}|\{([a-z_]*)(?::([^{}]*))?\}`)

// Format substitutes {name} and {name:spec} placeholders. spec follows the
// [[fill]align][0][width][.precision][type] mini-language with types d and s.
func Format(tmpl string, values map[string]interface{}) (string, error) {
	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		switch match {
		case "{{":
			return "{"
		case "}}":
			return "}"
		}
		m := placeholderRe.FindStringSubmatch(match)
		name, spec := m[1], m[2]
		v, ok := values[name]
		if !ok {
			if firstErr == nil {
				firstErr = &TemplateError{Template: tmpl, Message: fmt.Sprintf("unknown tag %q", name)}
			}
			return match
		}
		s, err := formatValue(v, spec)
		if err != nil && firstErr == nil {
			firstErr = &TemplateError{Template: tmpl, Message: err.Error()}
		}
		return s
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

var specRe = regexp.MustCompile(`^(?:(.)?([<>^]))?(0)?(\d+)?(?:\.(\d+))?([ds])?$`)

func formatValue(v interface{}, spec string) (string, error) {
	m := specRe.FindStringSubmatch(spec)
	if m == nil {
		return "", fmt.Errorf("invalid format spec %q", spec)
	}
	fill, align, zero, widthStr, precStr, typ := m[1], m[2], m[3], m[4], m[5], m[6]

	var s string
	numeric := false
	switch val := v.(type) {
	case int:
		numeric = true
		s = strconv.Itoa(val)
	case bool:
		if typ == "d" {
			numeric = true
			s = "0"
			if val {
				s = "1"
			}
		} else if val {
			s = "True"
		} else {
			s = "False"
		}
	case string:
		if typ == "d" {
			return "", fmt.Errorf("format code 'd' for string value %q", val)
		}
		s = val
		if precStr != "" {
			p, _ := strconv.Atoi(precStr)
			s = truncateRunes(s, p)
			if p == 0 {
				s = ""
			}
		}
	default:
		s = fmt.Sprint(val)
	}

	width, _ := strconv.Atoi(widthStr)
	pad := width - utf8.RuneCountInString(s)
	if pad <= 0 {
		return s, nil
	}

	if fill == "" {
		fill = " "
	}
	if align == "" {
		switch {
		case zero != "" && numeric:
			// zero padding goes after the sign
			if strings.HasPrefix(s, "-") {
				return "-" + strings.Repeat("0", pad) + s[1:], nil
			}
			return strings.Repeat("0", pad) + s, nil
		case zero != "":
			fill, align = "0", "<"
		case numeric:
			align = ">"
		default:
			align = "<"
		}
	}

	switch align {
	case ">":
		return strings.Repeat(fill, pad) + s, nil
	case "^":
		left := pad / 2
		return strings.Repeat(fill, left) + s + strings.Repeat(fill, pad-left), nil
	default:
		return s + strings.Repeat(fill, pad), nil
	}
}
