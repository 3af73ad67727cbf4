package media

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/Eyevinn/mp4ff/mp4"
)

// Job describes one encrypted audio file to decrypt and remux. DecryptedPath
// is the intermediate file of two-step modes.
type Job struct {
	EncryptedPath string
	DecryptedPath string
	OutputPath    string
	Key           string // hex
}

// VideoJob describes the encrypted video and audio tracks of a music video.
type VideoJob struct {
	EncryptedVideoPath string
	EncryptedAudioPath string
	DecryptedVideoPath string
	DecryptedAudioPath string
	OutputPath         string
	Key                string // hex
}

// Remuxer turns encrypted streams into a playable container.
type Remuxer interface {
	Remux(ctx context.Context, job Job) error
	RemuxVideo(ctx context.Context, job VideoJob) error
}

// FFmpegRemuxer decrypts and remuxes in a single ffmpeg pass.
type FFmpegRemuxer struct {
	Path string
}

func (r FFmpegRemuxer) Remux(ctx context.Context, job Job) error {
	return runTool(ctx, "ffmpeg", r.Path, ffmpegArgs(job)...)
}

func (r FFmpegRemuxer) RemuxVideo(ctx context.Context, job VideoJob) error {
	return runTool(ctx, "ffmpeg", r.Path, ffmpegVideoArgs(job)...)
}

func ffmpegArgs(job Job) []string {
	return []string{
		"-loglevel", "error",
		"-y",
		"-decryption_key", job.Key,
		"-i", job.EncryptedPath,
		"-movflags", "+faststart",
		"-c", "copy",
		job.OutputPath,
	}
}

func ffmpegVideoArgs(job VideoJob) []string {
	return []string{
		"-loglevel", "error",
		"-y",
		"-decryption_key", job.Key,
		"-i", job.EncryptedVideoPath,
		"-decryption_key", job.Key,
		"-i", job.EncryptedAudioPath,
		"-c", "copy",
		"-movflags", "+faststart",
		"-fflags", "+bitexact",
		job.OutputPath,
	}
}

// MP4BoxRemuxer decrypts with mp4decrypt and remuxes with MP4Box.
type MP4BoxRemuxer struct {
	MP4BoxPath     string
	MP4DecryptPath string
}

func (r MP4BoxRemuxer) Remux(ctx context.Context, job Job) error {
	if err := runTool(ctx, "mp4decrypt", r.MP4DecryptPath, mp4decryptArgs(job.EncryptedPath, job.DecryptedPath, job.Key)...); err != nil {
		return err
	}
	return runTool(ctx, "MP4Box", r.MP4BoxPath, mp4boxArgs(job.OutputPath, job.DecryptedPath)...)
}

func (r MP4BoxRemuxer) RemuxVideo(ctx context.Context, job VideoJob) error {
	if err := runTool(ctx, "mp4decrypt", r.MP4DecryptPath, mp4decryptArgs(job.EncryptedVideoPath, job.DecryptedVideoPath, job.Key)...); err != nil {
		return err
	}
	if err := runTool(ctx, "mp4decrypt", r.MP4DecryptPath, mp4decryptArgs(job.EncryptedAudioPath, job.DecryptedAudioPath, job.Key)...); err != nil {
		return err
	}
	return runTool(ctx, "MP4Box", r.MP4BoxPath, mp4boxArgs(job.OutputPath, job.DecryptedVideoPath, job.DecryptedAudioPath)...)
}

func mp4decryptArgs(in, out, key string) []string {
	return []string{in, "--key", "1:" + key, out}
}

func mp4boxArgs(out string, inputs ...string) []string {
	args := []string{"-quiet"}
	for _, in := range inputs {
		args = append(args, "-add", in)
	}
	return append(args, "-new", out)
}

// NativeRemuxer decrypts CENC fragments in process. Music videos still need
// ffmpeg to interleave the decrypted tracks.
type NativeRemuxer struct {
	FFmpegPath string
}

func (r NativeRemuxer) Remux(ctx context.Context, job Job) error {
	key, err := hex.DecodeString(job.Key)
	if err != nil {
		return &DownloadError{Message: "Invalid decryption key", Original: err}
	}
	return DecryptFile(ctx, job.EncryptedPath, job.OutputPath, key)
}

func (r NativeRemuxer) RemuxVideo(ctx context.Context, job VideoJob) error {
	key, err := hex.DecodeString(job.Key)
	if err != nil {
		return &DownloadError{Message: "Invalid decryption key", Original: err}
	}
	if err := DecryptFile(ctx, job.EncryptedVideoPath, job.DecryptedVideoPath, key); err != nil {
		return err
	}
	if err := DecryptFile(ctx, job.EncryptedAudioPath, job.DecryptedAudioPath, key); err != nil {
		return err
	}
	return runTool(ctx, "ffmpeg", r.FFmpegPath,
		"-loglevel", "error",
		"-y",
		"-i", job.DecryptedVideoPath,
		"-i", job.DecryptedAudioPath,
		"-c", "copy",
		"-movflags", "+faststart",
		job.OutputPath,
	)
}

// DecryptFile decrypts a fragmented CENC MP4 from in to out.
func DecryptFile(ctx context.Context, in, out string, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Printf("DEBUG: native_decrypt_start in=%s out=%s", in, out)

	src, err := os.Open(in)
	if err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to open %s", in), Original: err}
	}
	defer src.Close()

	return writeOutput(out, func(w io.Writer) error {
		if err := DecryptMP4(bufio.NewReader(src), key, w); err != nil {
			return &DownloadError{Message: fmt.Sprintf("Failed to decrypt %s", in), Original: err}
		}
		return nil
	})
}

// writeOutput creates path and fills it through a buffered writer. The
// flush and close errors are returned, and a partial file is removed.
func writeOutput(path string, fill func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to create directory for %s", path), Original: err}
	}
	dst, err := os.Create(path)
	if err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to create %s", path), Original: err}
	}
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()

	w := bufio.NewWriter(dst)
	if err := fill(w); err != nil {
		dst.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		dst.Close()
		return &DownloadError{Message: fmt.Sprintf("Failed to write %s", path), Original: err}
	}
	if err := dst.Close(); err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to close %s", path), Original: err}
	}
	return nil
}

// DecryptMP4 decrypts every segment of a fragmented MP4. Segments without a
// senc box are clear and copied as is.
func DecryptMP4(r io.Reader, key []byte, w io.Writer) error {
	f, err := mp4.DecodeFile(r)
	if err != nil {
		return fmt.Errorf("failed to decode file: %w", err)
	}
	if !f.IsFragmented() {
		return errors.New("file is not fragmented")
	}
	if f.Init == nil {
		return errors.New("no init part of file")
	}
	info, err := mp4.DecryptInit(f.Init)
	if err != nil {
		return fmt.Errorf("failed to decrypt init: %w", err)
	}
	if err := f.Init.Encode(w); err != nil {
		return fmt.Errorf("failed to write init: %w", err)
	}
	for _, seg := range f.Segments {
		if err := mp4.DecryptSegment(seg, info, key); err != nil && err.Error() != "no senc box in traf" {
			return fmt.Errorf("failed to decrypt segment: %w", err)
		}
		if err := seg.Encode(w); err != nil {
			return fmt.Errorf("failed to encode segment: %w", err)
		}
	}
	return nil
}
