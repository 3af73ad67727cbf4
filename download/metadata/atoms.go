package metadata

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/Eyevinn/mp4ff/mp4"
)

// dataTypeInteger is the well-known type of a big-endian signed integer
// data atom.
const dataTypeInteger = 21

// itemAtom is a one byte integer item in moov.udta.meta.ilst, such as cpil
// or stik. go-mp4tag has no fields for these.
type itemAtom struct {
	Name  string
	Value byte
}

// newItemBox builds name{data{type 21, locale 0, value}}.
func newItemBox(a itemAtom) *mp4.UnknownBox {
	const dataSize = 8 + 8 + 1
	sw := bits.NewFixedSliceWriter(dataSize)
	sw.WriteUint32(dataSize)
	sw.WriteString("data", false)
	sw.WriteUint32(dataTypeInteger)
	sw.WriteUint32(0)
	sw.WriteUint8(a.Value)
	return mp4.CreateUnknownBox(a.Name, 8+dataSize, sw.Bytes())
}

// boxSpan is the position of a top level box.
type boxSpan struct {
	Name  string
	Start int64
	Size  int64
}

func topLevelBoxes(r io.ReadSeeker, fileSize int64) ([]boxSpan, error) {
	var spans []boxSpan
	for pos := int64(0); pos < fileSize; {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return nil, err
		}
		hdr, err := mp4.DecodeHeader(r)
		if err != nil {
			return nil, fmt.Errorf("box header at %d: %w", pos, err)
		}
		size := int64(hdr.Size)
		if size == 0 {
			size = fileSize - pos
		}
		if size < int64(hdr.Hdrlen) || pos+size > fileSize {
			return nil, fmt.Errorf("box %q at %d has invalid size %d", hdr.Name, pos, size)
		}
		spans = append(spans, boxSpan{Name: hdr.Name, Start: pos, Size: size})
		pos += size
	}
	return spans, nil
}

func findSpan(spans []boxSpan, name string) (boxSpan, bool) {
	for _, s := range spans {
		if s.Name == name {
			return s, true
		}
	}
	return boxSpan{}, false
}

func decodeMoov(r io.ReadSeeker, s boxSpan) (*mp4.MoovBox, error) {
	if _, err := r.Seek(s.Start, io.SeekStart); err != nil {
		return nil, err
	}
	box, err := mp4.DecodeBox(uint64(s.Start), r)
	if err != nil {
		return nil, err
	}
	moov, ok := box.(*mp4.MoovBox)
	if !ok {
		return nil, fmt.Errorf("unexpected %T for moov", box)
	}
	return moov, nil
}

func findIlst(moov *mp4.MoovBox) *mp4.IlstBox {
	for _, c := range moov.Children {
		udta, ok := c.(*mp4.UdtaBox)
		if !ok {
			continue
		}
		for _, uc := range udta.Children {
			meta, ok := uc.(*mp4.MetaBox)
			if !ok {
				continue
			}
			for _, mc := range meta.Children {
				if ilst, ok := mc.(*mp4.IlstBox); ok {
					return ilst
				}
			}
		}
	}
	return nil
}

// shiftChunkOffsets moves every sample chunk offset of moov by delta.
func shiftChunkOffsets(moov *mp4.MoovBox, delta int64) {
	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
			continue
		}
		stbl := trak.Mdia.Minf.Stbl
		if stbl.Stco != nil {
			for i := range stbl.Stco.ChunkOffset {
				stbl.Stco.ChunkOffset[i] = uint32(int64(stbl.Stco.ChunkOffset[i]) + delta)
			}
		}
		if stbl.Co64 != nil {
			for i := range stbl.Co64.ChunkOffset {
				stbl.Co64.ChunkOffset[i] = uint64(int64(stbl.Co64.ChunkOffset[i]) + delta)
			}
		}
	}
}

var errNoIlst = errors.New("moov.udta.meta.ilst not present")

// writeItemAtoms replaces the named integer items in the file's item list.
// Only moov is rewritten; the other top level boxes are copied as they are,
// with chunk offsets moved when moov precedes the media data.
func writeItemAtoms(path string, atoms []itemAtom) error {
	if len(atoms) == 0 {
		return nil
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return err
	}

	spans, err := topLevelBoxes(src, info.Size())
	if err != nil {
		return err
	}
	moovSpan, ok := findSpan(spans, "moov")
	if !ok {
		return errors.New("moov box not present")
	}
	moov, err := decodeMoov(src, moovSpan)
	if err != nil {
		return fmt.Errorf("failed to decode moov: %w", err)
	}
	ilst := findIlst(moov)
	if ilst == nil {
		return errNoIlst
	}

	replaced := make(map[string]bool, len(atoms))
	for _, a := range atoms {
		replaced[a.Name] = true
	}
	children := ilst.Children[:0]
	for _, c := range ilst.Children {
		if !replaced[c.Type()] {
			children = append(children, c)
		}
	}
	ilst.Children = children
	for _, a := range atoms {
		ilst.AddChild(newItemBox(a))
	}

	delta := int64(moov.Size()) - moovSpan.Size
	if mdat, ok := findSpan(spans, "mdat"); ok && mdat.Start > moovSpan.Start && delta != 0 {
		shiftChunkOffsets(moov, delta)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tags-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}

	w := bufio.NewWriter(tmp)
	if _, err := io.Copy(w, io.NewSectionReader(src, 0, moovSpan.Start)); err != nil {
		tmp.Close()
		return err
	}
	if err := moov.Encode(w); err != nil {
		tmp.Close()
		return err
	}
	rest := moovSpan.Start + moovSpan.Size
	if _, err := io.Copy(w, io.NewSectionReader(src, rest, info.Size()-rest)); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
