package save

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic opens every zstd frame; plain text levels never start with it.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// WriteCompressed encodes lvl through a zstd stream.
func WriteCompressed(w io.Writer, lvl *Level) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if err := Encode(enc, lvl); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// DecodeAny reads a plain or zstd-compressed level, whichever r holds.
func (d *Decoder) DecodeAny(r io.Reader) (*Level, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read level header: %w", err)
	}
	if !bytes.Equal(head, zstdMagic) {
		return d.Decode(br)
	}
	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()
	return d.Decode(dec)
}

// LoadFile reads a level from path.
func (d *Decoder) LoadFile(path string) (*Level, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open level %s: %w", path, err)
	}
	defer f.Close()

	lvl, err := d.DecodeAny(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load level %s: %w", path, err)
	}
	d.logger.Info().
		Str("path", path).
		Int("width", lvl.Board.W).
		Int("height", lvl.Board.H).
		Int("seats", len(lvl.Seats)).
		Msg("Level loaded")
	return lvl, nil
}

// SaveFile writes lvl to path through a temporary file in the same directory,
// so a crash never leaves a truncated save behind.
func SaveFile(path string, lvl *Level, compress bool) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if compress {
		err = WriteCompressed(w, lvl)
	} else {
		err = Encode(w, lvl)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write level %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}
