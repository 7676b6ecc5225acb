// Package romstore is an in-memory ROM-annotation store: address
// translation plus per-offset attributes and comments for one ROM image.
package romstore

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/danmuck/snestrace/internal/annotation"
)

var ErrEmptyImage = errors.New("romstore: empty rom image")

// Store is safe for concurrent use; the importer and the rest of the
// application share one instance.
type Store struct {
	mu       sync.RWMutex
	mode     annotation.MapMode
	name     string
	size     int
	checksum uint32
	attrs    []annotation.Attributes
	comments map[int]string
}

// New returns an empty store for a ROM of size bytes.
func New(size int, mode annotation.MapMode) *Store {
	if size < 0 {
		size = 0
	}
	return &Store{
		mode:     mode,
		size:     size,
		attrs:    make([]annotation.Attributes, size),
		comments: make(map[int]string),
	}
}

// FromImage builds a store sized to image and records its checksum.
func FromImage(name string, image []byte, mode annotation.MapMode) (*Store, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	s := New(len(image), mode)
	s.name = name
	s.checksum = Checksum(image)
	return s, nil
}

// Load reads a ROM image from disk.
func Load(path string, mode annotation.MapMode) (*Store, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("romstore: load %s: %w", path, err)
	}
	// Drop a 512-byte copier header when present.
	if len(image)%0x400 == 0x200 {
		image = image[0x200:]
	}
	return FromImage(path, image, mode)
}

// Checksum is the 32-bit byte sum of image.
func Checksum(image []byte) uint32 {
	var sum uint32
	for _, b := range image {
		sum += uint32(b)
	}
	return sum
}

func (s *Store) Name() string                    { return s.name }
func (s *Store) ROMSize() int                    { return s.size }
func (s *Store) Checksum() uint32                { return s.checksum }
func (s *Store) MappingMode() annotation.MapMode { return s.mode }

// AddressToOffset translates a 24-bit SNES address. Addresses that do not
// reach ROM, or land past the end of the image, report false.
func (s *Store) AddressToOffset(addr uint32) (int, bool) {
	offset, ok := MapAddress(s.mode, addr)
	if !ok || offset >= s.size {
		return 0, false
	}
	return offset, true
}

// MapAddress applies the bus decoding of mode without a size check.
func MapAddress(mode annotation.MapMode, addr uint32) (int, bool) {
	addr &= 0xFFFFFF
	bank := addr >> 16
	low := addr & 0xFFFF
	if bank == 0x7E || bank == 0x7F {
		return 0, false
	}
	switch mode {
	case annotation.LoROM:
		if low < 0x8000 {
			return 0, false
		}
		return int(((bank & 0x7F) << 15) | (low & 0x7FFF)), true
	case annotation.HiROM:
		if (bank&0x7F) < 0x40 && low < 0x8000 {
			return 0, false
		}
		return int(addr & 0x3FFFFF), true
	}
	return 0, false
}

func (s *Store) Attributes(offset int) annotation.Attributes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 || offset >= s.size {
		return annotation.Attributes{}
	}
	return s.attrs[offset]
}

func (s *Store) SetAttributes(offset int, a annotation.Attributes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset < 0 || offset >= s.size {
		return
	}
	s.attrs[offset] = a
}

// SetComment replaces the comment at offset; an empty text clears it.
func (s *Store) SetComment(offset int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset < 0 || offset >= s.size {
		return
	}
	if text == "" {
		delete(s.comments, offset)
		return
	}
	s.comments[offset] = text
}

func (s *Store) Comment(offset int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.comments[offset]
	return text, ok
}

// CommentOffsets lists commented offsets in ascending order.
func (s *Store) CommentOffsets() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.comments))
	for off := range s.comments {
		out = append(out, off)
	}
	sort.Ints(out)
	return out
}

// Summary counts offsets per flag.
func (s *Store) Summary() map[annotation.Flag]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[annotation.Flag]int)
	for _, a := range s.attrs {
		out[a.Flag]++
	}
	return out
}
