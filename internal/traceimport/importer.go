package traceimport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/snestrace/internal/annotation"
	"github.com/danmuck/snestrace/internal/observability"
	"github.com/danmuck/snestrace/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

// Store is the ROM-annotation store the importer mutates. It is shared with
// the rest of the application and must be safe for concurrent use.
type Store interface {
	AddressToOffset(addr uint32) (int, bool)
	Attributes(offset int) annotation.Attributes
	SetAttributes(offset int, a annotation.Attributes)
	ROMSize() int
	MappingMode() annotation.MapMode
	SetComment(offset int, text string)
}

// checksummer is implemented by stores that know their image checksum.
type checksummer interface {
	Checksum() uint32
}

type Options struct {
	// StageTraceComments stages one descriptive comment per executed offset.
	StageTraceComments bool
	// ClassifyPointers marks CDL indirect reads as pointers instead of data.
	ClassifyPointers bool
}

// Importer translates trace events into store mutations for one session.
type Importer struct {
	store   Store
	opts    Options
	romSize int
	mode    annotation.MapMode

	mu        sync.RWMutex
	stats     Statistics
	analyzed  offsetSet
	staged    map[int]string
	finalized bool
}

// New caches the store's ROM size and mapping mode; both are assumed fixed
// for the life of the session.
func New(store Store, opts Options) *Importer {
	size := store.ROMSize()
	im := &Importer{
		store:    store,
		opts:     opts,
		romSize:  size,
		mode:     store.MappingMode(),
		analyzed: newOffsetSet(size),
		staged:   make(map[int]string),
	}
	log.Debug().Msgf("traceimport.New rom_size=%d mode=%s comments=%t", size, im.mode, opts.StageTraceComments)
	return im
}

// Statistics returns a snapshot of the session counters.
func (im *Importer) Statistics() Statistics {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.stats
}

// HandleMessage routes one inbound message to its handler. It is the
// subscription entry point for the transport receive loop.
func (im *Importer) HandleMessage(m message.Message) {
	switch v := m.(type) {
	case message.Handshake:
		im.OnHandshake(v)
	case message.ExecTrace:
		im.OnExecTrace(v)
	case message.ExecTraceBatch:
		im.OnExecTraceBatch(v)
	case message.CdlUpdate:
		im.OnCdlUpdate(v)
	case message.CdlSnapshot:
		im.OnCdlSnapshot(v)
	case message.CPUState:
		im.OnCPUState(v)
	case message.FrameEvent:
		im.OnFrame(v)
	case message.MemoryAccess:
		im.OnMemoryAccess(v)
	case message.Error:
		im.OnError(v)
	}
}

// contain turns a panic inside one event handler into a dropped event.
func (im *Importer) contain(kind string) {
	r := recover()
	if r == nil {
		return
	}
	im.mu.Lock()
	im.stats.Dropped++
	im.mu.Unlock()
	observability.RecordImportEvent(kind, "dropped")
	log.Error().Msgf("traceimport.Importer event dropped kind=%s err=%v", kind, r)
}

// offset maps a SNES address into the cached ROM bounds.
func (im *Importer) offset(addr uint32) (int, bool) {
	off, ok := im.store.AddressToOffset(addr)
	if !ok || off < 0 || (im.romSize > 0 && off >= im.romSize) {
		return 0, false
	}
	return off, true
}

func (im *Importer) markAnalyzed(offset int) {
	if im.analyzed.add(offset) {
		im.stats.BytesAnalyzed++
	}
}

// write stores next when it differs from cur and counts each changed field.
func (im *Importer) write(offset int, cur, next annotation.Attributes) bool {
	if cur == next {
		return false
	}
	im.store.SetAttributes(offset, next)
	im.stats.BytesModified++
	if cur.Flag != next.Flag {
		im.stats.MarksModified++
		observability.RecordModification("mark")
	}
	if cur.MFlag != next.MFlag {
		im.stats.MFlagsModified++
		observability.RecordModification("m_flag")
	}
	if cur.XFlag != next.XFlag {
		im.stats.XFlagsModified++
		observability.RecordModification("x_flag")
	}
	if cur.DataBank != next.DataBank {
		im.stats.DataBanksModified++
		observability.RecordModification("data_bank")
	}
	if cur.DirectPage != next.DirectPage {
		im.stats.DirectPagesModified++
		observability.RecordModification("direct_page")
	}
	return true
}

// Finalize merges staged comments into the store in one pass and returns how
// many were written. Only the first call has any effect.
func (im *Importer) Finalize() int {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.finalized {
		return 0
	}
	im.finalized = true

	offsets := make([]int, 0, len(im.staged))
	for off := range im.staged {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	for _, off := range offsets {
		im.store.SetComment(off, im.staged[off])
	}
	im.stats.CommentsCommitted += uint64(len(offsets))
	im.staged = nil

	log.Info().Msgf(
		"traceimport.Importer.Finalize comments=%d bytes_modified=%d bytes_analyzed=%d dropped=%d",
		len(offsets),
		im.stats.BytesModified,
		im.stats.BytesAnalyzed,
		im.stats.Dropped,
	)
	return len(offsets)
}

// Discard ends the session without committing staged comments.
func (im *Importer) Discard() {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.finalized {
		return
	}
	im.finalized = true
	log.Info().Msgf("traceimport.Importer.Discard staged=%d", len(im.staged))
	im.staged = nil
}

// Finalized reports whether Finalize or Discard has run.
func (im *Importer) Finalized() bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.finalized
}

// StagedComment returns the comment waiting for offset, if any.
func (im *Importer) StagedComment(offset int) (string, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	text, ok := im.staged[offset]
	return text, ok
}

func (im *Importer) stage(offset int, text string) {
	if im.staged == nil {
		return
	}
	if _, exists := im.staged[offset]; exists {
		return
	}
	im.staged[offset] = text
	im.stats.CommentsStaged++
}

func traceComment(ev message.ExecTrace) string {
	return fmt.Sprintf("trace: op=$%02X m=%d x=%d db=$%02X dp=$%04X ea=$%06X",
		ev.Opcode, regWidth(ev.MFlag), regWidth(ev.XFlag), ev.DataBank, ev.DirectPage, ev.EffectiveAddr)
}

func regWidth(eightBit bool) int {
	if eightBit {
		return 8
	}
	return 16
}

func joinWarnings(warnings []string) string {
	return strings.Join(warnings, "; ")
}
