package traceimport

import (
	"fmt"

	"github.com/danmuck/snestrace/internal/annotation"
	"github.com/danmuck/snestrace/internal/observability"
	"github.com/danmuck/snestrace/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

// OnHandshake records the remote ROM identity. Version or ROM mismatches are
// kept as a warning and the import continues.
func (im *Importer) OnHandshake(h message.Handshake) {
	defer im.contain("handshake")
	im.mu.Lock()
	defer im.mu.Unlock()

	var warnings []string
	if err := h.CheckVersion(); err != nil {
		warnings = append(warnings, err.Error())
	}
	if im.romSize > 0 && h.ROMSize != 0 && int(h.ROMSize) != im.romSize {
		warnings = append(warnings, fmt.Sprintf("rom size mismatch: remote=%d local=%d", h.ROMSize, im.romSize))
	}
	if cs, ok := im.store.(checksummer); ok && h.ROMChecksum != 0 && cs.Checksum() != 0 && h.ROMChecksum != cs.Checksum() {
		warnings = append(warnings, fmt.Sprintf("rom checksum mismatch: remote=%08x local=%08x", h.ROMChecksum, cs.Checksum()))
	}

	im.stats.RemoteROM = h.ROMName
	im.stats.RemoteROMSize = h.ROMSize
	im.stats.HandshakeWarning = joinWarnings(warnings)
	if len(warnings) > 0 {
		observability.RecordImportEvent("handshake", "mismatch")
		log.Warn().Msgf("traceimport.Importer.OnHandshake degraded rom=%q warning=%q", h.ROMName, im.stats.HandshakeWarning)
		return
	}
	observability.RecordImportEvent("handshake", "applied")
	log.Info().Msgf("traceimport.Importer.OnHandshake rom=%q size=%d", h.ROMName, h.ROMSize)
}

// OnExecTrace marks the executed offset as an opcode and records the CPU
// register widths and banks seen there.
func (im *Importer) OnExecTrace(ev message.ExecTrace) {
	defer im.contain("exec_trace")
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.finalized {
		return
	}
	im.stats.ExecTraces++
	im.applyExecTrace(ev)
}

// OnExecTraceBatch applies each entry in order as if it arrived alone.
func (im *Importer) OnExecTraceBatch(b message.ExecTraceBatch) {
	defer im.contain("exec_trace_batch")
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.finalized {
		return
	}
	for _, ev := range b.Entries {
		im.stats.ExecTraces++
		im.applyExecTrace(ev)
	}
}

func (im *Importer) applyExecTrace(ev message.ExecTrace) {
	im.stats.LastPC = ev.PC
	off, ok := im.offset(ev.PC)
	if !ok {
		im.stats.OutOfBounds++
		observability.RecordImportEvent("exec_trace", "out_of_bounds")
		return
	}
	im.markAnalyzed(off)

	cur := im.store.Attributes(off)
	next := cur
	next.Flag = annotation.FlagOpcode
	next.MFlag = ev.MFlag
	next.XFlag = ev.XFlag
	next.DataBank = ev.DataBank
	next.DirectPage = ev.DirectPage
	if im.write(off, cur, next) {
		observability.RecordImportEvent("exec_trace", "applied")
	} else {
		observability.RecordImportEvent("exec_trace", "unchanged")
	}
	if im.opts.StageTraceComments {
		im.stage(off, traceComment(ev))
	}
}

// OnCdlUpdate classifies one offset from its CDL bits.
func (im *Importer) OnCdlUpdate(u message.CdlUpdate) {
	defer im.contain("cdl_update")
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.finalized {
		return
	}
	im.stats.CdlUpdates++
	off, ok := im.offset(u.Address)
	if !ok {
		im.stats.OutOfBounds++
		observability.RecordImportEvent("cdl_update", "out_of_bounds")
		return
	}
	im.applyCdl(off, u.Flags)
}

// OnCdlSnapshot applies one CDL byte per ROM offset. Offsets beyond the
// cached ROM size are ignored.
func (im *Importer) OnCdlSnapshot(s message.CdlSnapshot) {
	defer im.contain("cdl_snapshot")
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.finalized {
		return
	}
	flags := s.Flags
	if im.romSize > 0 && len(flags) > im.romSize {
		im.stats.OutOfBounds += uint64(len(flags) - im.romSize)
		flags = flags[:im.romSize]
	}
	for off, f := range flags {
		if f == 0 {
			continue
		}
		im.stats.CdlUpdates++
		im.applyCdl(off, f)
	}
}

// applyCdl derives the coarse classification. Code wins over data, and data
// never demotes an offset that is already classified.
func (im *Importer) applyCdl(off int, flags message.CdlFlags) {
	im.markAnalyzed(off)
	cur := im.store.Attributes(off)
	next := cur
	switch {
	case flags.Code():
		if !cur.Flag.IsCode() {
			next.Flag = annotation.FlagOpcode
		}
	case flags.Data():
		if cur.Flag == annotation.FlagUnreached {
			next.Flag = annotation.FlagData
			if im.opts.ClassifyPointers && flags.Indirect() {
				next.Flag = annotation.FlagPointer
			}
		}
	}
	if im.write(off, cur, next) {
		observability.RecordImportEvent("cdl_update", "applied")
	} else {
		observability.RecordImportEvent("cdl_update", "unchanged")
	}
}

// OnCPUState is recorded only.
func (im *Importer) OnCPUState(s message.CPUState) {
	defer im.contain("cpu_state")
	im.mu.Lock()
	defer im.mu.Unlock()
	im.stats.CPUStates++
	im.stats.LastPC = s.PC
	observability.RecordImportEvent("cpu_state", "recorded")
}

// OnFrame is recorded only.
func (im *Importer) OnFrame(f message.FrameEvent) {
	defer im.contain("frame")
	im.mu.Lock()
	defer im.mu.Unlock()
	im.stats.Frames++
	im.stats.LastFrame = f.Number
	observability.RecordImportEvent("frame", "recorded")
}

func (im *Importer) OnMemoryAccess(message.MemoryAccess) {
	defer im.contain("memory_access")
	im.mu.Lock()
	defer im.mu.Unlock()
	im.stats.MemoryAccesses++
	observability.RecordImportEvent("memory_access", "recorded")
}

// OnError records an error reported by the emulator.
func (im *Importer) OnError(e message.Error) {
	defer im.contain("error")
	im.mu.Lock()
	defer im.mu.Unlock()
	im.stats.RemoteErrors++
	im.stats.LastRemoteError = e.Error()
	observability.RecordImportEvent("error", "recorded")
	log.Warn().Msgf("traceimport.Importer.OnError code=%d text=%q", e.Code, e.Text)
}
