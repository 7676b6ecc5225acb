package traceimport

// Statistics are the cumulative counters of one import session.
type Statistics struct {
	// BytesAnalyzed counts distinct ROM offsets touched by any event.
	BytesAnalyzed uint64 `json:"bytes_analyzed" yaml:"bytes_analyzed"`
	// BytesModified counts attribute writes, one per changed offset per event.
	BytesModified       uint64 `json:"bytes_modified" yaml:"bytes_modified"`
	MarksModified       uint64 `json:"marks_modified" yaml:"marks_modified"`
	MFlagsModified      uint64 `json:"m_flags_modified" yaml:"m_flags_modified"`
	XFlagsModified      uint64 `json:"x_flags_modified" yaml:"x_flags_modified"`
	DataBanksModified   uint64 `json:"data_banks_modified" yaml:"data_banks_modified"`
	DirectPagesModified uint64 `json:"direct_pages_modified" yaml:"direct_pages_modified"`
	CommentsStaged      uint64 `json:"comments_staged" yaml:"comments_staged"`
	CommentsCommitted   uint64 `json:"comments_committed" yaml:"comments_committed"`

	ExecTraces     uint64 `json:"exec_traces" yaml:"exec_traces"`
	CdlUpdates     uint64 `json:"cdl_updates" yaml:"cdl_updates"`
	CPUStates      uint64 `json:"cpu_states" yaml:"cpu_states"`
	Frames         uint64 `json:"frames" yaml:"frames"`
	MemoryAccesses uint64 `json:"memory_accesses" yaml:"memory_accesses"`
	RemoteErrors   uint64 `json:"remote_errors" yaml:"remote_errors"`
	OutOfBounds    uint64 `json:"out_of_bounds" yaml:"out_of_bounds"`
	Dropped        uint64 `json:"dropped" yaml:"dropped"`

	RemoteROM        string `json:"remote_rom,omitempty" yaml:"remote_rom,omitempty"`
	RemoteROMSize    uint32 `json:"remote_rom_size,omitempty" yaml:"remote_rom_size,omitempty"`
	HandshakeWarning string `json:"handshake_warning,omitempty" yaml:"handshake_warning,omitempty"`
	LastFrame        uint32 `json:"last_frame" yaml:"last_frame"`
	LastPC           uint32 `json:"last_pc" yaml:"last_pc"`
	LastRemoteError  string `json:"last_remote_error,omitempty" yaml:"last_remote_error,omitempty"`
}

// offsetSet is a growable bitset of ROM offsets.
type offsetSet struct {
	words []uint64
}

func newOffsetSet(size int) offsetSet {
	return offsetSet{words: make([]uint64, (size+63)/64)}
}

// add reports whether offset was not already present.
func (s *offsetSet) add(offset int) bool {
	w := offset / 64
	if w >= len(s.words) {
		grown := make([]uint64, w+1)
		copy(grown, s.words)
		s.words = grown
	}
	bit := uint64(1) << (uint(offset) % 64)
	if s.words[w]&bit != 0 {
		return false
	}
	s.words[w] |= bit
	return true
}
