package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/danmuck/snestrace/internal/romstore"
	"github.com/danmuck/snestrace/internal/traceimport"
	"github.com/danmuck/snestrace/internal/tracelink"
	"gopkg.in/yaml.v3"
)

// sessionReport is printed when a connect session ends.
type sessionReport struct {
	ROM           string                 `yaml:"rom"`
	MapMode       string                 `yaml:"map_mode"`
	EndState      string                 `yaml:"end_state"`
	Reason        string                 `yaml:"reason"`
	Duration      string                 `yaml:"duration"`
	BytesModified uint64                 `yaml:"bytes_modified"`
	Coverage      map[string]int         `yaml:"coverage"`
	Statistics    traceimport.Statistics `yaml:"statistics"`
}

func buildReport(store *romstore.Store, stats traceimport.Statistics, state tracelink.State, reason string, elapsed time.Duration) sessionReport {
	coverage := make(map[string]int)
	for flag, n := range store.Summary() {
		coverage[flag.String()] = n
	}
	return sessionReport{
		ROM:           store.Name(),
		MapMode:       store.MappingMode().String(),
		EndState:      state.String(),
		Reason:        reason,
		Duration:      elapsed.Round(time.Millisecond).String(),
		BytesModified: stats.BytesModified,
		Coverage:      coverage,
		Statistics:    stats,
	}
}

func writeReport(w io.Writer, format string, rep sessionReport) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	}

	s := rep.Statistics
	fmt.Fprintf(w, "session ended: %s (state %s, %s)\n", rep.Reason, rep.EndState, rep.Duration)
	if rep.ROM != "" {
		fmt.Fprintf(w, "rom:            %s (%s)\n", rep.ROM, rep.MapMode)
	}
	if s.RemoteROM != "" {
		fmt.Fprintf(w, "remote rom:     %s\n", s.RemoteROM)
	}
	if s.HandshakeWarning != "" {
		fmt.Fprintf(w, "warning:        %s\n", s.HandshakeWarning)
	}
	fmt.Fprintf(w, "bytes modified: %d\n", rep.BytesModified)
	fmt.Fprintf(w, "bytes analyzed: %d\n", s.BytesAnalyzed)
	fmt.Fprintf(w, "marks:          %d\n", s.MarksModified)
	fmt.Fprintf(w, "m/x flags:      %d/%d\n", s.MFlagsModified, s.XFlagsModified)
	fmt.Fprintf(w, "db/dp:          %d/%d\n", s.DataBanksModified, s.DirectPagesModified)
	fmt.Fprintf(w, "comments:       %d staged, %d committed\n", s.CommentsStaged, s.CommentsCommitted)
	fmt.Fprintf(w, "events:         %d exec, %d cdl, %d frames, %d dropped, %d out of bounds\n",
		s.ExecTraces, s.CdlUpdates, s.Frames, s.Dropped, s.OutOfBounds)

	flags := make([]string, 0, len(rep.Coverage))
	for flag := range rep.Coverage {
		flags = append(flags, flag)
	}
	sort.Strings(flags)
	for _, flag := range flags {
		fmt.Fprintf(w, "  %-10s %d\n", flag, rep.Coverage[flag])
	}
	return nil
}
