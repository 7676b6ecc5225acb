// Package annotation defines the per-offset ROM attributes shared by the
// trace importer and any ROM-annotation store.
package annotation

import "fmt"

// Flag is the coarse classification of one ROM byte.
type Flag uint8

const (
	FlagUnreached Flag = iota
	FlagOpcode
	FlagOperand
	FlagData
	FlagPointer
)

func (f Flag) String() string {
	switch f {
	case FlagUnreached:
		return "unreached"
	case FlagOpcode:
		return "opcode"
	case FlagOperand:
		return "operand"
	case FlagData:
		return "data"
	case FlagPointer:
		return "pointer"
	}
	return fmt.Sprintf("flag(%d)", uint8(f))
}

// IsCode reports whether f marks an instruction byte.
func (f Flag) IsCode() bool { return f == FlagOpcode || f == FlagOperand }

// Attributes is the annotation state of one ROM offset. MFlag and XFlag are
// true when the accumulator and index registers are 8-bit.
type Attributes struct {
	Flag       Flag
	MFlag      bool
	XFlag      bool
	DataBank   uint8
	DirectPage uint16
}

// MapMode selects how SNES bus addresses translate to ROM offsets.
type MapMode uint8

const (
	LoROM MapMode = iota
	HiROM
)

func (m MapMode) String() string {
	switch m {
	case LoROM:
		return "lorom"
	case HiROM:
		return "hirom"
	}
	return fmt.Sprintf("mapmode(%d)", uint8(m))
}

// ParseMapMode accepts the names produced by MapMode.String.
func ParseMapMode(raw string) (MapMode, error) {
	switch raw {
	case "lorom", "LoROM", "":
		return LoROM, nil
	case "hirom", "HiROM":
		return HiROM, nil
	}
	return LoROM, fmt.Errorf("annotation: unknown map mode %q", raw)
}
