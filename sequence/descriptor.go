package sequence

import "sort"

// KindBitReversedPositive is the sequence kind of every native sequence.
const KindBitReversedPositive = "bit_reversed_positive"

// EmulationColumn is the single column of an emulation table.
const EmulationColumn = "next_val"

// SequenceDescriptor is the DDL projection of a native sequence.
type SequenceDescriptor struct {
	Name         string
	Kind         string
	StartCounter int64
	SkipRange    *Range
}

// TableDescriptor is the DDL projection of a table-emulated sequence.
type TableDescriptor struct {
	Name         string
	Column       string
	StartCounter int64
}

// Descriptors groups the schema objects the registry needs.
type Descriptors struct {
	Sequences []SequenceDescriptor
	Tables    []TableDescriptor
}

// Describe projects a config resolved to mode onto its DDL descriptor.
func Describe(c Config, mode EmulationMode) (SequenceDescriptor, TableDescriptor, bool) {
	if mode == TableEmulated {
		return SequenceDescriptor{}, TableDescriptor{
			Name:         c.Name,
			Column:       EmulationColumn,
			StartCounter: c.Start(),
		}, false
	}

	d := SequenceDescriptor{
		Name:         c.Name,
		Kind:         KindBitReversedPositive,
		StartCounter: c.StartingCounter,
	}
	if c.Exclusion != nil {
		r := *c.Exclusion
		d.SkipRange = &r
	}
	return d, TableDescriptor{}, true
}

func (d *Descriptors) sort() {
	sort.Slice(d.Sequences, func(i, j int) bool { return d.Sequences[i].Name < d.Sequences[j].Name })
	sort.Slice(d.Tables, func(i, j int) bool { return d.Tables[i].Name < d.Tables[j].Name })
}
