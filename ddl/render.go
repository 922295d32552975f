package ddl

import (
	"fmt"
	"strings"

	"github.com/maxpert/bitseq/sequence"
)

// RenderSequence renders a native sequence. The start counter is omitted when
// it is the backend default, as is an unset skip range.
func RenderSequence(d sequence.SequenceDescriptor) string {
	kind := d.Kind
	if kind == "" {
		kind = sequence.KindBitReversedPositive
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "create sequence %s options(sequence_kind=%q", d.Name, kind)
	if d.StartCounter > 1 {
		fmt.Fprintf(&sb, ", start_with_counter=%d", d.StartCounter)
	}
	if d.SkipRange != nil {
		fmt.Fprintf(&sb, ", skip_range_min=%d, skip_range_max=%d", d.SkipRange.Min, d.SkipRange.Max)
	}
	sb.WriteString(")")
	return sb.String()
}

// RenderEmulationTable renders the single-row counter table of an emulated sequence.
func RenderEmulationTable(d sequence.TableDescriptor) string {
	column := d.Column
	if column == "" {
		column = sequence.EmulationColumn
	}
	return fmt.Sprintf("create table %s (%s INT64) PRIMARY KEY ()", d.Name, column)
}

// RenderEntityTable renders an entity table.
func RenderEntityTable(t EntityTable) string {
	return fmt.Sprintf("create table %s (%s) PRIMARY KEY (%s)",
		t.Name, strings.Join(t.Columns, ","), strings.Join(t.PrimaryKey, ","))
}

// RenderForeignKey renders a foreign key added to owner.
func RenderForeignKey(owner string, fk ForeignKey) string {
	s := fmt.Sprintf("alter table %s add constraint %s foreign key (%s) references %s (%s)",
		owner, fk.Name, fk.Column, fk.RefTable, fk.RefColumn)
	if fk.OnDeleteCascade {
		s += " on delete cascade"
	}
	return s
}
