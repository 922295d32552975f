package ddl

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/maxpert/bitseq/sequence"
	"github.com/maxpert/bitseq/telemetry"
	"github.com/rs/zerolog/log"
)

// Synthesizer compares desired objects with the existing schema and produces
// the ordered statement batch to apply.
type Synthesizer struct {
	mode      Mode
	inspector Inspector
}

// NewSynthesizer creates a synthesizer. inspector may be nil in create mode.
func NewSynthesizer(mode Mode, inspector Inspector) *Synthesizer {
	return &Synthesizer{mode: mode, inspector: inspector}
}

func (s *Synthesizer) Mode() Mode { return s.mode }

// Synthesize returns native sequences first (by name), then tables with
// emulation tables sorted among entity tables, then foreign keys.
func (s *Synthesizer) Synthesize(ctx context.Context, desc sequence.Descriptors, entities []EntityTable) ([]Statement, error) {
	if s.mode == ModeNone {
		return nil, nil
	}

	existingTables := map[string]bool{}
	existingSequences := map[string]bool{}
	if s.mode == ModeUpdate {
		if s.inspector == nil {
			return nil, fmt.Errorf("update mode requires a schema inspector")
		}
		var err error
		if existingTables, err = s.inspector.ExistingTables(ctx); err != nil {
			return nil, fmt.Errorf("inspect tables: %w", err)
		}
		if existingSequences, err = s.inspector.ExistingSequences(ctx); err != nil {
			return nil, fmt.Errorf("inspect sequences: %w", err)
		}
	}

	var stmts []Statement

	seqs := append([]sequence.SequenceDescriptor(nil), desc.Sequences...)
	sort.Slice(seqs, func(i, j int) bool { return seqs[i].Name < seqs[j].Name })
	for i := range seqs {
		d := seqs[i]
		if existingSequences[d.Name] {
			continue
		}
		stmts = append(stmts, Statement{
			Key:      ObjectKey{Type: ObjectTypeSequence, Name: d.Name},
			SQL:      RenderSequence(d),
			Sequence: &d,
		})
	}

	var tables []Statement
	seen := make(map[string]bool)
	for i := range desc.Tables {
		d := desc.Tables[i]
		if seen[d.Name] {
			return nil, fmt.Errorf("table %s declared twice", d.Name)
		}
		seen[d.Name] = true
		if existingTables[d.Name] {
			continue
		}
		tables = append(tables, Statement{
			Key:   ObjectKey{Type: ObjectTypeTable, Name: d.Name},
			SQL:   RenderEmulationTable(d),
			Table: &d,
		})
	}

	var constraints []Statement
	for i := range entities {
		t := entities[i]
		if seen[t.Name] {
			return nil, fmt.Errorf("table %s declared twice", t.Name)
		}
		seen[t.Name] = true
		if existingTables[t.Name] {
			continue
		}
		tables = append(tables, Statement{
			Key:    ObjectKey{Type: ObjectTypeTable, Name: t.Name},
			SQL:    RenderEntityTable(t),
			Entity: &t,
		})
		for j := range t.ForeignKeys {
			fk := t.ForeignKeys[j]
			constraints = append(constraints, Statement{
				Key:        ObjectKey{Type: ObjectTypeConstraint, Name: fk.Name},
				SQL:        RenderForeignKey(t.Name, fk),
				Constraint: &fk,
				Owner:      t.Name,
			})
		}
	}
	sort.SliceStable(tables, func(i, j int) bool {
		return tableLess(tables[i].Key.Name, tables[j].Key.Name)
	})

	stmts = append(stmts, tables...)
	stmts = append(stmts, constraints...)

	for _, st := range stmts {
		telemetry.DDLStatementsTotal.With(string(st.Key.Type)).Inc()
	}
	log.Debug().
		Str("mode", s.mode.String()).
		Int("count", len(stmts)).
		Msg("DDL synthesized")
	return stmts, nil
}

// tableLess orders names case-insensitively, ties broken by byte order.
func tableLess(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// Run synthesizes and applies in one step. An empty batch is not applied.
func (s *Synthesizer) Run(ctx context.Context, desc sequence.Descriptors, entities []EntityTable, applier Applier) ([]Statement, error) {
	stmts, err := s.Synthesize(ctx, desc, entities)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return nil, nil
	}
	if err := applier.Apply(ctx, stmts); err != nil {
		return nil, fmt.Errorf("apply ddl batch: %w", err)
	}
	log.Info().Str("mode", s.mode.String()).Int("count", len(stmts)).Msg("DDL batch applied")
	return stmts, nil
}
