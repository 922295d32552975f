// Package ddl derives the schema statements a set of sequences and entity
// tables needs, and hands them to an Applier as one batch.
package ddl

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxpert/bitseq/sequence"
)

// Mode controls which statements are synthesized.
type Mode int

const (
	// ModeNone synthesizes nothing.
	ModeNone Mode = iota
	// ModeCreate emits every desired object.
	ModeCreate
	// ModeUpdate emits only objects missing from the existing schema.
	ModeUpdate
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeUpdate:
		return "update"
	default:
		return "none"
	}
}

// ParseMode accepts "none", "create" and "update".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ModeNone, nil
	case "create":
		return ModeCreate, nil
	case "update":
		return ModeUpdate, nil
	}
	return ModeNone, fmt.Errorf("unknown ddl mode %q", s)
}

// ObjectType is the kind of schema object a statement creates.
type ObjectType string

const (
	ObjectTypeSequence   ObjectType = "sequence"
	ObjectTypeTable      ObjectType = "table"
	ObjectTypeConstraint ObjectType = "constraint"
)

// ObjectKey identifies a schema object.
type ObjectKey struct {
	Type ObjectType
	Name string
}

func (k ObjectKey) String() string {
	return fmt.Sprintf("%s %s", k.Type, k.Name)
}

// ForeignKey is a constraint of an entity table.
type ForeignKey struct {
	Name            string
	Column          string
	RefTable        string
	RefColumn       string
	OnDeleteCascade bool
}

// EntityTable is a table owned by the persistence layer. Columns are complete
// column definitions such as "id INT64 not null".
type EntityTable struct {
	Name        string
	Columns     []string
	PrimaryKey  []string
	ForeignKeys []ForeignKey
}

// Statement is one synthesized DDL statement. Exactly one of Sequence, Table,
// Entity or Constraint is set, so appliers for other dialects can re-render it.
type Statement struct {
	Key        ObjectKey
	SQL        string
	Sequence   *sequence.SequenceDescriptor
	Table      *sequence.TableDescriptor
	Entity     *EntityTable
	Constraint *ForeignKey
	// Owner is the table a constraint is added to.
	Owner string
}

// Inspector reports the objects that already exist.
type Inspector interface {
	ExistingTables(ctx context.Context) (map[string]bool, error)
	ExistingSequences(ctx context.Context) (map[string]bool, error)
}

// Applier executes a synthesized batch. Implementations apply the batch as a
// unit where the backend allows it.
type Applier interface {
	Apply(ctx context.Context, stmts []Statement) error
}

// SQLs flattens statements to their SQL text.
func SQLs(stmts []Statement) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.SQL
	}
	return out
}
