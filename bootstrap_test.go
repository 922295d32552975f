package main

import (
	"context"
	"testing"

	"github.com/maxpert/bitseq/bitrev"
	"github.com/maxpert/bitseq/cfg"
	"github.com/maxpert/bitseq/id"
	"github.com/maxpert/bitseq/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionParams(t *testing.T) {
	params := definitionParams(cfg.SequenceDefinition{
		Name:         "enhanced_sequence",
		StartCounter: 5000,
		ExcludeRange: []int64{1, 1000},
		Emulation:    "native",
	}, 50)

	c, err := id.ParseParams(params)
	require.NoError(t, err)
	assert.Equal(t, sequence.Config{
		Name:            "enhanced_sequence",
		FetchSize:       50,
		StartingCounter: 5000,
		Exclusion:       &sequence.Range{Min: 1, Max: 1000},
		Emulation:       sequence.Native,
	}, c)

	minimal := definitionParams(cfg.SequenceDefinition{Name: "s", FetchSize: 7}, 50)
	assert.Equal(t, id.Params{id.ParamSequenceName: "s", id.ParamFetchSize: "7"}, minimal)
}

func TestEntitiesFromConfig(t *testing.T) {
	entities := entitiesFromConfig([]cfg.TableDefinition{{
		Name:       "Invoice",
		Columns:    []string{"invoiceId INT64 not null", "customerId INT64"},
		PrimaryKey: []string{"invoiceId"},
		ForeignKeys: []cfg.ForeignKeyDefinition{{
			Name: "fk", Column: "customerId", RefTable: "Customer", RefColumn: "customerId", OnDeleteCascade: true,
		}},
	}})
	require.Len(t, entities, 1)
	assert.Equal(t, "Invoice", entities[0].Name)
	require.Len(t, entities[0].ForeignKeys, 1)
	assert.True(t, entities[0].ForeignKeys[0].OnDeleteCascade)
}

func TestNode_BootstrapPebble(t *testing.T) {
	original := *cfg.Config
	defer func() { *cfg.Config = original }()

	cfg.Config.DataDir = t.TempDir()
	cfg.Config.Sequences.Backend = cfg.BackendPebble
	cfg.Config.Sequences.NativeEnabled = true
	cfg.Config.Sequences.Define = []cfg.SequenceDefinition{
		{Name: "orders_seq", FetchSize: 4, StartCounter: 100},
		{Name: "legacy_seq", Emulation: "table", StartCounter: 7},
	}
	cfg.Config.DDL.Mode = cfg.DDLUpdate
	cfg.Config.DDL.Tables = []cfg.TableDefinition{{
		Name:       "Orders",
		Columns:    []string{"id INTEGER NOT NULL", "note TEXT"},
		PrimaryKey: []string{"id"},
	}}

	ctx := context.Background()
	n, err := openNode(ctx)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.bootstrapSequences())
	require.NoError(t, n.applySchema(ctx))

	v, err := n.generators["orders_seq"].NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, bitrev.Reverse(100), v)

	v, err = n.generators["legacy_seq"].NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	tables, err := n.inspector.ExistingTables(ctx)
	require.NoError(t, err)
	assert.True(t, tables["Orders"])
	assert.True(t, tables["legacy_seq"])

	// A second pass over the same schema applies nothing.
	require.NoError(t, n.applySchema(ctx))
}
