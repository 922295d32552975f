package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/bitseq/db"
	"github.com/maxpert/bitseq/ddl"
	"github.com/rs/zerolog/log"
)

// maxInsertRows caps the rows of one insert request
const maxInsertRows = 1000

var validColumnName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type insertRowsRequest struct {
	Sequence string                   `json:"sequence"`
	IDColumn string                   `json:"id_column"`
	Rows     []map[string]interface{} `json:"rows"`
}

type insertRowsResponse struct {
	Table   string  `json:"table"`
	IDs     []int64 `json:"ids"`
	Flushes int     `json:"flushes"`
}

func (h *AdminHandlers) entity(name string) (ddl.EntityTable, bool) {
	for _, e := range h.entities {
		if e.Name == name {
			return e, true
		}
	}
	return ddl.EntityTable{}, false
}

// handleInsertRows allocates one id per row and inserts the rows in one
// batched transaction
// POST /admin/entities/{table}/rows
func (h *AdminHandlers) handleInsertRows(w http.ResponseWriter, r *http.Request) {
	if h.batcher == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "row inserts are not configured")
		return
	}

	table := chi.URLParam(r, "table")
	entity, ok := h.entity(table)
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("unknown entity table %q", table))
		return
	}

	var req insertRowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Sequence == "" {
		writeErrorResponse(w, http.StatusBadRequest, "sequence is required")
		return
	}
	if len(req.Rows) == 0 || len(req.Rows) > maxInsertRows {
		writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("rows must hold 1 to %d entries", maxInsertRows))
		return
	}

	idColumn := req.IDColumn
	if idColumn == "" {
		idColumn = "id"
		if len(entity.PrimaryKey) > 0 {
			idColumn = entity.PrimaryKey[0]
		}
	}
	if !validColumnName.MatchString(idColumn) {
		writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid column %q", idColumn))
		return
	}

	stmts := make([]db.Statement, 0, len(req.Rows))
	for i, row := range req.Rows {
		stmt, err := insertStatement(entity.Name, idColumn, row)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("row %d: %v", i, err))
			return
		}
		stmts = append(stmts, stmt)
	}

	// Ids are allocated before the batch opens: emulated counters and SQL
	// refills run their own transactions on the same database.
	ctx := r.Context()
	ids := make([]int64, 0, len(stmts))
	for _, stmt := range stmts {
		v, err := h.registry.Next(ctx, req.Sequence)
		if err != nil {
			writeAllocationError(w, err)
			return
		}
		stmt.Args[0] = v
		ids = append(ids, v)
	}

	batch, err := h.batcher.Begin(ctx)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, stmt := range stmts {
		if err := batch.Add(ctx, stmt); err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	res, err := batch.Commit(ctx)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Debug().
		Str("table", entity.Name).
		Str("sequence", req.Sequence).
		Int("count", res.Statements).
		Int("flushes", res.Flushes).
		Msg("Rows inserted")

	writeJSONResponse(w, insertRowsResponse{Table: entity.Name, IDs: ids, Flushes: res.Flushes})
}

// insertStatement renders one row as an insert whose first argument is the
// id placeholder. Columns are ordered by name.
func insertStatement(table, idColumn string, row map[string]interface{}) (db.Statement, error) {
	if _, ok := row[idColumn]; ok {
		return db.Statement{}, fmt.Errorf("column %q is assigned by the sequence", idColumn)
	}

	columns := make([]string, 0, len(row))
	for c := range row {
		if !validColumnName.MatchString(c) {
			return db.Statement{}, fmt.Errorf("invalid column %q", c)
		}
		columns = append(columns, c)
	}
	sort.Strings(columns)

	args := make([]any, 0, len(columns)+1)
	args = append(args, nil)
	for _, c := range columns {
		args = append(args, row[c])
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(append([]string{idColumn}, columns...), ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)+1), ", "))
	return db.Statement{SQL: sql, Args: args}, nil
}
