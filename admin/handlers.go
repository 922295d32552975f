package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/maxpert/bitseq/db"
	"github.com/maxpert/bitseq/ddl"
	"github.com/maxpert/bitseq/sequence"
	"github.com/rs/zerolog/log"
)

// maxNextCount caps the values one admin next call may allocate
const maxNextCount = 1000

// AdminHandlers serves the sequence admin API
type AdminHandlers struct {
	registry  *sequence.Registry
	inspector ddl.Inspector
	entities  []ddl.EntityTable
	batcher   *db.StatementBatcher
}

// NewAdminHandlers creates a new AdminHandlers instance. inspector may be nil,
// in which case only create-mode DDL previews are available. batcher may be
// nil, which disables row inserts.
func NewAdminHandlers(registry *sequence.Registry, inspector ddl.Inspector, entities []ddl.EntityTable, batcher *db.StatementBatcher) *AdminHandlers {
	return &AdminHandlers{
		registry:  registry,
		inspector: inspector,
		entities:  entities,
		batcher:   batcher,
	}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// writeAllocationError maps an allocation failure to an HTTP status
func writeAllocationError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sequence.ErrSequenceUnknown):
		status = http.StatusNotFound
	case errors.Is(err, sequence.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, sequence.ErrTransportFailure), errors.Is(err, sequence.ErrEmulationRoundTripFailure):
		status = http.StatusBadGateway
	case errors.Is(err, sequence.ErrRegistryClosed):
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error":  err.Error(),
		"reason": sequence.ReasonOf(err),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// parseCount parses the count parameter, defaulting to 1
func parseCount(r *http.Request) (int, error) {
	countStr := r.URL.Query().Get("count")
	if countStr == "" {
		return 1, nil
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid count parameter: %w", err)
	}

	if count < 1 {
		return 0, fmt.Errorf("count must be positive")
	}

	if count > maxNextCount {
		return 0, fmt.Errorf("count cannot exceed %d", maxNextCount)
	}

	return count, nil
}
