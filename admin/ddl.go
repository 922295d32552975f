package admin

import (
	"net/http"

	"github.com/maxpert/bitseq/ddl"
)

// handleDDLPreview renders the DDL the registry would need without applying it
func (h *AdminHandlers) handleDDLPreview(w http.ResponseWriter, r *http.Request) {
	modeStr := r.URL.Query().Get("mode")
	if modeStr == "" {
		modeStr = ddl.ModeCreate.String()
	}
	mode, err := ddl.ParseMode(modeStr)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if mode == ddl.ModeUpdate && h.inspector == nil {
		writeErrorResponse(w, http.StatusBadRequest, "update preview needs a schema inspector")
		return
	}

	stmts, err := ddl.NewSynthesizer(mode, h.inspector).Synthesize(r.Context(), h.registry.Descriptors(), h.entities)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSONResponse(w, map[string]interface{}{
		"mode":       mode.String(),
		"statements": ddl.SQLs(stmts),
	})
}
