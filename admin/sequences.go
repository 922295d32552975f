package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/bitseq/sequence"
	"github.com/rs/zerolog/log"
)

type sequenceView struct {
	Name            string                 `json:"name"`
	FetchSize       int                    `json:"fetch_size"`
	StartingCounter int64                  `json:"starting_counter"`
	Exclusion       string                 `json:"exclusion,omitempty"`
	Emulation       sequence.EmulationMode `json:"emulation"`
	Stats           *sequence.Stats        `json:"stats,omitempty"`
}

func viewOf(cfg sequence.Config, stats map[string]sequence.Stats) sequenceView {
	v := sequenceView{
		Name:            cfg.Name,
		FetchSize:       cfg.FetchSize,
		StartingCounter: cfg.StartingCounter,
		Emulation:       cfg.Emulation,
	}
	if cfg.Exclusion != nil {
		v.Exclusion = cfg.Exclusion.String()
	}
	if s, ok := stats[cfg.Name]; ok {
		v.Stats = &s
	}
	return v
}

func (h *AdminHandlers) statsByName() map[string]sequence.Stats {
	all := h.registry.Stats()
	stats := make(map[string]sequence.Stats, len(all))
	for _, s := range all {
		stats[s.Name] = s
	}
	return stats
}

// handleListSequences returns every configured sequence with the stats of its allocator, if any
func (h *AdminHandlers) handleListSequences(w http.ResponseWriter, r *http.Request) {
	stats := h.statsByName()
	names := h.registry.Names()
	views := make([]sequenceView, 0, len(names))
	for _, name := range names {
		cfg, ok := h.registry.Lookup(name)
		if !ok {
			continue
		}
		views = append(views, viewOf(cfg, stats))
	}
	writeJSONResponse(w, views)
}

// handleGetSequence returns one sequence
func (h *AdminHandlers) handleGetSequence(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cfg, ok := h.registry.Lookup(name)
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "sequence '"+name+"' not found")
		return
	}
	writeJSONResponse(w, viewOf(cfg, h.statsByName()))
}

// handleNext allocates count values from a sequence
func (h *AdminHandlers) handleNext(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	count, err := parseCount(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	values := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		v, err := h.registry.Next(r.Context(), name)
		if err != nil {
			writeAllocationError(w, err)
			return
		}
		values = append(values, v)
	}

	writeJSONResponse(w, map[string]interface{}{
		"sequence": name,
		"values":   values,
	})
}

type nativeSwitch struct {
	Enabled bool `json:"enabled"`
}

// handleGetNative returns the native sequence switch
func (h *AdminHandlers) handleGetNative(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, nativeSwitch{Enabled: h.registry.NativeEnabled()})
}

// handleSetNative flips the native sequence switch. Only allocators created
// afterwards observe the new value.
func (h *AdminHandlers) handleSetNative(w http.ResponseWriter, r *http.Request) {
	var body nativeSwitch
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	h.registry.SetNativeEnabled(body.Enabled)
	log.Info().Bool("native_enabled", body.Enabled).Msg("Native sequence switch changed via admin API")
	writeJSONResponse(w, nativeSwitch{Enabled: h.registry.NativeEnabled()})
}
