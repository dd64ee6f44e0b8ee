package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/procuresight/internal/assess"
	"github.com/opensource-finance/procuresight/internal/bus"
	"github.com/opensource-finance/procuresight/internal/comparable"
	"github.com/opensource-finance/procuresight/internal/domain"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	assessor *assess.Assessor
	source   domain.Source
	cache    domain.Cache
	bus      domain.EventBus
	ttl      time.Duration
	version  string
}

// Deps are the collaborators a Handler serves from. Source, Cache and Bus may
// be nil; the endpoints that need them answer 503.
type Deps struct {
	Assessor *assess.Assessor
	Source   domain.Source
	Cache    domain.Cache
	Bus      domain.EventBus
	CacheTTL time.Duration
	Version  string
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	if d.CacheTTL <= 0 {
		d.CacheTTL = 10 * time.Minute
	}
	return &Handler{
		assessor: d.Assessor,
		source:   d.Source,
		cache:    d.Cache,
		bus:      d.Bus,
		ttl:      d.CacheTTL,
		version:  d.Version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.source != nil {
		if err := h.source.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"version":  h.version,
		"snapshot": h.assessor.Version(),
	})
}

// Ready reports whether a snapshot is loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	snap := h.assessor.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":    true,
		"snapshot": snap.Version,
		"records":  snap.Len(),
	})
}

// GetAssessment returns the full assessment of a record, served from cache
// when the current snapshot version has already been assessed.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	version := h.assessor.Version()

	if h.cache != nil && version != "" {
		cached, err := h.cache.GetAssessment(ctx, version, id)
		if err != nil {
			slog.Warn("cache read failed", "record_id", id, "error", err)
		}
		if cached != nil {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	as, err := h.assessor.Assess(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.SetAssessment(ctx, as.Metadata.SnapshotVersion, as, h.ttl); err != nil {
			slog.Warn("cache write failed", "record_id", id, "error", err)
		}
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, as)
}

// RequestAssessment queues an assessment on the event bus and returns 202.
func (h *Handler) RequestAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}
	snap := h.assessor.Snapshot()
	if snap == nil {
		writeError(w, assess.ErrNoSnapshot)
		return
	}
	if snap.Record(id) == nil {
		writeError(w, fmt.Errorf("%w: %s", domain.ErrNoData, id))
		return
	}

	req := domain.AssessmentRequest{RecordID: id, TraceID: GetTraceID(ctx)}
	payload, err := json.Marshal(req)
	if err != nil {
		slog.Error("failed to encode assessment request", "record_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode assessment request",
		})
		return
	}
	if err := h.bus.Publish(ctx, domain.TopicAssessmentRequested, payload); err != nil {
		slog.Error("failed to publish assessment request", "record_id", id, "error", err)
		msg := "failed to queue assessment"
		if errors.Is(err, bus.ErrBufferFull) {
			msg = "assessment queue full, retry later"
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": msg,
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "queued",
		"recordId": id,
		"traceId":  req.TraceID,
	})
}

// GetContributions returns the top feature contributions. ?top=N overrides
// the configured count.
func (h *Handler) GetContributions(w http.ResponseWriter, r *http.Request) {
	top, err := intParam(r, "top")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	out, err := h.assessor.Contributions(r.Context(), chi.URLParam(r, "id"), top)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contributions": out,
		"count":         len(out),
	})
}

// GetFindings returns the compliance findings of a record.
func (h *Handler) GetFindings(w http.ResponseWriter, r *http.Request) {
	out, err := h.assessor.Findings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"findings": out,
		"count":    len(out),
	})
}

// GetQuality returns the quality rubric of a record.
func (h *Handler) GetQuality(w http.ResponseWriter, r *http.Request) {
	out, err := h.assessor.Quality(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetActions returns the recommended actions for a record.
func (h *Handler) GetActions(w http.ResponseWriter, r *http.Request) {
	out, err := h.assessor.Actions(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": out,
		"count":   len(out),
	})
}

// GetComparables returns records similar to an existing one.
func (h *Handler) GetComparables(w http.ResponseWriter, r *http.Request) {
	out, err := h.assessor.Comparables(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": out,
		"count":   len(out),
	})
}

// SearchComparables runs an ad-hoc query: ?sector=&procedure=&value=&limit=.
func (h *Handler) SearchComparables(w http.ResponseWriter, r *http.Request) {
	q, err := comparableQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	out, err := h.assessor.FindComparables(q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": out,
		"count":   len(out),
	})
}

func comparableQuery(v url.Values) (comparable.Query, error) {
	var q comparable.Query
	var err error
	if q.Sector, err = domain.ParseSector(v.Get("sector")); err != nil {
		return q, err
	}
	if q.Procedure, err = domain.ParseProcedure(v.Get("procedure")); err != nil {
		return q, err
	}
	if s := v.Get("value"); s != "" {
		value, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, fmt.Errorf("invalid value %q", s)
		}
		q.Value = &value
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit < 0 {
			return q, fmt.Errorf("invalid limit %q", s)
		}
	}
	return q, nil
}

// GetSectorBenchmark aggregates one sector. An empty sample is 422.
func (h *Handler) GetSectorBenchmark(w http.ResponseWriter, r *http.Request) {
	b, err := h.assessor.SectorBenchmark(chi.URLParam(r, "sector"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !b.Sufficient() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "insufficient sample for sector " + string(b.Sector),
		})
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetBuyerBenchmark compares a buyer with ?sector=.
func (h *Handler) GetBuyerBenchmark(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid buyer name"})
		return
	}
	sector := r.URL.Query().Get("sector")
	if sector == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sector is required"})
		return
	}

	cmp, err := h.assessor.BuyerBenchmark(name, sector)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// ListRules returns the built-in catalog and the loaded custom watch rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	engine := h.assessor.Engine()
	if engine == nil {
		writeError(w, assess.ErrNoSnapshot)
		return
	}

	builtin := engine.Catalog().Rules()
	custom := engine.CustomRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  builtin,
		"custom": custom,
		"count":  len(builtin) + len(custom),
	})
}

// ValidateRule compiles a custom watch rule without loading it.
func (h *Handler) ValidateRule(w http.ResponseWriter, r *http.Request) {
	engine := h.assessor.Engine()
	if engine == nil {
		writeError(w, assess.ErrNoSnapshot)
		return
	}

	var rule domain.CustomRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// Reload re-reads the snapshot from the source and swaps it in. Cached
// assessments of the previous version are purged.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "snapshot source not available",
		})
		return
	}

	previous := h.assessor.Version()
	snap, err := h.source.LoadSnapshot(ctx)
	if err != nil {
		slog.Error("failed to load snapshot", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load snapshot: " + err.Error(),
		})
		return
	}
	if err := h.assessor.Load(snap); err != nil {
		slog.Error("failed to apply snapshot", "version", snap.Version, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to apply snapshot: " + err.Error(),
		})
		return
	}

	if h.cache != nil && previous != "" && previous != snap.Version {
		if err := h.cache.PurgeVersion(ctx, previous); err != nil {
			slog.Warn("failed to purge cached assessments", "version", previous, "error", err)
		}
	}

	slog.Info("snapshot reloaded", "previous", previous, "version", snap.Version, "records", snap.Len())
	writeJSON(w, http.StatusOK, map[string]any{
		"previousVersion": previous,
		"version":         snap.Version,
		"records":         snap.Len(),
	})
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

// writeError maps engine errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNoData):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownCategory):
		status = http.StatusBadRequest
	case errors.Is(err, assess.ErrNoSnapshot):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
