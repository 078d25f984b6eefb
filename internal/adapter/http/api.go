package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"github.com/couchcryptid/outbreak-lookup-service/internal/lookup"
	"github.com/couchcryptid/outbreak-lookup-service/internal/pipeline"
)

// AdminHeader carries the caller identity checked against the admin allow-list.
const AdminHeader = "X-Admin"

// Lookuper answers location queries.
type Lookuper interface {
	Lookup(ctx context.Context, text string) (lookup.Answer, error)
	LookupMany(ctx context.Context, texts []string) (lookup.Comparison, error)
	SourcesDescription() string
}

// Refresher exposes the scheduler's manual trigger and state.
type Refresher interface {
	Refresh(ctx context.Context) error
	Status() pipeline.Status
}

// AdminChecker reports whether a caller may trigger a refresh.
type AdminChecker interface {
	IsAdmin(name string) bool
}

// API serves the /v1 lookup routes.
type API struct {
	lookups   Lookuper
	refresher Refresher
	admins    AdminChecker
	logger    *slog.Logger
	inflight  sync.WaitGroup
}

// NewAPI creates the lookup API handlers.
func NewAPI(lookups Lookuper, refresher Refresher, admins AdminChecker, logger *slog.Logger) *API {
	return &API{lookups: lookups, refresher: refresher, admins: admins, logger: logger}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/cases", a.handleCases)
	mux.HandleFunc("GET /v1/compare", a.handleCompare)
	mux.HandleFunc("GET /v1/sources", a.handleSources)
	mux.HandleFunc("GET /v1/status", a.handleStatus)
	mux.HandleFunc("POST /v1/refresh", a.handleRefresh)
}

func (a *API) wait() {
	a.inflight.Wait()
}

// matchView is a match plus its derived figures.
type matchView struct {
	domain.Match
	Summary domain.Summary `json:"summary"`
}

func views(matches []domain.Match) []matchView {
	out := make([]matchView, len(matches))
	for i, m := range matches {
		out[i] = matchView{Match: m, Summary: domain.Summarize(m.Metrics)}
	}
	return out
}

type casesResponse struct {
	Outcome    lookup.Outcome `json:"outcome"`
	Query      string         `json:"query"`
	Stage      string         `json:"stage"`
	Count      int            `json:"count"`
	Matches    []matchView    `json:"matches,omitempty"`
	SnapshotID string         `json:"snapshot_id"`
	Warning    string         `json:"warning,omitempty"`
	Message    string         `json:"message,omitempty"`
}

type errorResponse struct {
	Error      string   `json:"error"`
	Query      string   `json:"query,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
	Count      int      `json:"count,omitempty"`
}

func (a *API) handleCases(w http.ResponseWriter, r *http.Request) {
	answer, err := a.lookups.Lookup(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	resp := casesResponse{
		Outcome:    answer.Outcome,
		Query:      answer.Query,
		Stage:      answer.Stage,
		Count:      answer.Count,
		Matches:    views(answer.Matches),
		SnapshotID: answer.SnapshotID,
		Warning:    answer.Warning,
	}

	status := http.StatusOK
	switch answer.Outcome {
	case lookup.OutcomeNotFound:
		status = http.StatusNotFound
		resp.Message = "no location matches " + answer.Query
	case lookup.OutcomeAmbiguous:
		status = http.StatusConflict
		resp.Message = "several locations match, please pick one"
	case lookup.OutcomeTooMany:
		status = http.StatusUnprocessableEntity
		resp.Message = "too many locations match, please be more specific"
	}
	writeJSON(w, status, resp)
}

type compareResponse struct {
	Matches    []matchView `json:"matches"`
	SnapshotID string      `json:"snapshot_id"`
	Warning    string      `json:"warning,omitempty"`
}

func (a *API) handleCompare(w http.ResponseWriter, r *http.Request) {
	texts, err := compareLocations(r.URL.RawQuery)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed locations parameter"})
		return
	}
	cmp, err := a.lookups.LookupMany(r.Context(), texts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, compareResponse{
		Matches:    views(cmp.Matches),
		SnapshotID: cmp.SnapshotID,
		Warning:    cmp.Warning,
	})
}

// compareLocations collects every locations parameter, split on ";". The raw
// query is parsed by hand because net/url drops pairs holding a bare ";".
func compareLocations(rawQuery string) ([]string, error) {
	var texts []string
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if key != "locations" {
			continue
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, err
		}
		texts = append(texts, strings.Split(v, ";")...)
	}
	return texts, nil
}

func (a *API) handleSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"sources": a.lookups.SourcesDescription()})
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.refresher.Status())
}

// handleRefresh starts a rebuild in the background; it may outlive the request.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get(AdminHeader)
	if !a.admins.IsAdmin(caller) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not an admin"})
		return
	}

	ctx := context.WithoutCancel(r.Context())
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		if err := a.refresher.Refresh(ctx); err != nil {
			a.logger.Warn("manual refresh failed", "admin", caller, "error", err)
			return
		}
		a.logger.Info("manual refresh complete", "admin", caller)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var (
		notFound  *lookup.NotFoundError
		ambiguous *lookup.AmbiguousError
		tooMany   *lookup.TooManyMatchesError
	)
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Query: notFound.Query})
	case errors.As(err, &ambiguous):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Query: ambiguous.Query, Candidates: ambiguous.Candidates})
	case errors.As(err, &tooMany):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Query: tooMany.Query, Count: tooMany.Count})
	case errors.Is(err, lookup.ErrNoLocations):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, lookup.ErrNoSnapshot):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		a.logger.Error("lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
