package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/evidence"
	"github.com/sells-group/pql-agent/internal/llm"
	"github.com/sells-group/pql-agent/internal/model"
	"github.com/sells-group/pql-agent/internal/pipeline"
	"github.com/sells-group/pql-agent/internal/qualify"
)

var servePort int

// leadPipeline is the pipeline surface the HTTP handlers drive.
type leadPipeline interface {
	RunBatch(ctx context.Context, leads []model.Lead, threshold *int) (*pipeline.BatchResult, error)
	ProcessStored(ctx context.Context, pqlID string, threshold *int) (*pipeline.LeadResult, error)
	ResearchStored(ctx context.Context, pqlID string) (*model.Enrichment, error)
	RegenerateDraft(ctx context.Context, pqlID string, override map[string]any) (*model.EmailDraft, error)
}

// evidenceService backs the web navigation endpoints.
type evidenceService interface {
	Gather(ctx context.Context, subject string, hintURL *string) model.EvidenceBundle
	TopLinks(ctx context.Context, query string, limit int) model.TopLinks
}

// apiDeps are the collaborators of the HTTP API.
type apiDeps struct {
	Pipeline       leadPipeline
	Evidence       evidenceService
	Completer      llm.Completer
	Provider       string
	Model          string
	AllowedOrigins []string
}

type api struct {
	deps apiDeps
}

// researchResponse keeps the research endpoint's historical field name.
type researchResponse struct {
	PQLID          string           `json:"pql_id"`
	CompanyInfo    map[string]any   `json:"company_info"`
	KeyContacts    []map[string]any `json:"key_contacts"`
	ResearchSource string           `json:"research_source"`
}

const (
	llmTestSystem = "You are a test assistant. Respond with a very short hello and say that the system is live and working."
	llmTestUser   = "Test the PQL agents API. Are we live?"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		router := newRouter(apiDeps{
			Pipeline:       env.Pipeline,
			Evidence:       env.Gatherer,
			Completer:      env.Completer,
			Provider:       cfg.LLM.Provider,
			Model:          modelName(cfg),
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler until ctx is cancelled, then shuts down.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// newRouter wires every route of the API.
func newRouter(deps apiDeps) http.Handler {
	a := &api{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", a.health)
	r.Get("/llm-test", a.llmTest)

	r.Post("/qualify", a.qualify)
	r.Post("/research", a.research)
	r.Route("/pqls/{id}", func(r chi.Router) {
		r.Post("/process", a.process)
		r.Post("/draft", a.draft)
	})

	r.Get("/web_navigate", a.webNavigate)
	r.Get("/web_nav_google_search", a.webNavGoogleSearch)

	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"provider": a.deps.Provider,
		"model":    a.deps.Model,
	})
}

func (a *api) llmTest(w http.ResponseWriter, r *http.Request) {
	content, err := a.deps.Completer.Complete(r.Context(), llmTestSystem, llmTestUser)
	if err != nil {
		zap.L().Error("llm test failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "llm request failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"raw": content})
}

func (a *api) qualify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PQLs      []map[string]any `json:"pqls"`
		Threshold any              `json:"qualification_threshold"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	leads := make([]model.Lead, 0, len(req.PQLs))
	for i, row := range req.PQLs {
		lead := model.LeadFromRow(row)
		if lead.ID == "" || lead.Email == "" {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("pqls[%d]: id and email are required", i))
			return
		}
		leads = append(leads, lead)
	}

	batch, err := a.deps.Pipeline.RunBatch(r.Context(), leads, qualify.ParseThreshold(req.Threshold))
	if err != nil {
		zap.L().Error("qualify batch aborted", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "batch aborted")
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

func (a *api) research(w http.ResponseWriter, r *http.Request) {
	pqlID := r.URL.Query().Get("pql_id")
	if pqlID == "" {
		respondError(w, http.StatusBadRequest, "pql_id is required")
		return
	}

	e, err := a.deps.Pipeline.ResearchStored(r.Context(), pqlID)
	if err != nil {
		a.pipelineError(w, pqlID, err)
		return
	}
	respondJSON(w, http.StatusOK, researchResponse{
		PQLID:          e.PQLID,
		CompanyInfo:    e.CompanyInfo,
		KeyContacts:    e.KeyContacts,
		ResearchSource: e.EnrichmentSource,
	})
}

func (a *api) process(w http.ResponseWriter, r *http.Request) {
	pqlID := chi.URLParam(r, "id")
	var req struct {
		Threshold any `json:"qualification_threshold"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := a.deps.Pipeline.ProcessStored(r.Context(), pqlID, qualify.ParseThreshold(req.Threshold))
	if err != nil {
		a.pipelineError(w, pqlID, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (a *api) draft(w http.ResponseWriter, r *http.Request) {
	pqlID := chi.URLParam(r, "id")
	var req struct {
		OverrideContext map[string]any `json:"override_context"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := a.deps.Pipeline.RegenerateDraft(r.Context(), pqlID, req.OverrideContext)
	if err != nil {
		a.pipelineError(w, pqlID, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (a *api) webNavigate(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		respondError(w, http.StatusBadRequest, "subject is required")
		return
	}
	var hint *string
	if h := r.URL.Query().Get("website_hint_url"); h != "" {
		hint = &h
	}
	respondJSON(w, http.StatusOK, a.deps.Evidence.Gather(r.Context(), subject, hint))
}

func (a *api) webNavGoogleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	limit := evidence.DefaultLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = l
	}
	respondJSON(w, http.StatusOK, a.deps.Evidence.TopLinks(r.Context(), query, limit))
}

func (a *api) pipelineError(w http.ResponseWriter, pqlID string, err error) {
	if errors.Is(err, pipeline.ErrLeadNotFound) {
		respondError(w, http.StatusNotFound, "PQL not found")
		return
	}
	zap.L().Error("pipeline request failed", zap.String("pql_id", pqlID), zap.Error(err))
	respondError(w, http.StatusInternalServerError, err.Error())
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
