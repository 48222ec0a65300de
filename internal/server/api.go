package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"psadtagent/internal/artifact"
	"psadtagent/internal/generator"
	"psadtagent/internal/installer"
	"psadtagent/internal/jobs"
	"psadtagent/internal/pkgstore"
)

// maxUpload bounds installer uploads.
const maxUpload = 2 << 30

type Deps struct {
	Generator jobs.Generator
	Linter    generator.Validator
	Packages  pkgstore.Store
	// Artifacts is optional.
	Artifacts artifact.Store
	Jobs      *jobs.Runner
	UploadDir string
	// Provider is reported by /v1/status.
	Provider string
	APIKey   string
	Logger   *zap.Logger
}

type API struct {
	gen       jobs.Generator
	linter    generator.Validator
	packages  pkgstore.Store
	artifacts artifact.Store
	jobs      *jobs.Runner
	uploadDir string
	provider  string
	logger    *zap.Logger
}

func NewAPI(d Deps) *API {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.UploadDir == "" {
		d.UploadDir = "uploads"
	}
	return &API{
		gen:       d.Generator,
		linter:    d.Linter,
		packages:  d.Packages,
		artifacts: d.Artifacts,
		jobs:      d.Jobs,
		uploadDir: d.UploadDir,
		provider:  d.Provider,
		logger:    d.Logger,
	}
}

// NewHandler wires every route. /healthz and /v1/status stay open; the rest
// require the API key when one is configured.
func NewHandler(d Deps) http.Handler {
	a := NewAPI(d)
	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/generate", a.handleGenerate)
	protected.HandleFunc("POST /v1/validate", a.handleValidate)
	protected.HandleFunc("POST /v1/packages", a.handleCreatePackage)
	protected.HandleFunc("GET /v1/packages", a.handleListPackages)
	protected.HandleFunc("GET /v1/packages/{id}", a.handleGetPackage)
	protected.HandleFunc("PUT /v1/packages/{id}", a.handleUpdatePackage)
	protected.HandleFunc("DELETE /v1/packages/{id}", a.handleDeletePackage)
	protected.HandleFunc("GET /v1/packages/{id}/script", a.handleGetScript)
	protected.HandleFunc("GET /v1/packages/{id}/watch", a.handleWatch)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /v1/status", a.handleStatus)
	mux.Handle("/", RequireAPIKey(d.APIKey, a.logger, protected))
	return CORS(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"services": map[string]string{
			"script_generator":  "ready",
			"llm_provider":      a.provider,
			"compliance_linter": "ready",
		},
		"capabilities": map[string]bool{
			"script_generation": true,
			"script_validation": true,
			"package_jobs":      a.jobs != nil,
		},
	})
}

type generateRequest struct {
	InstallerMetadata *installer.Metadata `json:"installer_metadata"`
	UserNotes         string              `json:"user_notes"`
	SaveToPackage     *bool               `json:"save_to_package"`
}

type generateResponse struct {
	ScriptContent string             `json:"script_content"`
	Score         int                `json:"validation_score"`
	Issues        []string           `json:"issues"`
	Suggestions   []string           `json:"suggestions"`
	RAGSources    []string           `json:"rag_sources"`
	Metadata      generator.Metadata `json:"metadata"`
	PackageID     string             `json:"package_id,omitempty"`
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request data: "+err.Error())
		return
	}
	if req.InstallerMetadata == nil {
		writeError(w, http.StatusBadRequest, "installer_metadata is required")
		return
	}
	meta := *req.InstallerMetadata
	if err := meta.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := a.logger.With(zap.String("name", meta.Name), zap.String("version", meta.Version))
	log.Info("generating script")
	res, err := a.gen.Generate(r.Context(), meta, req.UserNotes)
	switch {
	case errors.Is(err, generator.ErrNoResult):
		log.Error("critical script generation failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Critical script generation failure")
		return
	case errors.Is(err, installer.ErrInvalidMetadata):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Error("script generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Script generation failed: "+err.Error())
		return
	}

	out := generateResponse{
		ScriptContent: res.ScriptContent,
		Score:         res.Score,
		Issues:        res.Issues,
		Suggestions:   res.Suggestions,
		RAGSources:    res.RAGSources,
		Metadata:      res.Metadata,
	}
	if req.SaveToPackage == nil || *req.SaveToPackage {
		out.PackageID = a.saveGenerated(r, meta, req.UserNotes, res)
	}
	log.Info("script generation completed", zap.Int("score", res.Score))
	writeJSON(w, http.StatusOK, out)
}

// saveGenerated records a completed package. Failures are logged and the
// response goes out without a package id.
func (a *API) saveGenerated(r *http.Request, meta installer.Metadata, notes string, res *generator.Result) string {
	pkg, err := a.packages.Create(r.Context(), pkgstore.Package{
		Name:          meta.Name,
		Version:       meta.Version,
		InstallerPath: meta.InstallerPath,
		ScriptText:    res.ScriptContent,
		UserNotes:     notes,
		Status:        pkgstore.StatusCompleted,
		Progress:      100,
		StatusMessage: "Completed",
	})
	if err != nil {
		a.logger.Error("saving package", zap.Error(err))
		return ""
	}
	if a.artifacts != nil {
		if err := a.artifacts.Put(r.Context(), pkg.ID, artifact.ScriptName, []byte(res.ScriptContent)); err != nil {
			a.logger.Error("saving script artifact", zap.String("package_id", pkg.ID), zap.Error(err))
		}
	}
	a.logger.Info("saved generated script", zap.String("package_id", pkg.ID))
	return pkg.ID
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScriptContent *string `json:"script_content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScriptContent == nil {
		writeError(w, http.StatusBadRequest, "script_content is required")
		return
	}
	if strings.TrimSpace(*req.ScriptContent) == "" {
		writeError(w, http.StatusBadRequest, "script_content cannot be empty")
		return
	}
	res := a.linter.Validate(*req.ScriptContent)
	a.logger.Info("script validation completed", zap.Int("score", res.Score))
	writeJSON(w, http.StatusOK, res)
}
