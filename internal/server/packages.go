package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"psadtagent/internal/artifact"
	"psadtagent/internal/installer"
	"psadtagent/internal/pkgstore"
)

const defaultPageSize = 50

var (
	unsafeChars = regexp.MustCompile(`[/\\:*?"<>|\s]`)
	dotRuns     = regexp.MustCompile(`\.\.+`)
)

// SecureFilename reduces an uploaded filename to a safe single path
// element.
func SecureFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unnamed_file"
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = dotRuns.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "._")
	if len(name) > 100 {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ext[:10]
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if len(stem) > 90 {
			stem = stem[:90]
		}
		name = stem + ext
	}
	if name == "" {
		return "unnamed_file"
	}
	return name
}

func (a *API) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		a.createFromUpload(w, r)
		return
	}
	a.createFromJSON(w, r)
}

func (a *API) createFromUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("installer")
	if err != nil {
		writeError(w, http.StatusBadRequest, "installer file is required")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}

	id := uuid.NewString()
	safe := SecureFilename(header.Filename)
	path, err := a.saveUpload(id, safe, file)
	if err != nil {
		a.logger.Error("saving upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store installer")
		return
	}

	pkg, err := a.packages.Create(r.Context(), pkgstore.Package{
		ID:            id,
		Name:          firstNonBlank(r.FormValue("name"), installer.NameFromFilename(safe)),
		Version:       firstNonBlank(r.FormValue("version"), installer.VersionFromFilename(safe)),
		InstallerPath: path,
		UserNotes:     r.FormValue("notes"),
	})
	if err != nil {
		_ = os.Remove(path)
		a.storeError(w, err)
		return
	}
	a.logger.Info("created package from upload", zap.String("package_id", pkg.ID), zap.String("file", safe))
	a.startJob(w, pkg)
}

func (a *API) saveUpload(id, name string, src io.Reader) (string, error) {
	if err := os.MkdirAll(a.uploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(a.uploadDir, id+"_"+name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	return path, f.Close()
}

type packageRequest struct {
	Name          *string `json:"name"`
	Version       *string `json:"version"`
	InstallerPath *string `json:"installer_path"`
	ScriptText    *string `json:"script_text"`
	UserNotes     *string `json:"user_notes"`
	// Generate starts a background generation after create.
	Generate bool `json:"generate"`
}

func (a *API) createFromJSON(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	pkg, err := a.packages.Create(r.Context(), applyRequest(pkgstore.Package{}, req))
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.logger.Info("created package", zap.String("package_id", pkg.ID), zap.String("name", pkg.Name))
	if req.Generate {
		a.startJob(w, pkg)
		return
	}
	writeJSON(w, http.StatusCreated, pkg)
}

func (a *API) startJob(w http.ResponseWriter, pkg pkgstore.Package) {
	if a.jobs == nil {
		writeJSON(w, http.StatusCreated, pkg)
		return
	}
	if err := a.jobs.Submit(pkg.ID); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, pkg)
}

func applyRequest(p pkgstore.Package, req packageRequest) pkgstore.Package {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.Name, req.Name)
	set(&p.Version, req.Version)
	set(&p.InstallerPath, req.InstallerPath)
	set(&p.ScriptText, req.ScriptText)
	set(&p.UserNotes, req.UserNotes)
	return p
}

func (a *API) handleListPackages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pkgs, err := a.packages.List(r.Context(), limit, offset)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"packages": pkgs,
		"total":    len(pkgs),
		"offset":   offset,
		"limit":    limit,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return v, nil
}

func (a *API) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := a.packages.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

func (a *API) handleUpdatePackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	pkg, err := a.packages.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	pkg = applyRequest(pkg, req)
	if strings.TrimSpace(pkg.Name) == "" || strings.TrimSpace(pkg.Version) == "" {
		writeError(w, http.StatusBadRequest, "name and version cannot be empty")
		return
	}
	pkg, err = a.packages.Update(r.Context(), pkg)
	if err != nil {
		a.storeError(w, err)
		return
	}
	if a.jobs != nil {
		a.jobs.Notify(pkg.ID)
	}
	a.logger.Info("updated package", zap.String("package_id", pkg.ID))
	writeJSON(w, http.StatusOK, pkg)
}

func (a *API) handleDeletePackage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pkg, err := a.packages.Get(r.Context(), id)
	if err != nil {
		a.storeError(w, err)
		return
	}
	if err := a.packages.Delete(r.Context(), id); err != nil {
		a.storeError(w, err)
		return
	}
	if a.artifacts != nil {
		if err := a.artifacts.Delete(r.Context(), id); err != nil {
			a.logger.Warn("deleting artifacts", zap.String("package_id", id), zap.Error(err))
		}
	}
	if pkg.InstallerPath != "" && strings.HasPrefix(filepath.Clean(pkg.InstallerPath), filepath.Clean(a.uploadDir)+string(filepath.Separator)) {
		if err := os.Remove(pkg.InstallerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("removing upload", zap.String("path", pkg.InstallerPath), zap.Error(err))
		}
	}
	if a.jobs != nil {
		a.jobs.Notify(id)
	}
	a.logger.Info("deleted package", zap.String("package_id", id), zap.String("name", pkg.Name))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Package deleted successfully"})
}

// handleGetScript serves the stored script. With ?presign=true it returns a
// time-limited download URL instead when the artifact store supports one.
func (a *API) handleGetScript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pkg, err := a.packages.Get(r.Context(), id)
	if err != nil {
		a.storeError(w, err)
		return
	}
	if a.artifacts != nil && r.URL.Query().Get("presign") == "true" {
		url, err := a.artifacts.GetURL(r.Context(), id, artifact.ScriptName)
		if err == nil && url != "" {
			writeJSON(w, http.StatusOK, map[string]string{"url": url})
			return
		}
	}

	body := []byte(pkg.ScriptText)
	if a.artifacts != nil {
		stored, err := a.artifacts.Get(r.Context(), id, artifact.ScriptName)
		switch {
		case err == nil:
			body = stored
		case !errors.Is(err, artifact.ErrNotFound):
			a.logger.Warn("reading script artifact", zap.String("package_id", id), zap.Error(err))
		}
	}
	if len(body) == 0 {
		writeError(w, http.StatusNotFound, "Script not generated yet")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.ScriptName+`"`)
	_, _ = w.Write(body)
}

func (a *API) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "Package not found")
	case errors.Is(err, pkgstore.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error("package store", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
