package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/packforge/packd/pkg/langpack"
	"github.com/packforge/packd/pkg/manifest"
	"github.com/packforge/packd/pkg/publish"
)

// packResponse is a pack record plus its derived URLs.
type packResponse struct {
	*langpack.LangPack
	DownloadURL string `json:"download_url"`
	MinifestURL string `json:"minifest_url,omitempty"`
}

func (s *Server) packJSON(pack *langpack.LangPack) packResponse {
	return packResponse{
		LangPack:    pack,
		DownloadURL: pack.DownloadURL(s.baseURL),
		MinifestURL: pack.MinifestURL(s.baseURL),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleLangpacks serves the collection endpoint: POST uploads a new pack,
// GET lists existing ones.
func (s *Server) handleLangpacks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.upload(w, r, "")
	case http.MethodGet:
		s.list(w, r)
	default:
		WriteMethodNotAllowed(w)
	}
}

// handleLangpack serves one pack: GET returns it, PUT re-publishes a new
// version, PATCH edits the active flag, DELETE removes it.
func (s *Server) handleLangpack(w http.ResponseWriter, r *http.Request) {
	uuid := strings.TrimPrefix(r.URL.Path, "/api/v1/langpacks/")
	if uuid == "" || strings.Contains(uuid, "/") {
		WriteNotFound(w, "No such language pack")
		return
	}

	switch r.Method {
	case http.MethodGet:
		pack, err := s.packs.Get(r.Context(), uuid)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.packJSON(pack))
	case http.MethodPut:
		s.upload(w, r, uuid)
	case http.MethodPatch:
		s.patchActive(w, r, uuid)
	case http.MethodDelete:
		if err := s.publisher.Remove(r.Context(), uuid); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		WriteMethodNotAllowed(w)
	}
}

// upload reads the raw archive body and runs it through the publication
// pipeline. packUUID is empty for new packs.
func (s *Server) upload(w http.ResponseWriter, r *http.Request, packUUID string) {
	r.Body = http.MaxBytesReader(w, r.Body, manifest.MaxPackageSize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
				fmt.Sprintf("Uploads are limited to %d bytes", manifest.MaxPackageSize))
			return
		}
		WriteBadRequest(w, "Could not read upload body")
		return
	}

	pack, err := s.publisher.Upload(r.Context(), publish.UploadRequest{
		PackUUID: packUUID,
		Data:     data,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if packUUID != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, s.packJSON(pack))
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	filter := langpack.ListFilter{
		Locale:     r.URL.Query().Get("lang"),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	packs, err := s.packs.List(r.Context(), filter)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	out := make([]packResponse, 0, len(packs))
	for _, p := range packs {
		out = append(out, s.packJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"langpacks": out})
}

func (s *Server) patchActive(w http.ResponseWriter, r *http.Request, uuid string) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Active == nil {
		WriteBadRequest(w, "Missing required field: active")
		return
	}

	pack, err := s.publisher.SetActive(r.Context(), uuid, *req.Active)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.packJSON(pack))
}

// handleMinifest serves GET /langpacks/{uuid}/manifest.webapp with ETag
// based conditional responses.
func (s *Server) handleMinifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		WriteMethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/langpacks/")
	uuid, file, ok := strings.Cut(rest, "/")
	if !ok || file != "manifest.webapp" || uuid == "" {
		WriteNotFound(w, "No such language pack")
		return
	}

	pack, err := s.packs.Get(r.Context(), uuid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	doc, etag, err := s.minifests.GetOrBuild(r.Context(), pack, false)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	quoted := `"` + etag + `"`
	w.Header().Set("ETag", quoted)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match == quoted || match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/x-web-app-manifest+json")
	_, _ = w.Write(doc)
}

// handleDownload serves GET /downloads/{uuid}/langpack.zip: the latest signed
// archive for an active pack.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		WriteMethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/downloads/")
	uuid, file, ok := strings.Cut(rest, "/")
	if !ok || file != "langpack.zip" || uuid == "" {
		WriteNotFound(w, "No such language pack")
		return
	}

	pack, err := s.packs.Get(r.Context(), uuid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !pack.Active {
		WriteNotFound(w, "No such language pack")
		return
	}

	data, err := s.files.Read(r.Context(), pack.StoragePath())
	if err != nil {
		s.logger.Error("stored file missing for published pack",
			"uuid", uuid, "path", pack.StoragePath(), "error", err)
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", pack.Filename()))
	_, _ = w.Write(data)
}
