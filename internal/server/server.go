package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Vivek9454/FalconEye/internal/alert"
	"github.com/Vivek9454/FalconEye/internal/camera"
	"github.com/Vivek9454/FalconEye/internal/detect"
	"github.com/Vivek9454/FalconEye/internal/faces"
	"github.com/Vivek9454/FalconEye/internal/metrics"
	"github.com/Vivek9454/FalconEye/internal/pipeline"
	"github.com/Vivek9454/FalconEye/internal/store"
	"github.com/Vivek9454/FalconEye/internal/upload"
	"github.com/Vivek9454/FalconEye/internal/vision"
	"github.com/Vivek9454/FalconEye/internal/ws"
)

// maxRegisterBody bounds face registration uploads.
const maxRegisterBody = 10 << 20

// Server exposes the HTTP API: health, live snapshots, clips, alerts,
// settings and face administration. Faces, Uploader and Metrics may be
// nil; their endpoints then report the feature as unavailable.
type Server struct {
	Cameras    *camera.Manager
	Loop       *pipeline.Loop
	Detector   *detect.Client
	Settings   *vision.Store
	Faces      *faces.Service
	FaceDB     *faces.DB
	Store      *store.Store
	Dispatcher *alert.Dispatcher
	Uploader   *upload.Uploader
	Hub        *ws.Hub
	Metrics    *metrics.Metrics
	ClipDir    string
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	mux.HandleFunc("GET /api/cameras", s.handleCameras)
	mux.HandleFunc("GET /api/cameras/{camera}/snapshot", s.handleSnapshot)

	mux.HandleFunc("GET /api/clips", s.handleListClips)
	mux.HandleFunc("GET /api/clips/{file}", s.handleServeClip)
	mux.HandleFunc("GET /api/clips/{file}/thumbnail", s.handleThumbnail)
	mux.HandleFunc("POST /api/uploads/retry", s.handleRetryUploads)

	mux.HandleFunc("GET /api/alerts", s.handleAlerts)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /api/settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /api/faces", s.handleListFaces)
	mux.HandleFunc("POST /api/faces/enabled", s.handleSetFacesEnabled)
	mux.HandleFunc("POST /api/faces/{name}", s.handleRegisterFace)
	mux.HandleFunc("DELETE /api/faces/{name}", s.handleDeleteFace)

	if s.Hub != nil {
		handler := ws.NewHandler(s.Hub)
		mux.Handle("/ws/events", handler)
		mux.Handle("/ws/events/", handler)
	}

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"cameras": s.Cameras.IDs(),
	}
	if s.Detector != nil {
		health["detector_healthy"] = s.Detector.IsHealthy()
	}
	if s.Hub != nil {
		health["ws_clients"] = s.Hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cameras": s.Cameras.IDs()})
}

// handleSnapshot serves the latest frame for a camera, preferring the
// annotated copy from the detection loop.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	cameraID := r.PathValue("camera")

	if s.Loop != nil {
		if frame, ok := s.Loop.AnnotatedFrame(cameraID); ok {
			serveJPEG(w, frame)
			return
		}
	}

	src, ok := s.Cameras.Source(cameraID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown camera %s", cameraID))
		return
	}
	frame, ok := src.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no frame available yet")
		return
	}
	serveJPEG(w, frame.JPEG)
}

func (s *Server) handleListClips(w http.ResponseWriter, r *http.Request) {
	clips, err := s.Store.LoadClips()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clips": clips})
}

func (s *Server) handleServeClip(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	if !validClipName(file) {
		writeError(w, http.StatusBadRequest, "invalid clip name")
		return
	}
	if _, err := s.Store.GetClip(file); err != nil {
		writeError(w, http.StatusNotFound, "clip not found")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, filepath.Join(s.ClipDir, file))
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	if !validClipName(file) {
		writeError(w, http.StatusBadRequest, "invalid clip name")
		return
	}
	name := strings.TrimSuffix(file, ".mp4") + ".jpg"
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, filepath.Join(s.ClipDir, "thumbnails", name))
}

func (s *Server) handleRetryUploads(w http.ResponseWriter, r *http.Request) {
	if s.Uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "cloud sync is not configured")
		return
	}
	uploaded, err := s.Uploader.RetryPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploaded": uploaded})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alerts": s.Dispatcher.Recent()})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Settings.Snapshot())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	updated, err := s.Settings.Update(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListFaces(w http.ResponseWriter, r *http.Request) {
	if s.FaceDB == nil {
		writeError(w, http.StatusServiceUnavailable, "face recognition is not configured")
		return
	}

	names := s.FaceDB.Names()
	entries := make([]map[string]any, 0, len(names))
	for _, name := range names {
		entries = append(entries, map[string]any{
			"name":    name,
			"samples": s.FaceDB.SampleCount(name),
		})
	}

	resp := map[string]any{"faces": entries}
	if s.Faces != nil {
		resp["enabled"] = s.Faces.Enabled()
		resp["tripped"] = s.Faces.Tripped()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetFacesEnabled(w http.ResponseWriter, r *http.Request) {
	if s.Faces == nil {
		writeError(w, http.StatusServiceUnavailable, "face recognition is not configured")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.Faces.SetEnabled(req.Enabled)
	s.Settings.SetFacesEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

// handleRegisterFace stores a sample photo for a person. The body is
// the raw JPEG.
func (s *Server) handleRegisterFace(w http.ResponseWriter, r *http.Request) {
	if s.Faces == nil {
		writeError(w, http.StatusServiceUnavailable, "face recognition is not configured")
		return
	}

	name := r.PathValue("name")
	image, err := io.ReadAll(io.LimitReader(r.Body, maxRegisterBody))
	if err != nil || len(image) == 0 {
		writeError(w, http.StatusBadRequest, "image body required")
		return
	}

	if err := s.Faces.Register(name, image); err != nil {
		if faces.ErrNoFaceFound(err) {
			writeError(w, http.StatusUnprocessableEntity, "no face found in image")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[Server] Registered face sample for %s", name)
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"samples": s.FaceDB.SampleCount(name),
	})
}

func (s *Server) handleDeleteFace(w http.ResponseWriter, r *http.Request) {
	if s.FaceDB == nil {
		writeError(w, http.StatusServiceUnavailable, "face recognition is not configured")
		return
	}

	name := r.PathValue("name")
	if err := s.FaceDB.Remove(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
}

// validClipName rejects anything that could escape the clip directory.
func validClipName(name string) bool {
	return name != "" &&
		!strings.Contains(name, "/") &&
		!strings.Contains(name, "\\") &&
		!strings.Contains(name, "..") &&
		strings.HasSuffix(name, ".mp4")
}

func serveJPEG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
