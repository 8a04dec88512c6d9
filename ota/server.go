// Package ota serves firmware updates to ESP8266 smart locks over HTTP.
package ota

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eblooo/esp-smart-lock/firmware"
)

// maxUploadSize bounds the multipart form held in memory during upload.
const maxUploadSize = 10 << 20

// Server handles the OTA endpoints the lock firmware polls.
type Server struct {
	store *firmware.Store
	log   *zap.Logger
	debug bool
}

// NewServer creates an OTA server backed by the given store.
func NewServer(store *firmware.Store, log *zap.Logger, debug bool) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		store: store,
		log:   log,
		debug: debug,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.logRequests)

	r.Post("/upload", s.handleUpload)
	r.Get("/firmware", s.handleDownload)
	r.Get("/version", s.handleVersion)
	r.Get("/list", s.handleList)
	r.Delete("/delete", s.handleDelete)

	return r
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "unable to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("firmware")
	if err != nil {
		http.Error(w, "unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	version := r.FormValue("version")
	if version == "" {
		http.Error(w, "version not specified", http.StatusBadRequest)
		return
	}

	n, err := s.store.Save(version, file)
	if err != nil {
		s.log.Error("failed to store firmware",
			zap.String("version", version),
			zap.Error(err),
		)
		http.Error(w, "unable to save file", http.StatusInternalServerError)
		return
	}

	s.log.Info("firmware uploaded",
		zap.String("version", version),
		zap.String("filename", header.Filename),
		zap.Int64("bytes", n),
	)

	fmt.Fprintf(w, "Firmware version %s uploaded successfully", version)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("version")

	target := s.store.Latest()
	if requested != "" {
		target = requested
	}

	fi, err := s.store.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "firmware not found", http.StatusNotFound)
			return
		}

		http.Error(w, "firmware not available", http.StatusBadRequest)
		return
	}

	// A lock polling for the latest image reports its running version; skip
	// the transfer when it is already current.
	if requested == "" && clientVersion(r) == target {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	sum, err := s.store.MD5(target)
	if err != nil {
		http.Error(w, "firmware not available", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=firmware.bin")
	w.Header().Set("x-MD5", sum)

	if s.debug {
		s.log.Debug("serving firmware",
			zap.String("version", target),
			zap.Int64("size", fi.Size()),
		)
	}

	http.ServeFile(w, r, s.store.Path(target))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"version": s.store.Latest()})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List()
	if err != nil {
		s.log.Error("failed to list firmware", zap.Error(err))
		http.Error(w, "unable to read firmware directory", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"current_version": s.store.Latest(),
		"firmware_count":  len(list),
		"firmware_list":   list,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("version")
	if version == "" {
		http.Error(w, "version not specified", http.StatusBadRequest)
		return
	}

	if err := s.store.Delete(version); err != nil {
		http.Error(w, "firmware not found", http.StatusNotFound)
		return
	}

	s.log.Info("firmware deleted", zap.String("version", version))

	fmt.Fprintf(w, "Firmware version %s deleted successfully", version)
}

// clientVersion extracts the firmware version a lock reports in its update
// request, either via header or the esp8266-httpUpdate User-Agent form
// "agent/version".
func clientVersion(r *http.Request) string {
	if v := r.Header.Get("x-esp8266-version"); v != "" {
		return v
	}

	if parts := strings.Split(r.UserAgent(), "/"); len(parts) > 1 {
		return parts[1]
	}

	return ""
}
