package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/showkit/scenerelay/backend/model"
	"github.com/showkit/scenerelay/backend/storage/disk"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	maxUploadMemory = 32 << 20 // 32 MiB before multipart spills to disk

	uploadsPrefix = "/uploads/"

	headerSocketID     = "x-socket-id"
	headerUploaderRole = "x-uploader-role"
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type UploadStore interface {
	Save(name string, r io.Reader) (string, error)
	List() ([]string, error)
	Delete(name string) error
	DeleteAll() (int, error)
	Dir() string
}

// UploadBuffer receives host uploads for later batch broadcast.
type UploadBuffer interface {
	Add(conn, role string, asset model.Asset) bool
}

type UploadResponse struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

type ListEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type GenericResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Server struct {
	logger    zerolog.Logger
	store     UploadStore
	buffer    UploadBuffer
	publicURL string
	*http.Server
}

type Config struct {
	Logger     *zerolog.Logger
	Store      UploadStore
	Buffer     UploadBuffer
	Realtime   http.Handler
	ListenAddr string
	PublicURL  string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:    cfg.Logger.With().Str("component", "api-server").Logger(),
		store:     cfg.Store,
		buffer:    cfg.Buffer,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}

	r := http.NewServeMux()
	r.HandleFunc("POST /upload", srv.upload)
	r.HandleFunc("GET /list-uploads", srv.listUploads)
	r.HandleFunc("DELETE /delete-upload/{filename}", srv.deleteUpload)
	r.HandleFunc("DELETE /delete-all-uploads", srv.deleteAllUploads)
	r.Handle("GET "+uploadsPrefix, http.StripPrefix(uploadsPrefix, http.FileServer(http.Dir(cfg.Store.Dir()))))
	r.Handle("GET /ws", cfg.Realtime)
	r.HandleFunc("OPTIONS /", corsHandler)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, "+headerSocketID+", "+headerUploaderRole)
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) upload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		srv.writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "no model file provided"})
		return
	}
	file, header, err := r.FormFile("model")
	if err != nil {
		srv.writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "no model file provided"})
		return
	}
	defer func() {
		_ = file.Close()
	}()

	stored, err := srv.store.Save(header.Filename, file)
	if err != nil {
		srv.logger.Error().Err(err).Str("name", header.Filename).Msg("failed to store upload")
		srv.writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "failed to store upload"})
		return
	}

	url := srv.baseURL(r) + uploadsPrefix + stored

	socketID := r.Header.Get(headerSocketID)
	role := r.Header.Get(headerUploaderRole)
	if role == "" {
		role = model.RoleViewer
	}
	if srv.buffer.Add(socketID, role, model.Asset{URL: url, Name: stored}) {
		srv.logger.Debug().
			Str("conn", socketID).
			Str("name", stored).
			Msg("host upload buffered")
	}

	srv.writeJSON(w, http.StatusOK, &UploadResponse{URL: url, Name: stored})
}

func (srv *Server) listUploads(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	names, err := srv.store.List()
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to list uploads")
		srv.writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "failed to list uploads"})
		return
	}

	entries := make([]ListEntry, 0, len(names))
	base := srv.baseURL(r)
	for _, name := range names {
		entries = append(entries, ListEntry{Name: name, URL: base + uploadsPrefix + name})
	}
	srv.writeJSON(w, http.StatusOK, entries)
}

func (srv *Server) deleteUpload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	name := r.PathValue("filename")
	err := srv.store.Delete(name)
	switch {
	case errors.Is(err, disk.ErrNotFound), errors.Is(err, disk.ErrInvalidName):
		srv.writeJSON(w, http.StatusNotFound, &GenericResponse{Error: "file not found"})
	case err != nil:
		srv.logger.Error().Err(err).Str("name", name).Msg("failed to delete upload")
		srv.writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "failed to delete upload"})
	default:
		srv.writeJSON(w, http.StatusOK, &GenericResponse{Message: "deleted " + name})
	}
}

func (srv *Server) deleteAllUploads(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	deleted, err := srv.store.DeleteAll()
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to delete uploads")
		srv.writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "failed to delete uploads"})
		return
	}
	srv.writeJSON(w, http.StatusOK, &GenericResponse{Message: "deleted " + strconv.Itoa(deleted) + " uploads"})
}

// baseURL prefers the configured public URL, falling back to the
// request's own scheme and host.
func (srv *Server) baseURL(r *http.Request) string {
	if srv.publicURL != "" {
		return srv.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (srv *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, code, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
