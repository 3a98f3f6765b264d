// Package handler exposes the upload protocol and the share catalog
// over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"github.com/localshare/share-go/internal/assets"
	"github.com/localshare/share-go/internal/database"
	"github.com/localshare/share-go/internal/handler/middleware"
	"github.com/localshare/share-go/internal/share"
	"github.com/localshare/share-go/internal/upload"
)

// UploadEngine is the part of the upload session engine the HTTP
// layer needs.
type UploadEngine interface {
	InitUpload(req upload.InitRequest) (*upload.InitResult, error)
	UploadChunk(uploadID string, chunkNumber int, chunkHash string, chunk io.Reader) (*upload.ChunkResult, error)
	CompleteUpload(uploadID string) (string, error)
}

// ShareRegistry is the part of the share service the HTTP layer needs.
type ShareRegistry interface {
	List() ([]*database.Share, error)
	Open(id int64) (*database.Share, *os.File, error)
}

func NewHandler(engine UploadEngine, shares ShareRegistry, l *log.Entry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(middleware.RequestLogger(l))

	r.Post("/upload/init", initUpload(engine))
	r.Post("/upload/chunk", uploadChunk(engine))
	r.Post("/upload/complete", completeUpload(engine))

	r.Get("/stream/{shareId}", streamDownload(shares))
	r.Get("/shares", listShares(shares))
	r.Post("/shares", listShares(shares))
	r.Get("/icons", iconForMimeType())

	r.Get("/", serveAsset("web/index.html"))
	r.Get("/web/*", serveWeb())

	return r
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

// uploadErrorStatus maps engine errors onto response codes. Client
// mistakes come back as 400, unknown sessions as 404, everything else
// as a server fault.
func uploadErrorStatus(err error) int {
	switch {
	case errors.Is(err, upload.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, upload.ErrInvalidArgument),
		errors.Is(err, upload.ErrSessionCompleted),
		errors.Is(err, upload.ErrChunkHashMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type initResponse struct {
	FileID         string `json:"file_id"`
	Status         string `json:"status"`
	UploadedChunks []int  `json:"uploaded_chunks"`
	UploadedSize   int64  `json:"uploaded_size"`
}

func initUpload(engine UploadEngine) func(rw http.ResponseWriter, r *http.Request) {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := middleware.Logger(r.Context())

		req := &initRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			l.WithError(err).Error("can't parse init request")
			http.Error(rw, "can't parse request body", http.StatusBadRequest)
			return
		}

		res, err := engine.InitUpload(upload.InitRequest{
			FileName: req.FileName,
			FileSize: req.FileSize,
			FileHash: req.FileHash,
		})
		if err != nil {
			l.WithError(err).Error("can't init upload")
			http.Error(rw, err.Error(), uploadErrorStatus(err))
			return
		}

		chunks := res.UploadedChunks
		if chunks == nil {
			chunks = []int{}
		}
		writeJSON(rw, http.StatusOK, initResponse{
			FileID:         res.FileID,
			Status:         string(res.Status),
			UploadedChunks: chunks,
			UploadedSize:   res.UploadedSize,
		})
	}
}

func uploadChunk(engine UploadEngine) func(rw http.ResponseWriter, r *http.Request) {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := middleware.Logger(r.Context())

		r.Body = http.MaxBytesReader(rw, r.Body, maxChunkBytes)
		rd, err := newChunkRequestData(r, l)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		defer rd.file.Close()

		l = l.WithFields(log.Fields{
			"file_id":      rd.meta.FileID,
			"chunk_number": rd.meta.ChunkNumber,
		})

		res, err := engine.UploadChunk(rd.meta.FileID, rd.meta.ChunkNumber, rd.meta.ChunkHash, rd.file)
		if err != nil {
			l.WithError(err).Error("can't save chunk")
			http.Error(rw, err.Error(), uploadErrorStatus(err))
			return
		}

		writeJSON(rw, http.StatusOK, map[string]bool{"already_uploaded": res.AlreadyUploaded})
	}
}

func completeUpload(engine UploadEngine) func(rw http.ResponseWriter, r *http.Request) {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := middleware.Logger(r.Context())

		req := &completeRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			l.WithError(err).Error("can't parse complete request")
			http.Error(rw, "can't parse request body", http.StatusBadRequest)
			return
		}

		filePath, err := engine.CompleteUpload(req.FileID)
		if err != nil {
			l.WithError(err).WithField("file_id", req.FileID).Error("can't complete upload")
			http.Error(rw, err.Error(), uploadErrorStatus(err))
			return
		}

		l.WithField("file_id", req.FileID).Info("upload completed")
		writeJSON(rw, http.StatusOK, map[string]string{
			"file_id":   req.FileID,
			"file_name": path.Base(filePath),
			"status":    string(database.StatusCompleted),
		})
	}
}

type shareResponse struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

func listShares(shares ShareRegistry) func(rw http.ResponseWriter, r *http.Request) {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := middleware.Logger(r.Context())

		list, err := shares.List()
		if err != nil {
			l.WithError(err).Error("can't list shares")
			http.Error(rw, "can't list shares", http.StatusInternalServerError)
			return
		}
		res := make([]shareResponse, 0, len(list))
		for _, s := range list {
			res = append(res, shareResponse{
				ID:       strconv.FormatInt(s.ID, 10),
				FileName: s.FileName,
				MimeType: s.MimeType,
			})
		}
		writeJSON(rw, http.StatusOK, res)
	}
}

func streamDownload(shares ShareRegistry) func(rw http.ResponseWriter, r *http.Request) {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := middleware.Logger(r.Context())

		id, err := strconv.ParseInt(chi.URLParam(r, "shareId"), 10, 64)
		if err != nil {
			http.Error(rw, "invalid share id", http.StatusBadRequest)
			return
		}

		rec, f, err := shares.Open(id)
		if err != nil {
			if errors.Is(err, share.ErrShareNotFound) {
				http.NotFound(rw, r)
				return
			}
			l.WithError(err).WithField("share_id", id).Error("can't open share")
			http.Error(rw, "can't open share", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		stat, err := f.Stat()
		if err != nil {
			l.WithError(err).WithField("share_id", id).Error("can't stat shared file")
			http.Error(rw, "can't open share", http.StatusInternalServerError)
			return
		}

		if r.URL.Query().Get("force_download") == "true" {
			rw.Header().Set("Content-Type", "application/octet-stream")
			rw.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.FileName))
		} else if rec.MimeType != "" {
			rw.Header().Set("Content-Type", rec.MimeType)
		}

		// ServeContent takes care of range and conditional requests
		http.ServeContent(rw, r, rec.FileName, stat.ModTime(), f)
		l.WithField("share_id", id).Info("share streamed")
	}
}

func iconForMimeType() func(rw http.ResponseWriter, r *http.Request) {
	return func(rw http.ResponseWriter, r *http.Request) {
		mimeType := r.URL.Query().Get("mime_type")
		if mimeType == "" {
			http.Error(rw, "mime_type is required", http.StatusBadRequest)
			return
		}
		b, ok := assets.Get(assets.IconForMime(mimeType))
		if !ok {
			http.NotFound(rw, r)
			return
		}
		rw.Header().Set("Content-Type", "image/svg+xml")
		_, _ = rw.Write(b)
	}
}

func serveWeb() func(rw http.ResponseWriter, r *http.Request) {
	return func(rw http.ResponseWriter, r *http.Request) {
		serveAsset("web/"+chi.URLParam(r, "*"))(rw, r)
	}
}

func serveAsset(assetPath string) func(rw http.ResponseWriter, r *http.Request) {
	return func(rw http.ResponseWriter, r *http.Request) {
		b, ok := assets.Get(path.Clean(assetPath))
		if !ok {
			http.NotFound(rw, r)
			return
		}
		if t := mime.TypeByExtension(path.Ext(assetPath)); t != "" {
			rw.Header().Set("Content-Type", t)
		}
		_, _ = rw.Write(b)
	}
}
