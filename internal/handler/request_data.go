package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// maxChunkBytes is the hard transport limit on one chunk request.
const maxChunkBytes = 100 << 20

// maxChunkMemory caps how much of a chunk upload is buffered in
// memory; anything past it spills to temp files.
const maxChunkMemory = 32 << 20

var (
	errCantParseForm = errors.New("can't parse request form")
	errNoFile        = errors.New("file has not been provided")
	errNoMetadata    = errors.New("chunk metadata has not been provided")
	errBadMetadata   = errors.New("can't parse chunk metadata")
)

type initRequest struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileHash string `json:"file_hash"`
}

type completeRequest struct {
	FileID string `json:"file_id"`
}

type chunkMetadata struct {
	FileID      string `json:"file_id"`
	ChunkNumber int    `json:"chunk_number"`
	ChunkHash   string `json:"chunk_hash"`
}

type chunkRequestData struct {
	meta chunkMetadata
	file multipart.File
}

// newChunkRequestData pulls the "json" metadata part and the "file"
// chunk body out of a multipart upload request. The caller closes the
// returned file.
func newChunkRequestData(r *http.Request, l *log.Entry) (*chunkRequestData, error) {
	if err := r.ParseMultipartForm(maxChunkMemory); err != nil {
		l.WithError(err).Error(errCantParseForm)
		return nil, errCantParseForm
	}

	raw, err := metadataPart(r.MultipartForm)
	if err != nil {
		l.WithError(err).Error(err)
		return nil, err
	}
	rd := &chunkRequestData{}
	if err := json.Unmarshal(raw, &rd.meta); err != nil {
		l.WithError(err).Error(errBadMetadata)
		return nil, errBadMetadata
	}

	f, _, err := r.FormFile("file")
	if err != nil {
		l.WithError(err).Error(errNoFile)
		return nil, errNoFile
	}
	rd.file = f
	return rd, nil
}

// metadataPart accepts the metadata both as a plain form value and as
// a file part named "json", whichever the client sent.
func metadataPart(form *multipart.Form) ([]byte, error) {
	if vals := form.Value["json"]; len(vals) > 0 {
		return []byte(vals[0]), nil
	}
	files := form.File["json"]
	if len(files) == 0 {
		return nil, errNoMetadata
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, errNoMetadata
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, errBadMetadata
	}
	return raw, nil
}
