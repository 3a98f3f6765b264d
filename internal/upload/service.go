// Package upload drives the resumable chunked-upload state machine: a
// session is created for a content hash, verified chunks accumulate in
// a per-session temp directory, and completion merges them into the
// destination file.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/localshare/share-go/internal/database"
	"github.com/localshare/share-go/internal/fsutil"
	"github.com/localshare/share-go/internal/integrity"
)

const chunkFilePrefix = "chunk_"

// chunk verification during a resume hashes files concurrently
const verifyConcurrency = 4

var (
	ErrInvalidArgument   = errors.New("missing or invalid required fields")
	ErrSessionNotFound   = errors.New("upload session not found")
	ErrSessionCompleted  = errors.New("file already completed")
	ErrChunkHashMismatch = errors.New("chunk hash verification failed")

	ErrSizeMismatch     = errors.New("file size mismatch")
	ErrChunkMissing     = errors.New("chunk file not found")
	ErrIntegrityFailure = errors.New("merged file hash verification failed")
)

type InitRequest struct {
	FileName string
	FileSize int64
	FileHash string
}

type InitResult struct {
	FileID         string
	Status         database.UploadStatus
	UploadedChunks []int
	UploadedSize   int64
}

type ChunkResult struct {
	AlreadyUploaded bool
}

// Engine orchestrates upload sessions on top of the repository, the
// integrity checks and the storage folder.
type Engine struct {
	repo          *database.Repository
	storageFolder string
	locks         *lockRegistry
	l             *log.Entry
}

func NewEngine(repo *database.Repository, storageFolder string, l *log.Entry) *Engine {
	return &Engine{
		repo:          repo,
		storageFolder: storageFolder,
		locks:         newLockRegistry(),
		l:             l.WithField("storage_folder", storageFolder),
	}
}

// InitUpload creates or resumes the session for the given content
// hash. A completed session whose destination file no longer matches
// the hash is deleted and restarted; an in-progress session has its
// chunks re-verified so the client only re-sends what is missing.
func (e *Engine) InitUpload(req InitRequest) (*InitResult, error) {
	if req.FileHash == "" || req.FileName == "" || req.FileSize < 0 {
		return nil, ErrInvalidArgument
	}

	lock := e.locks.acquire(req.FileHash)
	defer e.locks.release(req.FileHash)
	lock.session.Lock()
	defer lock.session.Unlock()

	item, err := e.repo.GetUpload(req.FileHash)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return e.createSession(req)
	}

	switch item.Status {
	case database.StatusCompleted:
		return e.resumeCompleted(item, req)
	case database.StatusUploading:
		return e.resumeUploading(item)
	default:
		return nil, fmt.Errorf("invalid upload status %q", item.Status)
	}
}

func (e *Engine) createSession(req InitRequest) (*InitResult, error) {
	filePath, err := fsutil.AvailableFilename(filepath.Join(e.storageFolder, req.FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to get available filename: %w", err)
	}

	item := &database.Upload{
		ID:        req.FileHash,
		FileName:  req.FileName,
		FileSize:  req.FileSize,
		FilePath:  filePath,
		Status:    database.StatusUploading,
		CreatedAt: time.Now(),
	}
	if err := e.repo.CreateUpload(item); err != nil {
		return nil, err
	}
	e.l.WithFields(log.Fields{
		"upload_id": item.ID,
		"file_path": filePath,
	}).Info("upload session created")

	return &InitResult{
		FileID:         item.ID,
		Status:         database.StatusUploading,
		UploadedChunks: []int{},
	}, nil
}

func (e *Engine) resumeCompleted(item *database.Upload, req InitRequest) (*InitResult, error) {
	check, err := integrity.CheckFile(item.FilePath, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check completed upload: %w", err)
	}
	if check.Valid {
		return &InitResult{
			FileID:         item.ID,
			Status:         database.StatusCompleted,
			UploadedChunks: []int{},
			UploadedSize:   item.FileSize,
		}, nil
	}

	e.l.WithFields(log.Fields{
		"upload_id": item.ID,
		"reason":    check.Reason,
	}).Info("completed upload is invalid, resetting session")
	if err := e.repo.DeleteUpload(item.ID); err != nil {
		return nil, err
	}
	return e.createSession(req)
}

func (e *Engine) resumeUploading(item *database.Upload) (*InitResult, error) {
	chunks, err := e.repo.ListChunks(item.ID)
	if err != nil {
		return nil, err
	}
	valid, err := e.cleanInvalidChunks(item.ID, chunks)
	if err != nil {
		return nil, err
	}

	numbers := make([]int, 0, len(valid))
	var size int64
	for _, c := range valid {
		numbers = append(numbers, c.ChunkNumber)
		size += c.ChunkSize
	}
	sort.Ints(numbers)

	return &InitResult{
		FileID:         item.ID,
		Status:         database.StatusUploading,
		UploadedChunks: numbers,
		UploadedSize:   size,
	}, nil
}

// cleanInvalidChunks verifies every persisted chunk against its
// on-disk file and prunes the ones a crash or disk tampering left
// invalid, returning the survivors.
func (e *Engine) cleanInvalidChunks(uploadID string, chunks []*database.Chunk) ([]*database.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	dir := e.uploadDir(uploadID)

	checks := make([]integrity.CheckResult, len(chunks))
	eg := &errgroup.Group{}
	eg.SetLimit(verifyConcurrency)
	for i, chunk := range chunks {
		eg.Go(func() error {
			check, err := integrity.CheckFile(chunkFile(dir, chunk.ChunkNumber), chunk.ChunkHash)
			if err != nil {
				return err
			}
			checks[i] = check
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to check chunks: %w", err)
	}

	valid := make([]*database.Chunk, 0, len(chunks))
	for i, chunk := range chunks {
		if checks[i].Valid {
			valid = append(valid, chunk)
			continue
		}
		e.l.WithFields(log.Fields{
			"upload_id":    uploadID,
			"chunk_number": chunk.ChunkNumber,
			"reason":       checks[i].Reason,
		}).Info("removing invalid chunk")
		if err := fsutil.DeleteFileIfExists(chunkFile(dir, chunk.ChunkNumber)); err != nil {
			return nil, fmt.Errorf("failed to delete invalid chunk: %w", err)
		}
		if err := e.repo.DeleteChunkByID(chunk.ID); err != nil {
			return nil, err
		}
	}
	return valid, nil
}

// UploadChunk persists one verified chunk. Re-sending a chunk that is
// already on disk with a matching hash short-circuits to success; on
// any failure path the just-written file is removed again.
func (e *Engine) UploadChunk(uploadID string, chunkNumber int, chunkHash string, chunk io.Reader) (*ChunkResult, error) {
	if uploadID == "" || chunkNumber <= 0 {
		return nil, ErrInvalidArgument
	}

	lock := e.locks.acquire(uploadID)
	defer e.locks.release(uploadID)
	lock.session.RLock()
	defer lock.session.RUnlock()
	cl := lock.chunkLock(chunkNumber)
	cl.Lock()
	defer cl.Unlock()

	item, err := e.repo.GetUpload(uploadID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrSessionNotFound
	}
	if item.Status == database.StatusCompleted {
		return nil, ErrSessionCompleted
	}

	dir := e.uploadDir(uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := chunkFile(dir, chunkNumber)

	l := e.l.WithFields(log.Fields{
		"upload_id":    uploadID,
		"chunk_number": chunkNumber,
	})

	existing, err := e.repo.GetChunk(uploadID, chunkNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		check, err := integrity.CheckFile(path, existing.ChunkHash)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing chunk: %w", err)
		}
		if check.Valid {
			l.Info("chunk already uploaded")
			return &ChunkResult{AlreadyUploaded: true}, nil
		}
		l.WithField("reason", check.Reason).Info("existing chunk is invalid, removing it")
		if err := fsutil.DeleteFileIfExists(path); err != nil {
			l.WithError(err).Warn("can't delete invalid chunk file")
		}
		if err := e.repo.DeleteChunkByID(existing.ID); err != nil {
			return nil, err
		}
	}

	size, err := writeChunkFile(path, chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to save chunk: %w", err)
	}

	ok, err := integrity.CheckFileHash(path, chunkHash)
	if err != nil || !ok {
		if delErr := fsutil.DeleteFileIfExists(path); delErr != nil {
			l.WithError(delErr).Warn("can't delete chunk file")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to verify chunk: %w", err)
		}
		return nil, ErrChunkHashMismatch
	}

	record := &database.Chunk{
		UploadID:    uploadID,
		ChunkNumber: chunkNumber,
		ChunkSize:   size,
		ChunkHash:   chunkHash,
	}
	if err := e.repo.CreateChunk(record); err != nil {
		if errors.Is(err, database.ErrChunkExists) {
			// a concurrent request won the insert; the bytes on disk
			// passed verification, so this is the same outcome
			l.Info("chunk already uploaded")
			return &ChunkResult{AlreadyUploaded: true}, nil
		}
		if delErr := fsutil.DeleteFileIfExists(path); delErr != nil {
			l.WithError(delErr).Warn("can't delete chunk file")
		}
		return nil, err
	}

	l.WithField("chunk_size", size).Info("chunk saved")
	return &ChunkResult{}, nil
}

func writeChunkFile(path string, src io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = fsutil.DeleteFileIfExists(path)
		return 0, err
	}
	return n, nil
}

// CompleteUpload merges all chunks in ascending order into the
// destination file, verifies the declared size and the final hash,
// marks the session completed and removes the temp directory. A failed
// merge leaves the session Uploading so the client can retry.
func (e *Engine) CompleteUpload(uploadID string) (string, error) {
	if uploadID == "" {
		return "", ErrInvalidArgument
	}

	lock := e.locks.acquire(uploadID)
	defer e.locks.release(uploadID)
	lock.session.Lock()
	defer lock.session.Unlock()

	item, err := e.repo.GetUpload(uploadID)
	if err != nil {
		return "", err
	}
	if item == nil {
		return "", ErrSessionNotFound
	}
	if item.Status == database.StatusCompleted {
		return item.FilePath, nil
	}

	dir := e.uploadDir(uploadID)
	if err := e.mergeChunks(item, dir); err != nil {
		return "", err
	}

	item.Status = database.StatusCompleted
	if err := e.repo.UpdateUpload(item); err != nil {
		return "", err
	}

	// best effort: the upload already succeeded, leftover temp files
	// only cost disk space
	if err := os.RemoveAll(dir); err != nil {
		e.l.WithError(err).WithField("upload_id", uploadID).Warn("can't remove chunk directory")
	}

	e.l.WithFields(log.Fields{
		"upload_id": uploadID,
		"file_path": item.FilePath,
	}).Info("upload completed")
	return item.FilePath, nil
}

func (e *Engine) mergeChunks(item *database.Upload, dir string) error {
	chunks, err := e.repo.ListChunks(item.ID)
	if err != nil {
		return err
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkNumber < chunks[j].ChunkNumber })

	var recorded int64
	for _, c := range chunks {
		recorded += c.ChunkSize
	}
	if recorded != item.FileSize {
		return fmt.Errorf("%w, expected: %d, actual: %d", ErrSizeMismatch, item.FileSize, recorded)
	}

	if err := os.MkdirAll(filepath.Dir(item.FilePath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(item.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	written, err := copyChunks(out, chunks, dir, item.FileSize)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to write output file: %w", closeErr)
	}
	if err != nil {
		return err
	}
	// a chunk vanishing mid-loop would under-count without this
	if written != item.FileSize {
		return fmt.Errorf("%w, expected: %d, actual: %d", ErrSizeMismatch, item.FileSize, written)
	}

	// the partially merged file is left on disk when verification
	// fails so the mismatch can be inspected
	ok, err := integrity.CheckFileHash(item.FilePath, item.ID)
	if err != nil {
		return fmt.Errorf("failed to verify merged file: %w", err)
	}
	if !ok {
		return ErrIntegrityFailure
	}
	return nil
}

func copyChunks(out io.Writer, chunks []*database.Chunk, dir string, expectedSize int64) (int64, error) {
	var written int64
	for _, c := range chunks {
		path := chunkFile(dir, c.ChunkNumber)
		exists, err := fsutil.ExistsFile(path)
		if err != nil {
			return written, err
		}
		if !exists {
			return written, fmt.Errorf("%w: %s", ErrChunkMissing, path)
		}

		f, err := os.Open(path)
		if err != nil {
			return written, fmt.Errorf("failed to open chunk file: %w", err)
		}
		n, err := io.Copy(out, f)
		_ = f.Close()
		if err != nil {
			return written, fmt.Errorf("failed to write chunk data: %w", err)
		}

		written += n
		// an on-disk chunk larger than its record would overshoot
		if written > expectedSize {
			return written, fmt.Errorf("%w, file exceeds expected size %d", ErrSizeMismatch, expectedSize)
		}
	}
	return written, nil
}

func (e *Engine) uploadDir(uploadID string) string {
	return filepath.Join(e.storageFolder, uploadID)
}

func chunkFile(dir string, number int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d", chunkFilePrefix, number))
}
