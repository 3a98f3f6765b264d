package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrChunkExists reports an (upload, chunk number) unique constraint
// violation on insert.
var ErrChunkExists = errors.New("chunk already recorded")

// RepositoryError wraps a storage failure with the operation that hit
// it. Callers must not assume the operation is retryable.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %s", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Op: op, Err: err}
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetUpload returns the session keyed by the given content hash, or
// nil when none exists.
func (r *Repository) GetUpload(id string) (*Upload, error) {
	u := &Upload{}
	err := r.db.First(u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get upload", err)
	}
	return u, nil
}

func (r *Repository) CreateUpload(u *Upload) error {
	return wrap("create upload", r.db.Create(u).Error)
}

func (r *Repository) UpdateUpload(u *Upload) error {
	return wrap("update upload", r.db.Save(u).Error)
}

// DeleteUpload removes a session and all its chunk rows. Both deletes
// run in one transaction so concurrent readers never observe a
// half-removed session.
func (r *Repository) DeleteUpload(id string) error {
	return wrap("delete upload", r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id = ?", id).Delete(&Chunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Upload{}, "id = ?", id).Error
	}))
}

// CreateChunk inserts a verified chunk record. A duplicate
// (upload, chunk number) pair comes back as ErrChunkExists.
func (r *Repository) CreateChunk(c *Chunk) error {
	err := r.db.Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrChunkExists
	}
	return wrap("create chunk", err)
}

// ListChunks returns all chunk records of a session, in storage order.
func (r *Repository) ListChunks(uploadID string) ([]*Chunk, error) {
	var res []*Chunk
	err := r.db.Where("upload_id = ?", uploadID).Find(&res).Error
	return res, wrap("list chunks", err)
}

// GetChunk returns the record for (uploadID, number), or nil when none
// exists.
func (r *Repository) GetChunk(uploadID string, number int) (*Chunk, error) {
	c := &Chunk{}
	err := r.db.First(c, "upload_id = ? AND chunk_number = ?", uploadID, number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get chunk", err)
	}
	return c, nil
}

func (r *Repository) UpdateChunk(c *Chunk) error {
	return wrap("update chunk", r.db.Save(c).Error)
}

func (r *Repository) DeleteChunkByID(id uint) error {
	return wrap("delete chunk", r.db.Delete(&Chunk{}, id).Error)
}

func (r *Repository) CreateShare(s *Share) error {
	return wrap("create share", r.db.Create(s).Error)
}

// GetShare returns the share with the given id, or nil when none
// exists.
func (r *Repository) GetShare(id int64) (*Share, error) {
	s := &Share{}
	err := r.db.First(s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get share", err)
	}
	return s, nil
}

func (r *Repository) UpdateShare(s *Share) error {
	return wrap("update share", r.db.Save(s).Error)
}

func (r *Repository) DeleteShare(id int64) error {
	return wrap("delete share", r.db.Delete(&Share{}, "id = ?", id).Error)
}

func (r *Repository) ListShares() ([]*Share, error) {
	var res []*Share
	err := r.db.Find(&res).Error
	return res, wrap("list shares", err)
}
