// Package share manages the catalog of files exposed for download.
package share

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/localshare/share-go/internal/database"
	"github.com/localshare/share-go/internal/fsutil"
	"github.com/localshare/share-go/internal/idgen"
)

// ErrShareNotFound is returned when a share id is unknown or its file
// is no longer readable on disk.
var ErrShareNotFound = errors.New("share not found")

// ErrFileNotFound is returned when a path offered for sharing does not
// point at a regular file.
var ErrFileNotFound = errors.New("file not found")

type Service struct {
	repo *database.Repository
	ids  *idgen.Generator
	l    *log.Entry
}

func NewService(repo *database.Repository, ids *idgen.Generator, l *log.Entry) *Service {
	return &Service{repo: repo, ids: ids, l: l}
}

// Add registers a file on disk as a downloadable share and returns its
// id.
func (s *Service) Add(filePath, fileName, mimeType string) (int64, error) {
	exists, err := fsutil.ExistsFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to check shared file: %w", err)
	}
	if !exists {
		return 0, ErrFileNotFound
	}
	rec := &database.Share{
		ID:       s.ids.Next(),
		FileName: fileName,
		FilePath: filePath,
		MimeType: mimeType,
	}
	if err := s.repo.CreateShare(rec); err != nil {
		return 0, fmt.Errorf("failed to save share: %w", err)
	}
	s.l.WithFields(log.Fields{"share_id": rec.ID, "file_name": fileName}).Info("share added")
	return rec.ID, nil
}

// Remove deletes a share record. The file itself stays on disk.
func (s *Service) Remove(id int64) error {
	rec, err := s.repo.GetShare(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrShareNotFound
	}
	if err := s.repo.DeleteShare(id); err != nil {
		return err
	}
	s.l.WithField("share_id", id).Info("share removed")
	return nil
}

func (s *Service) List() ([]*database.Share, error) {
	return s.repo.ListShares()
}

// Open resolves a share id to its record and an open handle on the
// underlying file. The caller owns closing the handle.
func (s *Service) Open(id int64) (*database.Share, *os.File, error) {
	rec, err := s.repo.GetShare(id)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, ErrShareNotFound
	}
	f, err := os.Open(rec.FilePath)
	if err != nil {
		s.l.WithError(err).WithField("share_id", id).Warn("shared file is not readable")
		return nil, nil, ErrShareNotFound
	}
	return rec, f, nil
}
