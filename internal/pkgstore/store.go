// Package pkgstore persists package records and their generation progress.
package pkgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("pkgstore: package not found")
	ErrInvalid  = errors.New("pkgstore: invalid package")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Package is one uploaded installer and the script generated for it.
type Package struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	InstallerPath string    `json:"installer_path,omitempty"`
	ScriptText    string    `json:"script_text,omitempty"`
	UserNotes     string    `json:"user_notes,omitempty"`
	Status        Status    `json:"status"`
	Progress      int       `json:"progress"`
	StatusMessage string    `json:"status_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Progress is a partial status update.
type Progress struct {
	Status  Status
	Percent int
	Message string
}

type Store interface {
	Create(ctx context.Context, p Package) (Package, error)
	Get(ctx context.Context, id string) (Package, error)
	// List returns packages newest first.
	List(ctx context.Context, limit, offset int) ([]Package, error)
	Update(ctx context.Context, p Package) (Package, error)
	SetProgress(ctx context.Context, id string, pr Progress) (Package, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

const DefaultListLimit = 100

// prepareNew assigns id, timestamps and defaults for a new record.
func prepareNew(p Package, now time.Time) (Package, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Version = strings.TrimSpace(p.Version)
	if p.Name == "" || p.Version == "" {
		return Package{}, fmt.Errorf("%w: name and version are required", ErrInvalid)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if err := check(p); err != nil {
		return Package{}, err
	}
	p.CreatedAt = now.UTC()
	p.UpdatedAt = p.CreatedAt
	return p, nil
}

func check(p Package) error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalid, p.Status)
	}
	if p.Progress < 0 || p.Progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalid, p.Progress)
	}
	return nil
}

func applyProgress(p Package, pr Progress) (Package, error) {
	if pr.Status != "" {
		p.Status = pr.Status
	}
	p.Progress = pr.Percent
	p.StatusMessage = pr.Message
	return p, check(p)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
