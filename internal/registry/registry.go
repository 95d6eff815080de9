// Package registry is the content-addressable tool library: payload files
// on disk, metadata rows in SQLite keyed by a unique content hash.
// Registration is idempotent and single-writer; the gateway is the only
// component that holds a mutating handle.
package registry

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/anthropics/tool-foundry/internal/domain"
	"github.com/anthropics/tool-foundry/internal/store"
)

// ContentHash is the artifact identity function: SHA-256 over the exact
// source bytes, hex encoded.
func ContentHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Registry stores and serves tool artifacts.
type Registry struct {
	db        *sql.DB
	artifacts *store.ArtifactRepo
	dir       string
	logger    *zap.Logger

	// mu gives register/rollback a single-writer discipline; the unique
	// constraint on content_hash backs it up at the database layer, and
	// the singleflight group collapses concurrent byte-identical
	// registrations onto one insert-or-fetch.
	mu    sync.Mutex
	group singleflight.Group
}

// Registration describes a candidate being committed to the library.
type Registration struct {
	Name         string
	Version      string
	Category     domain.ToolCategory
	Capabilities []string
	ContractID   string
	HighestStage domain.VerifyStage
	Source       string
}

// New creates a registry writing payload files under dir.
func New(db *sql.DB, dir string, logger *zap.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.WrapFoundryError(domain.ErrStoreInit.Code, "create artifacts dir", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		db:        db,
		artifacts: &store.ArtifactRepo{},
		dir:       dir,
		logger:    logger,
	}, nil
}

// Register persists a verified candidate. The content hash is computed
// before any other work; if an artifact with that hash already exists the
// existing artifact is returned unchanged, with no duplicate storage file
// and no duplicate metadata row. Concurrent registrations of identical
// bytes all observe the same winning artifact.
func (r *Registry) Register(ctx context.Context, reg Registration) (*domain.ToolArtifact, error) {
	hash := ContentHash(reg.Source)

	v, err, _ := r.group.Do(hash, func() (any, error) {
		return r.registerOne(ctx, reg, hash)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ToolArtifact), nil
}

func (r *Registry) registerOne(ctx context.Context, reg Registration, hash string) (*domain.ToolArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, err := r.artifacts.GetByHash(ctx, r.db, hash); err != nil {
		return nil, err
	} else if existing != nil {
		r.logger.Debug("registration deduplicated by content hash",
			zap.String("artifact_id", existing.ID),
			zap.String("hash", hash[:8]))
		return existing, nil
	}

	version := reg.Version
	if version == "" {
		version = "1.0.0"
	}
	id := fmt.Sprintf("%s_%s_%s", sanitize(reg.Name), version, hash[:8])
	path := filepath.Join(r.dir, id+".py")

	if err := os.WriteFile(path, []byte(reg.Source), 0o644); err != nil {
		return nil, domain.WrapFoundryError(domain.ErrStoreWrite.Code, "write artifact payload", err)
	}

	artifact := domain.ToolArtifact{
		ID:            id,
		Name:          reg.Name,
		Version:       version,
		ContentHash:   hash,
		StoragePath:   path,
		Category:      reg.Category,
		Capabilities:  reg.Capabilities,
		ContractID:    reg.ContractID,
		Status:        domain.StatusProvisional,
		HighestStage:  reg.HighestStage,
		CreatedAtUnix: time.Now().Unix(),
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.WrapFoundryError(domain.ErrStoreWrite.Code, "begin tx", err)
	}
	defer tx.Rollback()

	if err := r.artifacts.InsertTx(ctx, tx, artifact); err != nil {
		// A racing writer outside this process may have won; the unique
		// constraint turned our insert into a no-op lookup.
		os.Remove(path)
		if existing, lookupErr := r.artifacts.GetByHash(ctx, r.db, hash); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, domain.WrapFoundryError(domain.ErrStoreWrite.Code, "insert artifact", err)
	}
	if err := tx.Commit(); err != nil {
		os.Remove(path)
		return nil, domain.WrapFoundryError(domain.ErrStoreWrite.Code, "commit artifact", err)
	}

	r.logger.Info("artifact registered",
		zap.String("artifact_id", artifact.ID),
		zap.String("category", string(artifact.Category)))
	return &artifact, nil
}

// Lookup returns the newest artifact registered under a name, or nil.
func (r *Registry) Lookup(ctx context.Context, name string) (*domain.ToolArtifact, error) {
	return r.artifacts.GetLatestByName(ctx, r.db, name)
}

// Get returns an artifact by id.
func (r *Registry) Get(ctx context.Context, id string) (*domain.ToolArtifact, error) {
	return r.artifacts.GetByID(ctx, r.db, id)
}

// List returns every artifact in creation order.
func (r *Registry) List(ctx context.Context) ([]domain.ToolArtifact, error) {
	return r.artifacts.List(ctx, r.db)
}

// Source reads an artifact's payload bytes back from storage.
func (r *Registry) Source(ctx context.Context, id string) (string, error) {
	a, err := r.artifacts.GetByID(ctx, r.db, id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(a.StoragePath)
	if err != nil {
		return "", domain.WrapFoundryError(domain.ErrStoreQuery.Code, "read artifact payload", err)
	}
	return string(data), nil
}

// validStatusTransitions are the only legal lifecycle moves. Nothing ever
// moves backwards.
var validStatusTransitions = map[domain.ToolStatus]map[domain.ToolStatus]bool{
	domain.StatusProvisional: {domain.StatusVerified: true, domain.StatusFailed: true},
	domain.StatusVerified:    {domain.StatusDeprecated: true},
}

// SetStatus moves an artifact along its lifecycle, rejecting any
// transition not in the forward set.
func (r *Registry) SetStatus(ctx context.Context, id string, to domain.ToolStatus) error {
	a, err := r.artifacts.GetByID(ctx, r.db, id)
	if err != nil {
		return err
	}
	if !validStatusTransitions[a.Status][to] {
		return domain.NewFoundryError(
			domain.ErrStatusTransition.Code,
			fmt.Sprintf("illegal status transition %s -> %s for %s", a.Status, to, id),
		)
	}
	return r.artifacts.UpdateStatus(ctx, r.db, id, to, a.HighestStage)
}

// Mark returns a rollback mark: the current end of the artifact table.
func (r *Registry) Mark(ctx context.Context) (int64, error) {
	return r.artifacts.MaxRow(ctx, r.db)
}

// RollbackTo removes every artifact registered after the mark, metadata
// and payload files both. Used by the gateway to discard a checkpoint's
// pending changes.
func (r *Registry) RollbackTo(ctx context.Context, mark int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapFoundryError(domain.ErrRollbackFailed.Code, "begin tx", err)
	}
	defer tx.Rollback()

	paths, err := r.artifacts.DeleteAboveRowTx(ctx, tx, mark)
	if err != nil {
		return domain.WrapFoundryError(domain.ErrRollbackFailed.Code, domain.ErrRollbackFailed.Message, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapFoundryError(domain.ErrRollbackFailed.Code, "commit rollback", err)
	}

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("orphaned payload file after rollback", zap.String("path", p), zap.Error(err))
		}
	}
	return nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
