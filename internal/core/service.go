// Package core runs the repository operations: saving, finding and deleting
// artifacts and artifact id groups through the mapping layer, inside store
// transactions and under per-path write locks.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"cargohold/internal/adapters"
	"cargohold/internal/blob"
	"cargohold/internal/infra/graph/memory"
	"cargohold/internal/lock"
	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

// Service exposes transactional artifact operations over a graph store.
type Service struct {
	store    graph.Store
	adapters *adapters.Adapters
	locks    *lock.Manager
	content  *ContentStore
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the operation tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithLocks replaces the default lock manager.
func WithLocks(locks *lock.Manager) Option {
	return func(s *Service) {
		if locks != nil {
			s.locks = locks
		}
	}
}

// WithContentStore enables Deploy, Fetch and content removal on delete.
func WithContentStore(content *ContentStore) Option {
	return func(s *Service) { s.content = content }
}

// WithAdapters replaces the default adapter set.
func WithAdapters(a *adapters.Adapters) Option {
	return func(s *Service) { s.adapters = a }
}

// WithClock overrides the time source for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a service backed by store.
func NewService(store graph.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("graph store required")
	}
	s := &Service{
		store:   store,
		locks:   lock.New(lock.DefaultTimeout),
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.adapters == nil {
		a, err := adapters.Default()
		if err != nil {
			return nil, fmt.Errorf("wire adapters: %w", err)
		}
		s.adapters = a
	}
	return s, nil
}

// NewInMemoryService creates a service over a fresh in-memory graph.
func NewInMemoryService(opts ...Option) (*Service, error) {
	return NewService(memory.NewStore(memory.WithConstraints(DefaultConstraints()...)), opts...)
}

// Store returns the underlying graph store.
func (s *Service) Store() graph.Store { return s.store }

// Adapters returns the adapter set the service maps with.
func (s *Service) Adapters() *adapters.Adapters { return s.adapters }

func (s *Service) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	elapsed := time.Since(started)
	s.metrics.Observe(ctx, operation, err == nil, elapsed)
	if err != nil {
		s.logger.Warn("operation failed", "operation", operation, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", operation, "duration", elapsed)
	}
	return err
}

// SaveArtifact writes the artifact chain containing node and returns it as
// stored. Created is set on first save and kept afterwards; LastUpdated is
// refreshed on every save.
func (s *Service) SaveArtifact(ctx context.Context, node domain.HierarchyNode) (domain.HierarchyNode, error) {
	var saved domain.HierarchyNode
	err := s.run(ctx, "save_artifact", func(ctx context.Context) error {
		artifact, err := artifactOf(node)
		if err != nil {
			return err
		}
		release, err := s.locks.Lock(ctx, lockKey(artifact))
		if err != nil {
			return err
		}
		defer release()
		saved, err = s.save(ctx, node, artifact)
		return err
	})
	return saved, err
}

func artifactOf(node domain.HierarchyNode) (*domain.Artifact, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil artifact", domain.ErrInvalid)
	}
	artifact := domain.ArtifactOf(node)
	if artifact == nil {
		return nil, domain.StructuralMismatchf(node, "chain has no artifact level")
	}
	if err := artifact.EnsureUUID(); err != nil {
		return nil, err
	}
	return artifact, nil
}

func lockKey(a *domain.Artifact) string {
	return blob.ArtifactKey(a.StorageID, a.RepositoryID, a.Path())
}

// save must run under the artifact path lock.
func (s *Service) save(ctx context.Context, node domain.HierarchyNode, artifact *domain.Artifact) (domain.HierarchyNode, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	if artifact.Created.IsZero() {
		artifact.Created = now
	}
	artifact.LastUpdated = now
	var saved domain.HierarchyNode
	err := s.store.RunInTransaction(ctx, func(tx graph.Tx) error {
		var err error
		saved, err = s.write(tx, node, artifact.UUID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("artifact saved", "uuid", artifact.UUID, "storage", artifact.StorageID,
		"repository", artifact.RepositoryID, "path", artifact.Path())
	return saved, nil
}

func (s *Service) write(tx graph.Tx, node domain.HierarchyNode, uuid string) (domain.HierarchyNode, error) {
	leaf := domain.Leaf(node, s.adapters.Artifacts.MaxDepth()+1)
	plan, err := s.adapters.Artifacts.Unfold(leaf)
	if err != nil {
		return nil, err
	}
	if _, err := adapters.Apply(tx, plan); err != nil {
		return nil, err
	}
	saved, ok, err := s.adapters.Artifacts.Find(tx, uuid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("artifact %s missing after save", uuid)
	}
	return saved, nil
}

// FindArtifact folds the artifact stored at path in a repository.
func (s *Service) FindArtifact(ctx context.Context, storageID, repositoryID, path string) (domain.HierarchyNode, error) {
	var found domain.HierarchyNode
	err := s.run(ctx, "find_artifact", func(ctx context.Context) error {
		var err error
		found, _, err = s.lookup(ctx, domain.ArtifactUUID(storageID, repositoryID, strings.Trim(path, "/")),
			storageID+"/"+repositoryID+"/"+path)
		return err
	})
	return found, err
}

// FindArtifactByUUID folds the artifact with uuid from its most derived level.
func (s *Service) FindArtifactByUUID(ctx context.Context, uuid string) (domain.HierarchyNode, error) {
	var found domain.HierarchyNode
	err := s.run(ctx, "find_artifact", func(ctx context.Context) error {
		var err error
		found, _, err = s.lookup(ctx, uuid, uuid)
		return err
	})
	return found, err
}

func (s *Service) lookup(ctx context.Context, uuid, display string) (domain.HierarchyNode, *domain.Artifact, error) {
	var (
		found    domain.HierarchyNode
		artifact *domain.Artifact
	)
	err := s.store.View(ctx, func(r graph.Reader) error {
		var err error
		found, artifact, err = s.findStored(r, uuid, display)
		return err
	})
	return found, artifact, err
}

// findStored folds uuid and rejects a chain that never reaches an artifact
// level, such as a remote artifact stored without its parent.
func (s *Service) findStored(r graph.Reader, uuid, display string) (domain.HierarchyNode, *domain.Artifact, error) {
	node, ok, err := s.adapters.Artifacts.Find(r, uuid)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, domain.NotFoundError{Entity: "artifact", ID: display}
	}
	artifact := domain.ArtifactOf(node)
	if artifact == nil {
		return nil, nil, domain.StructuralMismatchf(node, "stored chain %s has no artifact level", display)
	}
	return node, artifact, nil
}

// ListArtifacts folds every artifact, optionally restricted to one storage
// and repository, ordered by path.
func (s *Service) ListArtifacts(ctx context.Context, storageID, repositoryID string) ([]domain.HierarchyNode, error) {
	var out []domain.HierarchyNode
	err := s.run(ctx, "list_artifacts", func(ctx context.Context) error {
		return s.store.View(ctx, func(r graph.Reader) error {
			all, err := s.adapters.Artifacts.FoldAll(r)
			if err != nil {
				return err
			}
			for _, node := range all {
				a := domain.ArtifactOf(node)
				if a == nil {
					continue
				}
				if (storageID == "" || a.StorageID == storageID) && (repositoryID == "" || a.RepositoryID == repositoryID) {
					out = append(out, node)
				}
			}
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool {
		return domain.ArtifactOf(out[i]).Path() < domain.ArtifactOf(out[j]).Path()
	})
	return out, err
}

// ListCoordinates folds every stored coordinates vertex to its layout type.
func (s *Service) ListCoordinates(ctx context.Context) ([]domain.ArtifactCoordinates, error) {
	var out []domain.ArtifactCoordinates
	err := s.run(ctx, "list_coordinates", func(ctx context.Context) error {
		return s.store.View(ctx, func(r graph.Reader) error {
			var err error
			out, err = s.adapters.Coordinates.FoldAll(r)
			return err
		})
	})
	return out, err
}

// ListTags returns every tag, ordered by name.
func (s *Service) ListTags(ctx context.Context) ([]*domain.ArtifactTag, error) {
	var out []*domain.ArtifactTag
	err := s.run(ctx, "list_tags", func(ctx context.Context) error {
		return s.store.View(ctx, func(r graph.Reader) error {
			var err error
			out, err = s.adapters.Tags.Fold().RunAll(r, r.VerticesByLabel(domain.LabelArtifactTag))
			return err
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// DeleteArtifact removes the artifact with every level, its coordinates when
// no other artifact shares them, and its stored content.
func (s *Service) DeleteArtifact(ctx context.Context, uuid string) error {
	return s.run(ctx, "delete_artifact", func(ctx context.Context) error {
		_, artifact, err := s.lookup(ctx, uuid, uuid)
		if err != nil {
			return err
		}
		release, err := s.locks.Lock(ctx, lockKey(artifact))
		if err != nil {
			return err
		}
		defer release()
		var removed int
		err = s.store.RunInTransaction(ctx, func(tx graph.Tx) error {
			v, ok := s.adapters.Artifacts.Locate(tx, uuid)
			if !ok {
				return domain.NotFoundError{Entity: "artifact", ID: uuid}
			}
			set, err := s.adapters.Artifacts.Cascade(tx, v.ID)
			if err != nil {
				return err
			}
			removed = set.Len()
			return set.Drop(tx)
		})
		if err != nil {
			return err
		}
		s.logger.Info("artifact deleted", "uuid", uuid, "path", artifact.Path(), "vertices", removed)
		return s.removeContent(ctx, artifact)
	})
}

func (s *Service) removeContent(ctx context.Context, artifact *domain.Artifact) error {
	if s.content == nil || !artifact.ArtifactFileExists {
		return nil
	}
	if _, err := s.content.Delete(ctx, artifact.StorageID, artifact.RepositoryID, artifact.Path()); err != nil {
		return fmt.Errorf("delete content of %s: %w", artifact.Path(), err)
	}
	return nil
}

// RecordDownload increments the download count and sets LastUsed.
func (s *Service) RecordDownload(ctx context.Context, uuid string) (domain.HierarchyNode, error) {
	var updated domain.HierarchyNode
	err := s.run(ctx, "record_download", func(ctx context.Context) error {
		var err error
		updated, err = s.recordDownload(ctx, uuid)
		return err
	})
	return updated, err
}

func (s *Service) recordDownload(ctx context.Context, uuid string) (domain.HierarchyNode, error) {
	_, artifact, err := s.lookup(ctx, uuid, uuid)
	if err != nil {
		return nil, err
	}
	release, err := s.locks.Lock(ctx, lockKey(artifact))
	if err != nil {
		return nil, err
	}
	defer release()
	var updated domain.HierarchyNode
	err = s.store.RunInTransaction(ctx, func(tx graph.Tx) error {
		current, stored, err := s.findStored(tx, uuid, uuid)
		if err != nil {
			return err
		}
		stored.DownloadCount++
		stored.LastUsed = s.now().UTC().Truncate(time.Millisecond)
		updated, err = s.write(tx, current, uuid)
		return err
	})
	return updated, err
}

// DeployRequest describes an artifact upload.
type DeployRequest struct {
	StorageID    string
	RepositoryID string
	Coordinates  domain.ArtifactCoordinates
	Content      io.Reader
	ContentType  string
	// Tags are added to the tags the artifact already carries.
	Tags []string
	// Overwrite replaces existing content; without it redeploying a path
	// fails with blob.ErrExists.
	Overwrite bool
}

// Deploy stores the content, fills size, checksums and file names, and saves
// the artifact. An existing artifact at the same path keeps its other fields.
func (s *Service) Deploy(ctx context.Context, req DeployRequest) (domain.HierarchyNode, error) {
	var saved domain.HierarchyNode
	err := s.run(ctx, "deploy_artifact", func(ctx context.Context) error {
		if s.content == nil {
			return fmt.Errorf("%w: deploy without a content store", domain.ErrUnsupported)
		}
		if req.Content == nil {
			return fmt.Errorf("%w: deploy without content", domain.ErrInvalid)
		}
		fresh := &domain.Artifact{StorageID: req.StorageID, RepositoryID: req.RepositoryID, ArtifactCoordinates: req.Coordinates}
		if err := fresh.EnsureUUID(); err != nil {
			return err
		}
		release, err := s.locks.Lock(ctx, lockKey(fresh))
		if err != nil {
			return err
		}
		defer release()

		var node domain.HierarchyNode = fresh
		artifact := fresh
		existing, stored, err := s.lookup(ctx, fresh.UUID, fresh.Path())
		switch {
		case err == nil:
			node, artifact = existing, stored
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		var backup *Backup
		if existing != nil && req.Overwrite {
			if backup, err = s.content.Backup(ctx, artifact.StorageID, artifact.RepositoryID, artifact.Path()); err != nil {
				return err
			}
			defer backup.Discard()
		}
		content, err := s.content.Put(ctx, artifact.StorageID, artifact.RepositoryID, artifact.Path(), req.Content, req.ContentType, req.Overwrite)
		if err != nil {
			return err
		}
		artifact.SizeInBytes = content.Size
		artifact.Checksums = content.Checksums
		artifact.Filenames = content.Filenames
		artifact.ArtifactFileExists = true
		artifact.Tags = mergeTags(artifact.Tags, req.Tags)
		saved, err = s.save(ctx, node, artifact)
		if err != nil {
			s.rollbackContent(ctx, artifact, content.Key, existing == nil, backup)
		}
		return err
	})
	return saved, err
}

// rollbackContent undoes the blob write of a deploy whose save failed: new
// content is deleted, overwritten content is put back from backup.
func (s *Service) rollbackContent(ctx context.Context, artifact *domain.Artifact, key string, created bool, backup *Backup) {
	var err error
	switch {
	case created:
		_, err = s.content.Delete(ctx, artifact.StorageID, artifact.RepositoryID, artifact.Path())
	case backup != nil:
		err = s.content.Restore(ctx, backup)
	}
	if err != nil {
		s.logger.Error("content left inconsistent after failed deploy", "key", key, "error", err)
	}
}

func mergeTags(tags []*domain.ArtifactTag, names []string) []*domain.ArtifactTag {
	seen := make(map[string]bool, len(tags)+len(names))
	out := make([]*domain.ArtifactTag, 0, len(tags)+len(names))
	for _, t := range tags {
		if !seen[t.Name] {
			seen[t.Name] = true
			out = append(out, t)
		}
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, domain.NewArtifactTag(name))
		}
	}
	return out
}

// Fetch opens the stored content of an artifact and records the download.
// The caller closes the reader.
func (s *Service) Fetch(ctx context.Context, storageID, repositoryID, path string) (domain.HierarchyNode, io.ReadCloser, error) {
	var (
		node domain.HierarchyNode
		rc   io.ReadCloser
	)
	err := s.run(ctx, "fetch_artifact", func(ctx context.Context) error {
		if s.content == nil {
			return fmt.Errorf("%w: fetch without a content store", domain.ErrUnsupported)
		}
		path = strings.Trim(path, "/")
		uuid := domain.ArtifactUUID(storageID, repositoryID, path)
		if _, _, err := s.lookup(ctx, uuid, storageID+"/"+repositoryID+"/"+path); err != nil {
			return err
		}
		_, body, err := s.content.Open(ctx, storageID, repositoryID, path)
		if err != nil {
			return err
		}
		node, err = s.recordDownload(ctx, uuid)
		if err != nil {
			_ = body.Close()
			return err
		}
		rc = body
		return nil
	})
	return node, rc, err
}
