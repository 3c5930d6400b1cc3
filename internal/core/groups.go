package core

import (
	"context"
	"sort"

	"cargohold/internal/adapters"
	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

// SaveGroup writes the group and links every member, which must already be
// stored. Existing memberships are kept.
func (s *Service) SaveGroup(ctx context.Context, group *domain.ArtifactIDGroup) (*domain.ArtifactIDGroup, error) {
	var saved *domain.ArtifactIDGroup
	err := s.run(ctx, "save_group", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx graph.Tx) error {
			var err error
			saved, err = s.writeGroup(tx, group)
			return err
		})
	})
	return saved, err
}

func (s *Service) writeGroup(tx graph.Tx, group *domain.ArtifactIDGroup) (*domain.ArtifactIDGroup, error) {
	plan, err := s.adapters.Groups.Unfold(group)
	if err != nil {
		return nil, err
	}
	v, err := adapters.Apply(tx, plan)
	if err != nil {
		return nil, err
	}
	saved, _, err := s.adapters.Groups.Fold().Run(tx, v.ID)
	return saved, err
}

// FindGroup folds the named group of a repository with its members.
func (s *Service) FindGroup(ctx context.Context, storageID, repositoryID, name string) (*domain.ArtifactIDGroup, error) {
	var found *domain.ArtifactIDGroup
	err := s.run(ctx, "find_group", func(ctx context.Context) error {
		return s.store.View(ctx, func(r graph.Reader) error {
			var err error
			found, err = s.foldGroup(r, storageID, repositoryID, name)
			return err
		})
	})
	return found, err
}

func (s *Service) foldGroup(r graph.Reader, storageID, repositoryID, name string) (*domain.ArtifactIDGroup, error) {
	v, ok := findGroupVertex(r, storageID, repositoryID, name)
	if !ok {
		return nil, domain.NotFoundError{Entity: "artifact id group", ID: storageID + "/" + repositoryID + "/" + name}
	}
	g, ok, err := s.adapters.Groups.Fold().Run(r, v.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NotFoundError{Entity: "artifact id group", ID: name}
	}
	return g, nil
}

func findGroupVertex(r graph.Reader, storageID, repositoryID, name string) (graph.Vertex, bool) {
	for _, v := range r.VerticesByLabel(domain.LabelArtifactIDGroup) {
		if r.Property(v.ID, domain.PropStorageID) == storageID &&
			r.Property(v.ID, domain.PropRepositoryID) == repositoryID &&
			r.Property(v.ID, domain.PropName) == name {
			return v, true
		}
	}
	return graph.Vertex{}, false
}

// ListGroups folds every group, optionally restricted to one repository,
// ordered by name.
func (s *Service) ListGroups(ctx context.Context, storageID, repositoryID string) ([]*domain.ArtifactIDGroup, error) {
	var out []*domain.ArtifactIDGroup
	err := s.run(ctx, "list_groups", func(ctx context.Context) error {
		return s.store.View(ctx, func(r graph.Reader) error {
			all, err := s.adapters.Groups.Fold().RunAll(r, r.VerticesByLabel(domain.LabelArtifactIDGroup))
			if err != nil {
				return err
			}
			for _, g := range all {
				if (storageID == "" || g.StorageID == storageID) && (repositoryID == "" || g.RepositoryID == repositoryID) {
					out = append(out, g)
				}
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// AddArtifactToGroup links the stored artifact uuid to the named group of
// its repository, creating the group on first use.
func (s *Service) AddArtifactToGroup(ctx context.Context, name, uuid string) (*domain.ArtifactIDGroup, error) {
	var saved *domain.ArtifactIDGroup
	err := s.run(ctx, "add_group_member", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx graph.Tx) error {
			node, artifact, err := s.findStored(tx, uuid, uuid)
			if err != nil {
				return err
			}
			var group *domain.ArtifactIDGroup
			if _, exists := findGroupVertex(tx, artifact.StorageID, artifact.RepositoryID, name); exists {
				if group, err = s.foldGroup(tx, artifact.StorageID, artifact.RepositoryID, name); err != nil {
					return err
				}
			} else {
				group = domain.NewArtifactIDGroup(artifact.StorageID, artifact.RepositoryID, name)
			}
			group.Add(node)
			saved, err = s.writeGroup(tx, group)
			return err
		})
	})
	return saved, err
}

// DeleteGroup removes the group together with every member artifact and
// their content.
func (s *Service) DeleteGroup(ctx context.Context, storageID, repositoryID, name string) error {
	return s.run(ctx, "delete_group", func(ctx context.Context) error {
		var group *domain.ArtifactIDGroup
		if err := s.store.View(ctx, func(r graph.Reader) error {
			var err error
			group, err = s.foldGroup(r, storageID, repositoryID, name)
			return err
		}); err != nil {
			return err
		}
		members := make([]*domain.Artifact, 0, len(group.Artifacts))
		keys := make([]string, 0, len(group.Artifacts))
		for _, node := range group.Artifacts {
			if a := domain.ArtifactOf(node); a != nil {
				members = append(members, a)
				keys = append(keys, lockKey(a))
			}
		}
		release, err := s.lockAll(ctx, keys)
		if err != nil {
			return err
		}
		defer release()
		var removed int
		err = s.store.RunInTransaction(ctx, func(tx graph.Tx) error {
			v, ok := findGroupVertex(tx, storageID, repositoryID, name)
			if !ok {
				return domain.NotFoundError{Entity: "artifact id group", ID: name}
			}
			set, err := s.adapters.Groups.Cascade(tx, v.ID)
			if err != nil {
				return err
			}
			removed = set.Len()
			return set.Drop(tx)
		})
		if err != nil {
			return err
		}
		s.logger.Info("artifact id group deleted", "name", name, "members", len(members), "vertices", removed)
		for _, a := range members {
			if err := s.removeContent(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// lockAll takes the locks in key order so concurrent callers cannot deadlock.
func (s *Service) lockAll(ctx context.Context, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		release, err := s.locks.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
