// Package domain defines the artifact repository entities that are mapped to
// and from the property graph.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Base carries the identity shared by every mapped entity. UUID is the
// logical identity; NativeID is the engine vertex id assigned on fold and is
// informational only.
type Base struct {
	UUID     string `json:"uuid"`
	NativeID string `json:"native_id,omitempty"`
}

// Identity returns the receiver so embedding types satisfy Entity.
func (b *Base) Identity() *Base { return b }

// Entity is implemented by every mapped domain type.
type Entity interface {
	Identity() *Base
}

// Artifact is one stored file of a repository. It is the root of the
// artifact hierarchy and owns exactly one set of coordinates.
type Artifact struct {
	Base
	hierarchy
	StorageID           string              `json:"storage_id"`
	RepositoryID        string              `json:"repository_id"`
	ArtifactCoordinates ArtifactCoordinates `json:"coordinates"`
	Created             time.Time           `json:"created"`
	LastUpdated         time.Time           `json:"last_updated"`
	LastUsed            time.Time           `json:"last_used"`
	SizeInBytes         int64               `json:"size_in_bytes"`
	DownloadCount       int64               `json:"download_count"`
	Filenames           []string            `json:"filenames,omitempty"`
	Checksums           map[string]string   `json:"checksums,omitempty"`
	Tags                []*ArtifactTag      `json:"tags,omitempty"`
	ArtifactFileExists  bool                `json:"artifact_file_exists"`
}

// NewArtifact constructs an artifact in the given repository with the
// supplied coordinates and derives its uuid.
func NewArtifact(storageID, repositoryID string, coordinates ArtifactCoordinates) (*Artifact, error) {
	a := &Artifact{StorageID: storageID, RepositoryID: repositoryID, ArtifactCoordinates: coordinates}
	if err := a.EnsureUUID(); err != nil {
		return nil, err
	}
	return a, nil
}

// Path returns the repository-relative path of the artifact.
func (a *Artifact) Path() string {
	if a.ArtifactCoordinates == nil {
		return ""
	}
	return a.ArtifactCoordinates.Path()
}

// Validate reports missing required fields.
func (a *Artifact) Validate() error {
	switch {
	case a.StorageID == "":
		return fmt.Errorf("%w: artifact storage id is empty", ErrInvalid)
	case a.RepositoryID == "":
		return fmt.Errorf("%w: artifact repository id is empty", ErrInvalid)
	case a.ArtifactCoordinates == nil:
		return fmt.Errorf("%w: artifact %s/%s has no coordinates", ErrInvalid, a.StorageID, a.RepositoryID)
	}
	return ValidateCoordinates(a.ArtifactCoordinates)
}

// EnsureUUID derives the artifact uuid from storage, repository and path when
// it is unset. Coordinates get their own uuid as a side effect. An artifact
// whose coordinates were edited after its uuid was derived is rejected with
// ErrIdentityConflict.
func (a *Artifact) EnsureUUID() error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := EnsureCoordinatesUUID(a.ArtifactCoordinates); err != nil {
		return err
	}
	want := ArtifactUUID(a.StorageID, a.RepositoryID, a.Path())
	switch a.UUID {
	case "":
		a.UUID = want
	case want:
	default:
		return fmt.Errorf("%w: artifact %s now resolves to %s/%s/%s", ErrIdentityConflict, a.UUID, a.StorageID, a.RepositoryID, a.Path())
	}
	return nil
}

// TagNames returns the names of the artifact tags in order.
func (a *Artifact) TagNames() []string {
	names := make([]string, 0, len(a.Tags))
	for _, tag := range a.Tags {
		names = append(names, tag.Name)
	}
	return names
}

// RemoteArtifact is an artifact mirrored from a remote repository. It is a
// child level of the artifact hierarchy and shares the artifact uuid.
type RemoteArtifact struct {
	Base
	hierarchy
	Cached bool `json:"cached"`
}

// NewRemoteArtifact links a remote level below artifact.
func NewRemoteArtifact(artifact *Artifact, cached bool) *RemoteArtifact {
	r := &RemoteArtifact{Base: Base{UUID: artifact.UUID}, Cached: cached}
	Link(artifact, r)
	return r
}

// Artifact returns the artifact this remote level extends, or nil.
func (r *RemoteArtifact) Artifact() *Artifact {
	return ArtifactOf(r)
}

// ArtifactTag labels artifacts, e.g. "release" or "latest". Tags are shared:
// the name is the identity.
type ArtifactTag struct {
	Base
	Name string `json:"name"`
}

// NewArtifactTag constructs a tag whose uuid is its name.
func NewArtifactTag(name string) *ArtifactTag {
	return &ArtifactTag{Base: Base{UUID: name}, Name: name}
}

// ArtifactIDGroup gathers the artifacts of one artifact id within a
// repository, for example every version of a Maven artifactId.
type ArtifactIDGroup struct {
	Base
	StorageID    string          `json:"storage_id"`
	RepositoryID string          `json:"repository_id"`
	Name         string          `json:"name"`
	Artifacts    []HierarchyNode `json:"-"`
}

// NewArtifactIDGroup constructs an empty group with a random uuid.
func NewArtifactIDGroup(storageID, repositoryID, name string) *ArtifactIDGroup {
	return &ArtifactIDGroup{Base: Base{UUID: uuid.NewString()}, StorageID: storageID, RepositoryID: repositoryID, Name: name}
}

// Validate reports missing required fields.
func (g *ArtifactIDGroup) Validate() error {
	if g.StorageID == "" || g.RepositoryID == "" || g.Name == "" {
		return fmt.Errorf("%w: artifact id group requires storage, repository and name", ErrInvalid)
	}
	return nil
}

// Add appends node unless an artifact with the same uuid is already present.
func (g *ArtifactIDGroup) Add(node HierarchyNode) {
	for _, existing := range g.Artifacts {
		if existing.Identity().UUID == node.Identity().UUID {
			return
		}
	}
	g.Artifacts = append(g.Artifacts, node)
}
