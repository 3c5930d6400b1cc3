package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Layout names a repository layout.
type Layout string

// Supported layouts.
const (
	LayoutGeneric Layout = "generic"
	LayoutRaw     Layout = "raw"
	LayoutMaven   Layout = "maven"
	LayoutNuget   Layout = "nuget"
)

// Coordinate keys used by the layouts.
const (
	CoordinatePath       = "path"
	CoordinateGroupID    = "groupId"
	CoordinateArtifactID = "artifactId"
	CoordinateClassifier = "classifier"
	CoordinateExtension  = "extension"
	CoordinateID         = "id"
)

// ArtifactCoordinates locate an artifact within a repository. The set of
// implementations is closed: the generic root and one type per layout.
type ArtifactCoordinates interface {
	Entity
	Layout() Layout
	// Generic returns the layout-independent root holding version and the
	// dynamic coordinate map.
	Generic() *GenericArtifactCoordinates
	Path() string
}

// LayoutCoordinates is implemented by every layout-specific coordinates type.
type LayoutCoordinates interface {
	ArtifactCoordinates
	SetGeneric(*GenericArtifactCoordinates)
}

// GenericArtifactCoordinates is the root of the coordinates hierarchy.
type GenericArtifactCoordinates struct {
	Base
	Version     string            `json:"version,omitempty"`
	Coordinates map[string]string `json:"coordinates,omitempty"`
}

// Layout reports LayoutGeneric.
func (g *GenericArtifactCoordinates) Layout() Layout { return LayoutGeneric }

// Generic returns g.
func (g *GenericArtifactCoordinates) Generic() *GenericArtifactCoordinates { return g }

// Coordinate returns one dynamic coordinate.
func (g *GenericArtifactCoordinates) Coordinate(key string) string {
	return g.Coordinates[key]
}

// SetCoordinate stores one dynamic coordinate; an empty value removes it.
func (g *GenericArtifactCoordinates) SetCoordinate(key, value string) {
	if value == "" {
		delete(g.Coordinates, key)
		return
	}
	if g.Coordinates == nil {
		g.Coordinates = make(map[string]string)
	}
	g.Coordinates[key] = value
}

// Path returns the "path" coordinate or, when absent, the sorted key=value
// pairs joined with "/".
func (g *GenericArtifactCoordinates) Path() string {
	if p := g.Coordinates[CoordinatePath]; p != "" {
		return p
	}
	keys := slices.Sorted(maps.Keys(g.Coordinates))
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+"="+g.Coordinates[k])
	}
	if g.Version != "" {
		parts = append(parts, "version="+g.Version)
	}
	return strings.Join(parts, "/")
}

// LayoutArtifactCoordinates is embedded by every layout type and points at
// the generic root.
type LayoutArtifactCoordinates struct {
	Base
	generic *GenericArtifactCoordinates
}

// Generic returns the root, creating an empty one sharing this uuid on first use.
func (l *LayoutArtifactCoordinates) Generic() *GenericArtifactCoordinates {
	if l.generic == nil {
		l.generic = &GenericArtifactCoordinates{Base: Base{UUID: l.UUID}}
	}
	return l.generic
}

// SetGeneric replaces the root.
func (l *LayoutArtifactCoordinates) SetGeneric(g *GenericArtifactCoordinates) { l.generic = g }

// RawArtifactCoordinates address a file by its free-form path.
type RawArtifactCoordinates struct {
	LayoutArtifactCoordinates
}

// NewRawCoordinates constructs raw coordinates for path.
func NewRawCoordinates(path string) *RawArtifactCoordinates {
	c := &RawArtifactCoordinates{}
	c.Generic().SetCoordinate(CoordinatePath, strings.Trim(path, "/"))
	return c
}

// Layout reports LayoutRaw.
func (c *RawArtifactCoordinates) Layout() Layout { return LayoutRaw }

// Path returns the raw path.
func (c *RawArtifactCoordinates) Path() string { return c.Generic().Coordinate(CoordinatePath) }

// MarshalJSON renders the flattened coordinates.
func (c *RawArtifactCoordinates) MarshalJSON() ([]byte, error) { return marshalCoordinates(c) }

// MavenArtifactCoordinates follow the Maven 2 repository layout.
type MavenArtifactCoordinates struct {
	LayoutArtifactCoordinates
}

// NewMavenCoordinates constructs Maven coordinates. An empty extension
// defaults to "jar".
func NewMavenCoordinates(groupID, artifactID, version, classifier, extension string) *MavenArtifactCoordinates {
	if extension == "" {
		extension = "jar"
	}
	c := &MavenArtifactCoordinates{}
	g := c.Generic()
	g.Version = version
	g.SetCoordinate(CoordinateGroupID, groupID)
	g.SetCoordinate(CoordinateArtifactID, artifactID)
	g.SetCoordinate(CoordinateClassifier, classifier)
	g.SetCoordinate(CoordinateExtension, extension)
	return c
}

// Layout reports LayoutMaven.
func (c *MavenArtifactCoordinates) Layout() Layout { return LayoutMaven }

// GroupID returns the groupId coordinate.
func (c *MavenArtifactCoordinates) GroupID() string { return c.Generic().Coordinate(CoordinateGroupID) }

// ArtifactID returns the artifactId coordinate.
func (c *MavenArtifactCoordinates) ArtifactID() string {
	return c.Generic().Coordinate(CoordinateArtifactID)
}

// Version returns the artifact version.
func (c *MavenArtifactCoordinates) Version() string { return c.Generic().Version }

// Classifier returns the optional classifier.
func (c *MavenArtifactCoordinates) Classifier() string {
	return c.Generic().Coordinate(CoordinateClassifier)
}

// Extension returns the file extension.
func (c *MavenArtifactCoordinates) Extension() string {
	return c.Generic().Coordinate(CoordinateExtension)
}

// Path renders groupId/as/dirs/artifactId/version/artifactId-version[-classifier].extension.
func (c *MavenArtifactCoordinates) Path() string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(c.GroupID(), ".", "/"))
	b.WriteByte('/')
	b.WriteString(c.ArtifactID())
	b.WriteByte('/')
	b.WriteString(c.Version())
	b.WriteByte('/')
	b.WriteString(c.ArtifactID())
	b.WriteByte('-')
	b.WriteString(c.Version())
	if classifier := c.Classifier(); classifier != "" {
		b.WriteByte('-')
		b.WriteString(classifier)
	}
	b.WriteByte('.')
	b.WriteString(c.Extension())
	return b.String()
}

// MarshalJSON renders the flattened coordinates.
func (c *MavenArtifactCoordinates) MarshalJSON() ([]byte, error) { return marshalCoordinates(c) }

// ParseMavenPath parses a Maven 2 layout path.
func ParseMavenPath(path string) (*MavenArtifactCoordinates, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 4 {
		return nil, fmt.Errorf("%w: maven path %q needs group, artifact, version and file", ErrInvalid, path)
	}
	n := len(segments)
	file, version, artifactID := segments[n-1], segments[n-2], segments[n-3]
	groupID := strings.Join(segments[:n-3], ".")
	prefix := artifactID + "-" + version
	if !strings.HasPrefix(file, prefix) {
		return nil, fmt.Errorf("%w: maven file %q does not start with %q", ErrInvalid, file, prefix)
	}
	rest := file[len(prefix):]
	var classifier string
	if strings.HasPrefix(rest, "-") {
		dot := strings.IndexByte(rest, '.')
		if dot < 0 {
			return nil, fmt.Errorf("%w: maven file %q has no extension", ErrInvalid, file)
		}
		classifier, rest = rest[1:dot], rest[dot:]
	}
	if !strings.HasPrefix(rest, ".") || len(rest) == 1 {
		return nil, fmt.Errorf("%w: maven file %q has no extension", ErrInvalid, file)
	}
	return NewMavenCoordinates(groupID, artifactID, version, classifier, rest[1:]), nil
}

// NugetArtifactCoordinates follow the NuGet package layout.
type NugetArtifactCoordinates struct {
	LayoutArtifactCoordinates
}

// NewNugetCoordinates constructs NuGet coordinates, normalising version.
func NewNugetCoordinates(id, version string) (*NugetArtifactCoordinates, error) {
	normalized, err := NormalizeNugetVersion(version)
	if err != nil {
		return nil, err
	}
	c := &NugetArtifactCoordinates{}
	g := c.Generic()
	g.Version = normalized
	g.SetCoordinate(CoordinateID, id)
	return c, nil
}

// NormalizeNugetVersion validates version as semantic version and returns
// its normalised form ("1.0" becomes "1.0.0").
func NormalizeNugetVersion(version string) (string, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return "", fmt.Errorf("%w: nuget version %q: %v", ErrInvalid, version, err)
	}
	return v.String(), nil
}

// Layout reports LayoutNuget.
func (c *NugetArtifactCoordinates) Layout() Layout { return LayoutNuget }

// ID returns the package id.
func (c *NugetArtifactCoordinates) ID() string { return c.Generic().Coordinate(CoordinateID) }

// Version returns the normalised package version.
func (c *NugetArtifactCoordinates) Version() string { return c.Generic().Version }

// Path renders id/version/id.version.nupkg.
func (c *NugetArtifactCoordinates) Path() string {
	id, version := c.ID(), c.Version()
	return id + "/" + version + "/" + id + "." + version + ".nupkg"
}

// MarshalJSON renders the flattened coordinates.
func (c *NugetArtifactCoordinates) MarshalJSON() ([]byte, error) { return marshalCoordinates(c) }

// ParseNugetPath parses id/version/id.version.nupkg.
func ParseNugetPath(path string) (*NugetArtifactCoordinates, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) != 3 {
		return nil, fmt.Errorf("%w: nuget path %q must be id/version/file", ErrInvalid, path)
	}
	id, version, file := segments[0], segments[1], segments[2]
	if file != id+"."+version+".nupkg" {
		return nil, fmt.Errorf("%w: nuget file %q does not match %s %s", ErrInvalid, file, id, version)
	}
	return NewNugetCoordinates(id, version)
}

// ParseCoordinates builds layout coordinates from a repository path.
func ParseCoordinates(layout Layout, path string) (ArtifactCoordinates, error) {
	switch layout {
	case LayoutRaw, "":
		if strings.Trim(path, "/") == "" {
			return nil, fmt.Errorf("%w: empty raw path", ErrInvalid)
		}
		return NewRawCoordinates(path), nil
	case LayoutMaven:
		return ParseMavenPath(path)
	case LayoutNuget:
		return ParseNugetPath(path)
	default:
		return nil, fmt.Errorf("%w: unknown layout %q", ErrInvalid, layout)
	}
}

// ValidateCoordinates reports coordinates missing layout-required values.
func ValidateCoordinates(c ArtifactCoordinates) error {
	switch v := c.(type) {
	case *MavenArtifactCoordinates:
		if v.GroupID() == "" || v.ArtifactID() == "" || v.Version() == "" {
			return fmt.Errorf("%w: maven coordinates need groupId, artifactId and version", ErrInvalid)
		}
	case *NugetArtifactCoordinates:
		if v.ID() == "" {
			return fmt.Errorf("%w: nuget coordinates need an id", ErrInvalid)
		}
		if _, err := NormalizeNugetVersion(v.Version()); err != nil {
			return err
		}
	}
	if c.Path() == "" {
		return fmt.Errorf("%w: %s coordinates have no path", ErrInvalid, c.Layout())
	}
	return nil
}

// EnsureCoordinatesUUID derives the coordinates uuid from layout and path
// when unset and makes the generic root share it. A uuid that no longer
// matches the current path is an ErrIdentityConflict.
func EnsureCoordinatesUUID(c ArtifactCoordinates) error {
	if err := ValidateCoordinates(c); err != nil {
		return err
	}
	want := CoordinatesUUID(c.Layout(), c.Path())
	id := c.Identity()
	switch id.UUID {
	case "":
		id.UUID = want
	case want:
	default:
		return fmt.Errorf("%w: %s coordinates %s were edited to path %s", ErrIdentityConflict, c.Layout(), id.UUID, c.Path())
	}
	g := c.Generic()
	switch g.UUID {
	case "":
		g.UUID = want
	case want:
	default:
		return fmt.Errorf("%w: generic coordinates %s do not belong to %s", ErrIdentityConflict, g.UUID, want)
	}
	return nil
}

type coordinatesView struct {
	UUID        string            `json:"uuid"`
	Layout      Layout            `json:"layout"`
	Path        string            `json:"path"`
	Version     string            `json:"version,omitempty"`
	Coordinates map[string]string `json:"coordinates,omitempty"`
}

func marshalCoordinates(c ArtifactCoordinates) ([]byte, error) {
	g := c.Generic()
	return json.Marshal(coordinatesView{
		UUID:        c.Identity().UUID,
		Layout:      c.Layout(),
		Path:        c.Path(),
		Version:     g.Version,
		Coordinates: g.Coordinates,
	})
}
