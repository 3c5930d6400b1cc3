package domain

import "github.com/google/uuid"

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:cargohold"))

// ArtifactUUID derives the deterministic uuid of the artifact stored at path
// in a repository.
func ArtifactUUID(storageID, repositoryID, path string) string {
	return uuid.NewSHA1(namespace, []byte("artifact:"+storageID+"/"+repositoryID+"/"+path)).String()
}

// CoordinatesUUID derives the deterministic uuid of coordinates. It does not
// depend on the repository, so equal coordinates are shared across
// repositories.
func CoordinatesUUID(layout Layout, path string) string {
	return uuid.NewSHA1(namespace, []byte("coordinates:"+string(layout)+":"+path)).String()
}
