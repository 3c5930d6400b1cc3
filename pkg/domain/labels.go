package domain

// Vertex labels.
const (
	LabelArtifact                   = "ARTIFACT"
	LabelRemoteArtifact             = "REMOTE_ARTIFACT"
	LabelArtifactTag                = "ARTIFACT_TAG"
	LabelArtifactIDGroup            = "ARTIFACT_ID_GROUP"
	LabelGenericArtifactCoordinates = "GENERIC_ARTIFACT_COORDINATES"
	LabelRawArtifactCoordinates     = "RAW_ARTIFACT_COORDINATES"
	LabelMavenArtifactCoordinates   = "MAVEN_ARTIFACT_COORDINATES"
	LabelNugetArtifactCoordinates   = "NUGET_ARTIFACT_COORDINATES"
)

// Edge labels.
const (
	EdgeArtifactHasArtifactCoordinates = "ARTIFACT_HAS_ARTIFACT_COORDINATES"
	EdgeArtifactHasTags                = "ARTIFACT_HAS_TAGS"
	EdgeArtifactGroupHasArtifacts      = "ARTIFACT_GROUP_HAS_ARTIFACTS"
	EdgeCoordinatesInheritGeneric      = "ARTIFACT_COORDINATES_INHERIT_GENERIC_ARTIFACT_COORDINATES"
	EdgeRemoteArtifactInheritArtifact  = "REMOTE_ARTIFACT_INHERIT_ARTIFACT"
	// EdgeExtends is the default child-to-parent edge of upward hierarchies.
	EdgeExtends = "EXTENDS"
)

// Property keys.
const (
	PropUUID               = "uuid"
	PropStorageID          = "storageId"
	PropRepositoryID       = "repositoryId"
	PropCreated            = "created"
	PropLastUpdated        = "lastUpdated"
	PropLastUsed           = "lastUsed"
	PropSizeInBytes        = "sizeInBytes"
	PropDownloadCount      = "downloadCount"
	PropFilenames          = "fileNames"
	PropChecksums          = "checksums"
	PropArtifactFileExists = "artifactFileExists"
	PropName               = "name"
	PropVersion            = "version"
	PropCached             = "cached"
	// PropCoordinatesPrefix prefixes every dynamic coordinate stored on a
	// generic coordinates vertex.
	PropCoordinatesPrefix = "coordinates."
)
