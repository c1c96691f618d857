package usecase

// ArtifactKind classifies a produced output file.
type ArtifactKind string

const (
	ArtifactRaster ArtifactKind = "raster"
	ArtifactVector ArtifactKind = "vector"
	ArtifactResult ArtifactKind = "result"
)

// Artifact is one completed output file. Ownership of the file passes to
// the caller once the artifact has been reported.
type Artifact struct {
	Kind ArtifactKind `json:"kind"`
	Path string       `json:"path"`
}

// ArtifactSink receives artifacts as they complete, so callers can
// consume outputs progressively instead of waiting for the whole run.
// May be nil.
type ArtifactSink func(Artifact)

// Result summarizes one finished run: everything emitted plus the
// variables that were skipped with a warning.
type Result struct {
	Artifacts []Artifact
	Skipped   []string
}
