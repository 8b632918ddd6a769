package sky

import "time"

// LayerArtifact is a persisted rendered layer. It is never mutated after creation.
type LayerArtifact struct {
	ID       string
	SourceID string
	ImageKey string
	RawKey   string
	Min      float64
	Max      float64
	Width    int
	Height   int
	Duration time.Duration
}

type LayerFailure struct {
	SourceID string
	Cause    string
}

// LayerOutcome is what one pipeline invocation emits: exactly one of Artifact
// or Failure is set. Index is the source's position in the request.
type LayerOutcome struct {
	Index    int
	Artifact *LayerArtifact
	Failure  *LayerFailure
}
