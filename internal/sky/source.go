package sky

import (
	"fmt"
	"strings"
)

const (
	MissionJWST          = "JWST"
	DefaultMissionFilter = "F200W"
)

// Source selects which archive a layer is fetched from. The concrete type is
// decided once when the request is parsed.
type Source interface {
	// ID is the identifier exactly as it appeared in the request.
	ID() string
	isSource()
}

// CatalogSource is a named image survey served by the image archive.
type CatalogSource struct {
	Name string
}

func (s CatalogSource) ID() string { return s.Name }
func (CatalogSource) isSource() {}

// MissionSource selects the first observation of a mission collection that
// carries a product taken through Filter.
type MissionSource struct {
	Raw     string
	Mission string
	Filter  string
}

func (s MissionSource) ID() string { return s.Raw }
func (MissionSource) isSource() {}

// ParseSource classifies an identifier. Identifiers starting with the JWST tag
// (case-insensitive) are mission sources; "JWST:F444W" selects a filter.
func ParseSource(id string) (Source, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: source identifier must be non-empty", ErrInvalidRequest)
	}
	if !strings.HasPrefix(strings.ToUpper(id), MissionJWST) {
		return CatalogSource{Name: id}, nil
	}
	filter := DefaultMissionFilter
	if parts := strings.Split(id, ":"); len(parts) > 1 {
		filter = strings.TrimSpace(parts[1])
	}
	return MissionSource{Raw: id, Mission: MissionJWST, Filter: filter}, nil
}

func ParseSources(ids []string) ([]Source, error) {
	out := make([]Source, 0, len(ids))
	for i, id := range ids {
		src, err := ParseSource(id)
		if err != nil {
			return nil, fmt.Errorf("surveys[%d]: %w", i, err)
		}
		out = append(out, src)
	}
	return out, nil
}

// SourceIDs returns the identifiers in request order.
func SourceIDs(sources []Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.ID()
	}
	return out
}
