package compatibility

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jwalitptl/bloodbank/internal/model"
)

// fileFormat is the on-disk layout: each donor type lists the recipients it
// may be given to. Donors absent from the map give to nobody.
type fileFormat struct {
	Types      []string            `yaml:"types"`
	Compatible map[string][]string `yaml:"compatible"`
}

// Load parses a matrix definition.
func Load(r io.Reader) (*Matrix, error) {
	var f fileFormat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode compatibility matrix: %w", err)
	}

	types := make([]model.BloodType, 0, len(f.Types))
	for _, t := range f.Types {
		types = append(types, Normalize(t))
	}

	var edges []Edge
	for donor, recipients := range f.Compatible {
		for _, recipient := range recipients {
			edges = append(edges, Edge{Donor: Normalize(donor), Recipient: Normalize(recipient)})
		}
	}

	return New(types, edges)
}

// LoadFile reads a matrix from path. An empty path yields Default().
func LoadFile(path string) (*Matrix, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open compatibility matrix: %w", err)
	}
	defer f.Close()

	return Load(f)
}
