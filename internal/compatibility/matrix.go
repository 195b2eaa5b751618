// Package compatibility answers which donor blood types may be transfused
// into which recipients. A Matrix is built once and never mutated; reloading
// means building a new Matrix and swapping the reference.
package compatibility

import (
	"fmt"
	"strings"

	"github.com/jwalitptl/bloodbank/internal/model"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

// Edge is one directed compatibility fact.
type Edge struct {
	Donor     model.BloodType
	Recipient model.BloodType
}

type Matrix struct {
	types []model.BloodType
	index map[model.BloodType]int
	// edges[donor][recipient]
	edges [][]bool
}

// New builds a closed-world matrix: every pair not listed in compatible is
// incompatible. Edges naming a type outside types are rejected.
func New(types []model.BloodType, compatible []Edge) (*Matrix, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("compatibility matrix needs at least one blood type")
	}

	m := &Matrix{
		types: make([]model.BloodType, 0, len(types)),
		index: make(map[model.BloodType]int, len(types)),
	}
	for _, t := range types {
		t = Normalize(string(t))
		if t == "" {
			return nil, fmt.Errorf("empty blood type")
		}
		if _, dup := m.index[t]; dup {
			return nil, fmt.Errorf("duplicate blood type %q", t)
		}
		m.index[t] = len(m.types)
		m.types = append(m.types, t)
	}

	m.edges = make([][]bool, len(m.types))
	for i := range m.edges {
		m.edges[i] = make([]bool, len(m.types))
	}

	for _, e := range compatible {
		d, ok := m.index[Normalize(string(e.Donor))]
		if !ok {
			return nil, fmt.Errorf("edge references unknown donor type %q", e.Donor)
		}
		r, ok := m.index[Normalize(string(e.Recipient))]
		if !ok {
			return nil, fmt.Errorf("edge references unknown recipient type %q", e.Recipient)
		}
		if m.edges[d][r] {
			return nil, fmt.Errorf("duplicate edge %s -> %s", e.Donor, e.Recipient)
		}
		m.edges[d][r] = true
	}

	return m, nil
}

// Normalize upper-cases and trims a blood type identifier.
func Normalize(s string) model.BloodType {
	return model.BloodType(strings.ToUpper(strings.TrimSpace(s)))
}

func unknownType(t model.BloodType) error {
	return apperrors.NewConfigurationGap(fmt.Sprintf("unknown blood type %q", t), nil)
}

func (m *Matrix) lookup(t model.BloodType) (int, error) {
	i, ok := m.index[Normalize(string(t))]
	if !ok {
		return 0, unknownType(t)
	}
	return i, nil
}

// IsCompatible reports whether a donor unit of donor may be given to recipient.
func (m *Matrix) IsCompatible(donor, recipient model.BloodType) (bool, error) {
	d, err := m.lookup(donor)
	if err != nil {
		return false, err
	}
	r, err := m.lookup(recipient)
	if err != nil {
		return false, err
	}
	return m.edges[d][r], nil
}

// CompatibleDonorTypes returns the types that may feed recipient, in the
// matrix's declaration order.
func (m *Matrix) CompatibleDonorTypes(recipient model.BloodType) ([]model.BloodType, error) {
	r, err := m.lookup(recipient)
	if err != nil {
		return nil, err
	}
	var out []model.BloodType
	for d, t := range m.types {
		if m.edges[d][r] {
			out = append(out, t)
		}
	}
	return out, nil
}

// CompatibleRecipientTypes returns the types donor may be given to.
func (m *Matrix) CompatibleRecipientTypes(donor model.BloodType) ([]model.BloodType, error) {
	d, err := m.lookup(donor)
	if err != nil {
		return nil, err
	}
	var out []model.BloodType
	for r, t := range m.types {
		if m.edges[d][r] {
			out = append(out, t)
		}
	}
	return out, nil
}

// Known reports whether t is one of the matrix's types.
func (m *Matrix) Known(t model.BloodType) bool {
	_, ok := m.index[Normalize(string(t))]
	return ok
}

// Types returns a copy of the known blood types.
func (m *Matrix) Types() []model.BloodType {
	out := make([]model.BloodType, len(m.types))
	copy(out, m.types)
	return out
}
