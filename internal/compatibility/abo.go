package compatibility

import (
	"strings"

	"github.com/jwalitptl/bloodbank/internal/model"
)

// StandardTypes are the eight ABO/Rh(D) red cell types.
var StandardTypes = []model.BloodType{"O-", "O+", "A-", "A+", "B-", "B+", "AB-", "AB+"}

// Default returns the standard red cell compatibility matrix: a donor may give
// to a recipient carrying every ABO antigen the donor carries, and Rh(D)
// positive donors only to Rh(D) positive recipients.
func Default() *Matrix {
	var edges []Edge
	for _, d := range StandardTypes {
		for _, r := range StandardTypes {
			if aboCompatible(d, r) {
				edges = append(edges, Edge{Donor: d, Recipient: r})
			}
		}
	}
	m, err := New(StandardTypes, edges)
	if err != nil {
		panic(err)
	}
	return m
}

func aboCompatible(donor, recipient model.BloodType) bool {
	dABO, dPos := split(donor)
	rABO, rPos := split(recipient)
	if dPos && !rPos {
		return false
	}
	for _, antigen := range dABO {
		if antigen == 'O' {
			continue
		}
		if !strings.ContainsRune(rABO, antigen) {
			return false
		}
	}
	return true
}

func split(t model.BloodType) (string, bool) {
	s := string(t)
	return s[:len(s)-1], strings.HasSuffix(s, "+")
}
