package donation

import (
	"fmt"

	"github.com/jwalitptl/bloodbank/internal/model"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

// DefaultTypes is the seeded donation-type table.
func DefaultTypes() []model.DonationType {
	return []model.DonationType{
		{ID: model.DonationTypeWholeBlood, Code: "whole_blood", Component: model.ComponentWholeBlood, WaitDays: 84},
		{ID: model.DonationTypeDoubleRedCells, Code: "double_red_cells", Component: model.ComponentRedCells, WaitDays: 84},
		{ID: model.DonationTypePlasma, Code: "plasma", Component: model.ComponentPlasma, WaitDays: 14},
		{ID: model.DonationTypePlatelets, Code: "platelets", Component: model.ComponentPlatelets, WaitDays: 14},
	}
}

// TypeTable resolves donation type ids to their component and waiting period.
type TypeTable struct {
	byID map[int]model.DonationType
}

func NewTypeTable(types []model.DonationType) (*TypeTable, error) {
	if len(types) == 0 {
		types = DefaultTypes()
	}
	t := &TypeTable{byID: make(map[int]model.DonationType, len(types))}
	for _, dt := range types {
		if _, dup := t.byID[dt.ID]; dup {
			return nil, fmt.Errorf("duplicate donation type id %d", dt.ID)
		}
		if !dt.Component.Valid() {
			return nil, fmt.Errorf("donation type %d: unknown component %q", dt.ID, dt.Component)
		}
		if dt.WaitDays < 0 {
			return nil, fmt.Errorf("donation type %d: negative wait days", dt.ID)
		}
		t.byID[dt.ID] = dt
	}
	return t, nil
}

func (t *TypeTable) Lookup(id int) (model.DonationType, error) {
	dt, ok := t.byID[id]
	if !ok {
		return model.DonationType{}, apperrors.NewBadRequest(fmt.Sprintf("unknown donation type %d", id), nil)
	}
	return dt, nil
}
