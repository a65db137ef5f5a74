package forest

import (
	"fmt"

	"github.com/sjwhitworth/golearn/base"

	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Column describes one input attribute.  Categorical columns list their
// values in code order; a numeric column has none.
type Column struct {
	Name   string   `json:"name"`
	Values []string `json:"values,omitempty"`
}

// Numeric reports whether c holds raw numbers rather than category codes.
func (c Column) Numeric() bool { return len(c.Values) == 0 }

// Schema names the input columns and the target classes in code order.
type Schema struct {
	Columns []Column `json:"columns"`
	Target  string   `json:"target"`
	Classes []string `json:"classes"`
}

func (s Schema) columnIndex() map[string]int {
	m := make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		m[c.Name] = i
	}
	return m
}

func codes(values []string) map[string]int {
	m := make(map[string]int, len(values))
	for i, v := range values {
		m[v] = i
	}
	return m
}

// NewInstances loads x and class codes y into a golearn grid.  Cells of
// categorical columns hold category codes; numeric cells are copied as-is.
// Category values are registered in code order so golearn's system values
// line up with the codes.
func NewInstances(s Schema, x [][]float64, y []int) (*base.DenseInstances, error) {
	if len(x) == 0 {
		return nil, errors.DatasetInvalid("no training rows")
	}
	if len(x) != len(y) {
		return nil, errors.InvalidInput("feature and label row counts differ")
	}
	if len(s.Columns) == 0 || len(s.Classes) == 0 {
		return nil, errors.InvalidInput("schema needs columns and classes")
	}

	inst := base.NewDenseInstances()
	attrs := make([]base.Attribute, len(s.Columns))
	specs := make([]base.AttributeSpec, len(s.Columns))
	for i, c := range s.Columns {
		if c.Numeric() {
			attrs[i] = base.NewFloatAttribute(c.Name)
		} else {
			a := base.NewCategoricalAttribute()
			a.SetName(c.Name)
			for _, v := range c.Values {
				a.GetSysValFromString(v)
			}
			attrs[i] = a
		}
		specs[i] = inst.AddAttribute(attrs[i])
	}

	class := base.NewCategoricalAttribute()
	class.SetName(s.Target)
	for _, v := range s.Classes {
		class.GetSysValFromString(v)
	}
	classSpec := inst.AddAttribute(class)
	if err := inst.AddClassAttribute(class); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTrainingFailed, "failed to register class attribute")
	}
	if err := inst.Extend(len(x)); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTrainingFailed, "failed to allocate instances")
	}

	for r, row := range x {
		if len(row) != len(s.Columns) {
			return nil, errors.DatasetInvalid("ragged feature matrix").WithDetail(fmt.Sprintf("row %d", r+1))
		}
		for i, c := range s.Columns {
			if c.Numeric() {
				inst.Set(specs[i], r, base.PackFloatToBytes(row[i]))
				continue
			}
			code := int(row[i])
			if code < 0 || code >= len(c.Values) {
				return nil, errors.DatasetInvalid("category code out of range").
					WithDetail(fmt.Sprintf("row %d column %s", r+1, c.Name))
			}
			inst.Set(specs[i], r, attrs[i].GetSysValFromString(c.Values[code]))
		}
		if y[r] < 0 || y[r] >= len(s.Classes) {
			return nil, errors.DatasetInvalid("label out of range").WithDetail(fmt.Sprintf("row %d", r+1))
		}
		inst.Set(classSpec, r, class.GetSysValFromString(s.Classes[y[r]]))
	}
	return inst, nil
}

// Rows returns a view of grid restricted to idx, in that order.
func Rows(grid base.FixedDataGrid, idx []int) base.FixedDataGrid {
	return base.NewInstancesViewFromVisible(grid, idx, grid.AllAttributes())
}
