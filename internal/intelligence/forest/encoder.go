package forest

import (
	"sort"

	"github.com/turtacn/ChemPredict/pkg/errors"
)

// LabelEncoder maps categorical values to dense integer codes.  Classes are
// the sorted distinct values seen by Fit; the code of a value is its index.
type LabelEncoder struct {
	Column  string   `json:"column"`
	Classes []string `json:"classes"`
}

// NewLabelEncoder returns an unfitted encoder for column.
func NewLabelEncoder(column string) *LabelEncoder {
	return &LabelEncoder{Column: column}
}

// Fit freezes the sorted distinct values.
func (e *LabelEncoder) Fit(values []string) *LabelEncoder {
	seen := make(map[string]struct{}, 8)
	classes := make([]string, 0, 8)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)
	e.Classes = classes
	return e
}

// Len returns the number of classes.
func (e *LabelEncoder) Len() int { return len(e.Classes) }

// Transform returns the code of v, or an UnknownCategory error listing the
// accepted classes.
func (e *LabelEncoder) Transform(v string) (int, error) {
	i := sort.SearchStrings(e.Classes, v)
	if i < len(e.Classes) && e.Classes[i] == v {
		return i, nil
	}
	return -1, errors.UnknownCategory(e.Column, v, e.Classes)
}

// Inverse returns the class with code i.
func (e *LabelEncoder) Inverse(i int) (string, error) {
	if i < 0 || i >= len(e.Classes) {
		return "", errors.Newf(errors.ErrCodeArtifactCorrupt, "code %d out of range for %s", i, e.Column)
	}
	return e.Classes[i], nil
}

// Validate checks that Classes is sorted and free of duplicates, which
// Transform relies on.
func (e *LabelEncoder) Validate() error {
	for i := 1; i < len(e.Classes); i++ {
		if e.Classes[i-1] >= e.Classes[i] {
			return errors.Newf(errors.ErrCodeArtifactCorrupt, "encoder %s classes are not sorted and unique", e.Column)
		}
	}
	return nil
}
