// Package access decides whether a caller's classification level lets them
// edit a document.
package access

import "collabdoc/internal/document/model"

const DefaultMinEditLevel = 2

type Policy interface {
	CanEdit(level int, doc model.Document) bool
}

// ClassificationPolicy allows editing from MinEditLevel upwards, and never
// above the caller's own clearance. MinEditLevel is never below
// DefaultMinEditLevel.
type ClassificationPolicy struct {
	MinEditLevel int
}

func NewClassificationPolicy(minEditLevel int) ClassificationPolicy {
	if minEditLevel < DefaultMinEditLevel {
		minEditLevel = DefaultMinEditLevel
	}
	return ClassificationPolicy{MinEditLevel: minEditLevel}
}

func (p ClassificationPolicy) CanEdit(level int, doc model.Document) bool {
	return level >= p.MinEditLevel && level >= doc.ClassificationLevel
}
