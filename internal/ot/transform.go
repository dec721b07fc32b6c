package ot

import (
	"unicode/utf8"

	"collabdoc/pkg/apperr"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Transform rewrites op, authored against the same text as applied, so that
// it can be applied after applied. Positions shift past the applied edit.
// Spans whose removed ranges overlap, or an insert landing strictly inside a
// removed range, cannot be reconciled without guessing and fail with a
// Conflict error.
//
// Concurrent inserts at the same position order the already applied one
// first.
func Transform(op, applied Operation) (Operation, error) {
	const name = "ot.Transform"
	aStart, aEnd := op.Position, op.End()
	bStart, bEnd := applied.Position, applied.End()
	shift := applied.inserted() - applied.removed()

	if applied.removed() == 0 {
		switch {
		case aEnd <= bStart && (op.removed() > 0 || aStart < bStart):
			return op, nil
		case aStart >= bStart:
			op.Position += shift
			return op, nil
		default:
			return Operation{}, apperr.Conflictf(name, "%s removes the anchor of concurrent %s", op, applied)
		}
	}

	switch {
	case aEnd <= bStart:
		return op, nil
	case aStart >= bEnd:
		op.Position += shift
		return op, nil
	default:
		return Operation{}, apperr.Conflictf(name, "%s overlaps concurrent %s", op, applied)
	}
}

// TransformAll transforms op against history, applied in order.
func TransformAll(op Operation, history []Operation) (Operation, error) {
	var err error
	for _, applied := range history {
		if op, err = Transform(op, applied); err != nil {
			return Operation{}, err
		}
	}
	return op, nil
}

// FromDiff derives the sequence of operations turning before into after.
// Each operation is expressed against the text produced by the previous
// ones, so the result can be used directly as a transform history.
func FromDiff(before, after string) []Operation {
	if before == after {
		return nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)

	var ops []Operation
	pos := 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += n
		case diffmatchpatch.DiffDelete:
			ops = append(ops, NewDelete(pos, n))
		case diffmatchpatch.DiffInsert:
			ops = append(ops, NewInsert(pos, d.Text))
			pos += n
		}
	}
	return ops
}
