package ot

import (
	"math/rand"
	"strings"
	"testing"

	"collabdoc/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		in   string
		want string
	}{
		{"insert middle", NewInsert(5, ","), "hello world", "hello, world"},
		{"insert end", NewInsert(11, "!"), "hello world", "hello world!"},
		{"delete", NewDelete(5, 6), "hello world", "hello"},
		{"replace", NewReplace(0, 5, "howdy"), "hello world", "howdy world"},
		{"unicode positions", NewInsert(2, "x"), "héllo", "héxllo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op.Apply(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyOutOfRange(t *testing.T) {
	_, err := NewDelete(3, 10).Apply("abcd")
	assert.True(t, apperr.IsKind(err, apperr.Validation))
	_, err = NewInsert(5, "x").Apply("abcd")
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, NewInsert(0, "a").Validate())
	assert.Error(t, NewInsert(0, "").Validate())
	assert.Error(t, NewDelete(0, 0).Validate())
	assert.Error(t, Operation{Kind: Delete, Position: 0, Length: 1, Text: "x"}.Validate())
	assert.Error(t, NewInsert(-1, "a").Validate())
	assert.Error(t, Operation{Kind: "move", Position: 1}.Validate())
	assert.NoError(t, NewReplace(0, 2, "").Validate())
}

// A stale insert after a committed deletion moves left by the deleted length.
func TestTransformInsertAfterDelete(t *testing.T) {
	got, err := Transform(NewInsert(10, "X"), NewDelete(5, 3))
	require.NoError(t, err)
	assert.Equal(t, NewInsert(7, "X"), got)
}

func TestTransformCases(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		applied Operation
		want    Operation
	}{
		{"insert before insert", NewInsert(2, "a"), NewInsert(5, "bb"), NewInsert(2, "a")},
		{"insert after insert", NewInsert(7, "a"), NewInsert(5, "bb"), NewInsert(9, "a")},
		{"same position insert goes after", NewInsert(5, "a"), NewInsert(5, "bb"), NewInsert(7, "a")},
		{"delete before insert", NewDelete(0, 5), NewInsert(5, "bb"), NewDelete(0, 5)},
		{"delete after insert", NewDelete(5, 2), NewInsert(5, "bb"), NewDelete(7, 2)},
		{"insert at start of deletion", NewInsert(5, "a"), NewDelete(5, 3), NewInsert(5, "a")},
		{"insert at end of deletion", NewInsert(8, "a"), NewDelete(5, 3), NewInsert(5, "a")},
		{"replace after replace", NewReplace(10, 2, "zz"), NewReplace(0, 4, "a"), NewReplace(7, 2, "zz")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transform(tt.op, tt.applied)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransformConflicts(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		applied Operation
	}{
		{"insert inside deletion", NewInsert(6, "a"), NewDelete(5, 3)},
		{"overlapping deletions", NewDelete(4, 3), NewDelete(5, 3)},
		{"same span replace", NewReplace(5, 3, "x"), NewReplace(5, 3, "y")},
		{"deletion swallows insert point", NewDelete(3, 5), NewInsert(5, "q")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transform(tt.op, tt.applied)
			assert.True(t, apperr.IsKind(err, apperr.Conflict))
		})
	}
}

func TestTransformAll(t *testing.T) {
	history := []Operation{NewDelete(0, 2), NewInsert(0, "abc")}
	got, err := TransformAll(NewInsert(10, "x"), history)
	require.NoError(t, err)
	assert.Equal(t, NewInsert(11, "x"), got)
}

func TestFromDiffReplaysExactly(t *testing.T) {
	pairs := [][2]string{
		{"hello world", "hello brave new world"},
		{"abcdef", "abf"},
		{"", "fresh"},
		{"gone", ""},
		{"The cat sat.", "A dog sat down."},
	}
	for _, p := range pairs {
		text := p[0]
		for _, op := range FromDiff(p[0], p[1]) {
			var err error
			text, err = op.Apply(text)
			require.NoError(t, err)
		}
		assert.Equal(t, p[1], text)
	}
	assert.Nil(t, FromDiff("same", "same"))
}

// Edits on disjoint spans commute once transformed against each other.
func TestTransformDisjointEditsConverge(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := strings.Repeat("lorem ipsum dolor ", 4)
	n := len([]rune(base))

	for i := 0; i < 500; i++ {
		a, b := randomOp(rng, n), randomOp(rng, n)
		if !(a.End() < b.Position || b.End() < a.Position) {
			continue
		}
		a2, err := Transform(a, b)
		require.NoError(t, err)
		b2, err := Transform(b, a)
		require.NoError(t, err)

		left := mustApply(t, mustApply(t, base, b), a2)
		right := mustApply(t, mustApply(t, base, a), b2)
		assert.Equal(t, left, right, "a=%s b=%s", a, b)
	}
}

func randomOp(rng *rand.Rand, n int) Operation {
	pos := rng.Intn(n)
	length := 1 + rng.Intn(4)
	if pos+length > n {
		length = n - pos
	}
	switch rng.Intn(3) {
	case 0:
		return NewInsert(pos, "ins")
	case 1:
		return NewDelete(pos, length)
	default:
		return NewReplace(pos, length, "R")
	}
}

func mustApply(t *testing.T, s string, op Operation) string {
	t.Helper()
	out, err := op.Apply(s)
	require.NoError(t, err)
	return out
}
