// Package ot describes plain-text edit operations and rewrites a pending
// operation so it applies on top of operations accepted before it.
package ot

import (
	"fmt"
	"unicode/utf8"

	"collabdoc/pkg/apperr"
)

type Kind string

const (
	Insert  Kind = "insert"
	Delete  Kind = "delete"
	Replace Kind = "replace"
)

// Operation edits a text at Position, counted in Unicode code points.
// Delete and Replace remove Length code points; Insert and Replace add Text.
type Operation struct {
	Kind     Kind   `json:"kind"`
	Position int    `json:"position"`
	Length   int    `json:"length,omitempty"`
	Text     string `json:"text,omitempty"`
}

func NewInsert(pos int, text string) Operation {
	return Operation{Kind: Insert, Position: pos, Text: text}
}

func NewDelete(pos, length int) Operation {
	return Operation{Kind: Delete, Position: pos, Length: length}
}

func NewReplace(pos, length int, text string) Operation {
	return Operation{Kind: Replace, Position: pos, Length: length, Text: text}
}

// Validate checks the operation's shape without looking at any content.
func (o Operation) Validate() error {
	const op = "ot.Validate"
	if o.Position < 0 {
		return apperr.Validationf(op, "position %d is negative", o.Position)
	}
	if !utf8.ValidString(o.Text) {
		return apperr.Validationf(op, "text is not valid UTF-8")
	}
	switch o.Kind {
	case Insert:
		if o.Text == "" {
			return apperr.Validationf(op, "insert requires text")
		}
		if o.Length != 0 {
			return apperr.Validationf(op, "insert must not carry a length")
		}
	case Delete:
		if o.Length <= 0 {
			return apperr.Validationf(op, "delete requires a positive length")
		}
		if o.Text != "" {
			return apperr.Validationf(op, "delete must not carry text")
		}
	case Replace:
		if o.Length <= 0 {
			return apperr.Validationf(op, "replace requires a positive length")
		}
	default:
		return apperr.Validationf(op, "unknown operation kind %q", o.Kind)
	}
	return nil
}

// End is the first position after the removed span.
func (o Operation) End() int {
	return o.Position + o.removed()
}

func (o Operation) removed() int {
	if o.Kind == Insert {
		return 0
	}
	return o.Length
}

func (o Operation) inserted() int {
	if o.Kind == Delete {
		return 0
	}
	return utf8.RuneCountInString(o.Text)
}

// Apply returns content with the operation applied.
func (o Operation) Apply(content string) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	runes := []rune(content)
	if o.End() > len(runes) {
		return "", apperr.Validationf("ot.Apply", "span [%d,%d) exceeds content length %d", o.Position, o.End(), len(runes))
	}
	out := make([]rune, 0, len(runes)-o.removed()+o.inserted())
	out = append(out, runes[:o.Position]...)
	if o.Kind != Delete {
		out = append(out, []rune(o.Text)...)
	}
	out = append(out, runes[o.End():]...)
	return string(out), nil
}

func (o Operation) String() string {
	switch o.Kind {
	case Insert:
		return fmt.Sprintf("insert(%d,%q)", o.Position, o.Text)
	case Delete:
		return fmt.Sprintf("delete(%d,%d)", o.Position, o.Length)
	default:
		return fmt.Sprintf("replace(%d,%d,%q)", o.Position, o.Length, o.Text)
	}
}
