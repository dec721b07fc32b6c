package version

import (
	"fmt"

	"collabdoc/pkg/apperr"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// newDMP returns a matcher that only accepts hunks whose context matches the
// base text exactly at the recorded location.
func newDMP() *diffmatchpatch.DiffMatchPatch {
	dmp := diffmatchpatch.New()
	dmp.MatchThreshold = 0
	dmp.MatchDistance = 0
	dmp.PatchDeleteThreshold = 0
	return dmp
}

// MakePatch returns the textual patch turning base into updated.
// Equal texts produce the empty patch.
func MakePatch(base, updated string) string {
	if base == updated {
		return ""
	}
	dmp := newDMP()
	diffs := dmp.DiffMain(base, updated, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(base, diffs))
}

// ApplyPatch applies patch to base. A patch that does not match its base
// fails with a PatchConflict error instead of producing fuzzy output.
func ApplyPatch(base, patch string) (string, error) {
	const op = "version.ApplyPatch"
	if patch == "" {
		return base, nil
	}
	dmp := newDMP()
	patches, err := dmp.PatchFromText(patch)
	if err != nil {
		return "", apperr.Wrap(apperr.PatchConflict, op, err, "unparseable patch")
	}
	result, applied := dmp.PatchApply(patches, base)
	for i, ok := range applied {
		if !ok {
			return "", apperr.New(apperr.PatchConflict, op, fmt.Sprintf("hunk %d does not match base text", i))
		}
	}
	return result, nil
}
