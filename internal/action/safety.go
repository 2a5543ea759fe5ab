package action

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNoRoots means no allowed roots are configured. Destructive actions
	// fail closed rather than running unchecked.
	ErrNoRoots = errors.New("no allowed roots configured")

	// ErrOutsideRoot means the canonical target is not a descendant of any
	// allowed root.
	ErrOutsideRoot = errors.New("target outside allowed roots")

	// ErrTargetMissing means the target path does not exist. Distinct from a
	// containment rejection so the operator sees the real reason.
	ErrTargetMissing = errors.New("target does not exist")
)

// CheckContained verifies that target, after resolving symlinks and relative
// segments, equals one of the allowed roots or sits strictly beneath it with
// a separator boundary. Lexical prefix matches that are not true ancestors
// ("/data/downloads-evil" against root "/data/downloads") are rejected.
func CheckContained(target string, roots []string) error {
	if len(roots) == 0 {
		return ErrNoRoots
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("resolve target %s: %w", target, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrTargetMissing, target)
		}
		return fmt.Errorf("canonicalize target %s: %w", target, err)
	}

	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootReal, err := filepath.EvalSymlinks(rootAbs)
		if err != nil {
			continue
		}
		if real == rootReal || strings.HasPrefix(real, rootReal+string(os.PathSeparator)) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrOutsideRoot, target)
}
