// Package pathutil provides volume and snapshot name validation.
package pathutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/volsnap-project/volsnap/pkg/errclass"
)

const maxSnapshotNameLen = 255

// ValidateVolumeName checks that a volume file name is a well-formed absolute
// path with no traversal components.
func ValidateVolumeName(file string) error {
	if file == "" {
		return errclass.ErrNameInvalid.WithMessage("volume name must not be empty")
	}
	if !strings.HasPrefix(file, "/") {
		return errclass.ErrNameInvalid.WithMessagef("volume name must be absolute: %s", file)
	}
	if strings.Contains(file, "//") {
		return errclass.ErrNameInvalid.WithMessagef("volume name must not contain empty components: %s", file)
	}
	for _, part := range strings.Split(file[1:], "/") {
		if part == "." || part == ".." {
			return errclass.ErrNameInvalid.WithMessagef("volume name must not contain '.' or '..': %s", file)
		}
	}
	for _, r := range file {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("volume name must not contain control characters: %q", file)
		}
	}
	return nil
}

// NormalizeSnapshotName NFC-normalizes and validates a snapshot display name.
func NormalizeSnapshotName(name string) (string, error) {
	if name == "" {
		return "", errclass.ErrNameInvalid.WithMessage("snapshot name must not be empty")
	}

	name = norm.NFC.String(name)

	if len([]rune(name)) > maxSnapshotNameLen {
		return "", errclass.ErrNameInvalid.WithMessagef("snapshot name longer than %d runes", maxSnapshotNameLen)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", errclass.ErrNameInvalid.WithMessagef("snapshot name must not contain control characters: %q", name)
		}
	}
	return name, nil
}
