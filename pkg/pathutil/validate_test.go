package pathutil_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volsnap-project/volsnap/pkg/errclass"
	"github.com/volsnap-project/volsnap/pkg/pathutil"
)

func TestValidateVolumeName(t *testing.T) {
	tests := []struct {
		name string
		file string
		ok   bool
	}{
		{"simple", "/a", true},
		{"nested", "/vol/data-1", true},
		{"empty", "", false},
		{"relative", "a/b", false},
		{"traversal", "/a/../b", false},
		{"dot", "/a/./b", false},
		{"double slash", "/a//b", false},
		{"control char", "/a\x00b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pathutil.ValidateVolumeName(tt.file)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errclass.ErrNameInvalid))
			}
		})
	}
}

func TestNormalizeSnapshotName(t *testing.T) {
	got, err := pathutil.NormalizeSnapshotName("nightly-01")
	require.NoError(t, err)
	assert.Equal(t, "nightly-01", got)

	// Decomposed "é" normalizes to the composed form.
	got, err = pathutil.NormalizeSnapshotName("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "café", got)

	_, err = pathutil.NormalizeSnapshotName("")
	assert.True(t, errors.Is(err, errclass.ErrNameInvalid))

	_, err = pathutil.NormalizeSnapshotName("a\nb")
	assert.True(t, errors.Is(err, errclass.ErrNameInvalid))

	_, err = pathutil.NormalizeSnapshotName(strings.Repeat("x", 256))
	assert.True(t, errors.Is(err, errclass.ErrNameInvalid))
}
