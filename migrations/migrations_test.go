package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentity_EmbedsGooseMigrations(t *testing.T) {
	t.Parallel()

	files, err := fs.Glob(Identity(), "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		b, err := fs.ReadFile(Identity(), f)
		require.NoError(t, err)
		s := string(b)
		require.True(t, strings.Contains(s, "-- +goose Up"), "%s has no Up section", f)
		require.True(t, strings.Contains(s, "-- +goose Down"), "%s has no Down section", f)
	}
}
