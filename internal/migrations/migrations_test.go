package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesAreEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(Files, ".")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"001_init.sql", "002_channel_expiry.sql"}, names)

	for _, name := range names {
		contents, err := Files.ReadFile(name)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(contents), "-- "), "%s starts with a description comment", name)
	}
}
