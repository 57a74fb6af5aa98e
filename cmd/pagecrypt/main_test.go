package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t testing.TB, args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{appName}, args...))
	return out.String(), err
}

func TestMigrateAndPurge(t *testing.T) {
	db := filepath.Join(t.TempDir(), "pagecrypt.db")

	_, err := run(t, "--db.url", db, "migrate")
	require.NoError(t, err)

	// Migrations are idempotent.
	_, err = run(t, "--db.url", db, "migrate")
	require.NoError(t, err)

	out, err := run(t, "--db.url", db, "purge")
	require.NoError(t, err)
	assert.Equal(t, "purged 0 expired grants\n", out)
}

func TestUnknownDriver(t *testing.T) {
	_, err := run(t, "--db.driver", "mongo", "migrate")
	assert.EqualError(t, err, `unknown db.driver "mongo"`)
}
