package migration

import (
	"errors"
	"io/fs"
	"os"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	source, err := iofs.New(sub, ".")
	require.NoError(t, err)
	defer source.Close()

	version, err := source.First()
	require.NoError(t, err)

	count := 0
	for {
		up, _, err := source.ReadUp(version)
		require.NoError(t, err, "up migration %d", version)
		_ = up.Close()

		down, _, err := source.ReadDown(version)
		require.NoError(t, err, "down migration %d", version)
		_ = down.Close()
		count++

		next, err := source.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		version = next
	}
	assert.Equal(t, 3, count)
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:automigrate?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(conn))
	for _, table := range []string{"ap_records", "ap_charge_lines", "audit_logs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
