package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/verdant/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSqliteCreatesEveryTable(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, Migrate(conn))
	for _, table := range []string{"regions", "organizations", "sites", "emission_records", "site_category_relations", "allocation_runs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}

	// a second pass is a no-op
	require.NoError(t, Migrate(conn))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}
