package db

import (
	"testing"

	"github.com/smallbiznis/packhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectSelectsDriver(t *testing.T) {
	for _, dbType := range []string{"postgres", "PostgreSQL", "mysql", "mariadb", "sqlite3"} {
		d, err := Dialect(config.Config{DBType: dbType, DBPath: ":memory:"})
		require.NoError(t, err, dbType)
		assert.Equal(t, DriverName(dbType), d.Name(), dbType)
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.ErrorContains(t, err, "oracle")
}

func TestPostgresDSNQuotesValues(t *testing.T) {
	dsn := PostgresDSN(config.Config{
		DBHost:     "db",
		DBPort:     "5432",
		DBUser:     "packhub",
		DBName:     "registry",
		DBPassword: "it's secret",
	})

	assert.Equal(t, `host=db port=5432 user=packhub dbname=registry sslmode=disable TimeZone=UTC password='it\'s secret'`, dsn)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "packhub.db?_foreign_keys=on", SQLiteDSN(config.Config{}))
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=on", SQLiteDSN(config.Config{DBPath: "file:x?mode=memory"}))
	assert.Equal(t, "x.db?_foreign_keys=1", SQLiteDSN(config.Config{DBPath: "x.db?_foreign_keys=1"}))
}
