package db

import (
	"testing"

	"progression-engine/pkg/config"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

func TestDialect(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Type = "postgres"
	cfg.Database.DBNAME = "progression"
	d, err := Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &postgres.Dialector{}, d)
	require.Equal(t, "progression", getDBNameFromDialector(d))

	cfg.Database.Type = "mysql"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &mysql.Dialector{}, d)
	require.Equal(t, "progression", getDBNameFromDialector(d))

	cfg.Database.Type = "sqlite"
	cfg.Database.DBNAME = "file::memory:"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &sqlite.Dialector{}, d)

	cfg.Database.Type = "oracle"
	_, err = Dialect(cfg)
	require.Error(t, err)
}
