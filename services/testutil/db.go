package testutil

import (
	"fmt"
	"strings"
	"testing"

	"progression-engine/pkg/config"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory sqlite database named after the test
// and migrates models. A single connection serialises writers the way row
// locks do on a real server, so nested work must use the transaction handle.
func NewTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate test database: %v", err)
		}
	}
	return db
}

// NewNode returns a snowflake node for ids in tests.
func NewNode(t *testing.T, id int64) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(id)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// NewConfig returns the progression settings tests rely on: UTC periods and
// a pity threshold of 10.
func NewConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Progression.Timezone = "UTC"
	cfg.Progression.PityThreshold = 10
	cfg.Progression.AssetURLTemplate = "https://cdn.test/cards/%s.webp"
	return cfg
}
