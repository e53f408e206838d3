package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"progression-engine/pkg/db/option"
	"progression-engine/pkg/db/pagination"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type widget struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Owner     string    `gorm:"column:owner"`
	Qty       int64     `gorm:"column:qty"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	repo := ProvideStore[widget](newDB(t))

	missing, err := repo.FindOne(ctx, &widget{ID: "nope"})
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, repo.Create(ctx, &widget{ID: "a", Owner: "u1", Qty: 1}))
	require.NoError(t, repo.BatchCreate(ctx, []*widget{
		{ID: "b", Owner: "u1", Qty: 5},
		{ID: "c", Owner: "u2", Qty: 9},
	}))

	n, err := repo.Count(ctx, &widget{Owner: "u1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, repo.Update(ctx, "a", map[string]any{"qty": 3}))
	require.ErrorIs(t, repo.Update(ctx, "zzz", map[string]any{"qty": 3}), gorm.ErrRecordNotFound)

	rows, err := repo.Find(ctx, &widget{}, option.ApplyOperator(option.Condition{Field: "qty", Operator: option.GT, Value: 4}))
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestStorePagination(t *testing.T) {
	ctx := context.Background()
	repo := ProvideStore[widget](newDB(t))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &widget{ID: fmt.Sprintf("w%d", i), Owner: "u", CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	extract := func(w *widget) pagination.Cursor { return pagination.Cursor{CreatedAt: w.CreatedAt, ID: w.ID} }

	rows, err := repo.Find(ctx, &widget{Owner: "u"}, option.ApplyPagination(pagination.Pagination{Limit: 2}))
	require.NoError(t, err)
	page, info, err := pagination.BuildCursorPageInfo(rows, 2, extract)
	require.NoError(t, err)
	require.Equal(t, "w4", page[0].ID)
	require.Equal(t, "w3", page[1].ID)
	require.True(t, info.HasMore)

	rows, err = repo.Find(ctx, &widget{Owner: "u"}, option.ApplyPagination(pagination.Pagination{Limit: 2, Cursor: info.NextCursor}))
	require.NoError(t, err)
	page, _, err = pagination.BuildCursorPageInfo(rows, 2, extract)
	require.NoError(t, err)
	require.Equal(t, "w2", page[0].ID)
}
