package uow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"modqueue/internal/infrastructure/persistence/sqlite/model"
	"modqueue/internal/ports"
)

func setupUnitOfWork(t *testing.T) (*UnitOfWork, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "uow.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&model.CacheEntry{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewUnitOfWork(db), db
}

func insertEntry(ctx context.Context, key string) error {
	tx := ports.TxFromContext(ctx).(*gorm.DB)
	return tx.WithContext(ctx).Create(&model.CacheEntry{Key: key, Value: "v"}).Error
}

func TestWithTxRollsBackOnError(t *testing.T) {
	u, db := setupUnitOfWork(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := u.WithTx(ctx, func(txCtx context.Context) error {
		if !ports.InTx(txCtx) {
			t.Fatal("callback context should carry a tx")
		}
		if err := insertEntry(txCtx, "rolled-back"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() err = %v, want boom", err)
	}

	var count int64
	db.Model(&model.CacheEntry{}).Count(&count)
	if count != 0 {
		t.Fatalf("rows after rollback = %d, want 0", count)
	}
}

func TestWithTxNestedJoinsOuter(t *testing.T) {
	u, db := setupUnitOfWork(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := u.WithTx(ctx, func(outer context.Context) error {
		if err := u.WithTx(outer, func(inner context.Context) error {
			return insertEntry(inner, "inner")
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() err = %v", err)
	}

	var count int64
	db.Model(&model.CacheEntry{}).Count(&count)
	if count != 0 {
		t.Fatalf("inner write survived outer rollback: %d rows", count)
	}

	if err := u.WithTx(ctx, func(txCtx context.Context) error {
		return insertEntry(txCtx, "committed")
	}); err != nil {
		t.Fatalf("WithTx() commit err = %v", err)
	}
	db.Model(&model.CacheEntry{}).Count(&count)
	if count != 1 {
		t.Fatalf("rows after commit = %d, want 1", count)
	}
}

func TestWithTxNestedFailureKeepsOuterWrites(t *testing.T) {
	u, db := setupUnitOfWork(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := u.WithTx(ctx, func(outer context.Context) error {
		if err := insertEntry(outer, "outer"); err != nil {
			return err
		}
		if err := u.WithTx(outer, func(inner context.Context) error {
			if err := insertEntry(inner, "inner"); err != nil {
				return err
			}
			return boom
		}); !errors.Is(err, boom) {
			t.Fatalf("nested WithTx() err = %v, want boom", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() err = %v", err)
	}

	var keys []string
	if err := db.Model(&model.CacheEntry{}).Order("key").Pluck("key", &keys).Error; err != nil {
		t.Fatalf("pluck keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "outer" {
		t.Fatalf("keys = %v, want only the outer write", keys)
	}
}

func TestWithTxRequiresContext(t *testing.T) {
	u, _ := setupUnitOfWork(t)
	if err := u.WithTx(nil, func(context.Context) error { return nil }); err == nil {
		t.Fatal("WithTx(nil ctx) should fail")
	}
}
