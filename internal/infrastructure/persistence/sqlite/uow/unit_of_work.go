package uow

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"modqueue/internal/ports"
)

// UnitOfWork implements ports.UnitOfWork with gorm. A WithTx call whose ctx
// already carries a transaction runs inside a savepoint of that transaction
// instead of asking the pool for a second connection.
type UnitOfWork struct {
	db *gorm.DB
}

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if fn == nil {
		return errors.New("transaction callback is required")
	}

	db := u.db.WithContext(ctx)
	if outer, ok := ports.TxFromContext(ctx).(*gorm.DB); ok && outer != nil {
		db = outer.WithContext(ctx)
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	})
}
