package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a store transaction and hands it the
// transaction handle. Repositories accept that handle as their tx argument and
// fall back to the pool when tx is nil.
//
// The concrete type of tx is infra-defined (pgx.Tx for Postgres). fn's error
// rolls the transaction back; a nil return commits it.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
