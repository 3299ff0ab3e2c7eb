package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/keyrelay/internal/dbx"
	"github.com/dmitrijs2005/keyrelay/internal/server/repositories/prekeys"
	"github.com/dmitrijs2005/keyrelay/internal/server/repositories/userkeys"
)

// RepositoryManager vends repositories bound to a DBTX, so services can
// use the same repositories on *sql.DB and inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	UserKeys(db dbx.DBTX) userkeys.Repository
	PreKeys(db dbx.DBTX) prekeys.Repository
}
