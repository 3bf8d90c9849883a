package dbops

import (
	"context"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type dbLogger struct{}

// Hook run before SQL query execution.
func (d dbLogger) BeforeQuery(ctx context.Context, evt *pg.QueryEvent) (context.Context, error) {
	query, err := evt.FormattedQuery()
	if err != nil {
		return ctx, err
	}
	log.Debug(string(query))
	return ctx, nil
}

// Hook run after SQL query execution.
func (d dbLogger) AfterQuery(ctx context.Context, evt *pg.QueryEvent) error {
	return nil
}

// Creates a new database connection and verifies it with a test query.
// It doesn't run the schema migrations.
func NewPgDBConn(settings *DatabaseSettings) (*PgDB, error) {
	db := pg.Connect(settings.PgParams())

	// Add tracing hooks if requested.
	if settings.TraceSQL {
		db.AddQueryHook(dbLogger{})
	}

	// Test connection to database.
	var err error
	for tries := 0; tries < 10; tries++ {
		var n int
		_, err = db.QueryOne(pg.Scan(&n), "SELECT 1")
		if err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "unable to connect to the database using provided credentials")
	}
	return db, nil
}

// Creates a new instance of PgDB and migrates the database to the latest
// schema version if necessary.
func NewPgDB(settings *DatabaseSettings) (*PgDB, error) {
	// Fetch password from the env variable or prompt for password.
	if err := Password(settings); err != nil {
		return nil, err
	}

	db, err := NewPgDBConn(settings)
	if err != nil {
		return nil, err
	}

	// Ensure that the latest database schema is installed.
	oldVer, newVer, err := MigrateToLatest(db)
	if err != nil {
		db.Close()
		return nil, err
	} else if oldVer != newVer {
		log.WithFields(log.Fields{
			"old-version": oldVer,
			"new-version": newVer,
		}).Info("Successfully migrated database schema")
	}

	log.Infof("Connected to database %s:%d, schema version: %d", settings.Host, settings.Port, newVer)
	return db, nil
}

// Creates new transaction or returns the existing transaction along with
// the appropriate rollback and commit functions. If the dbIface is a
// pointer to pg.DB object, this object is used to create new transaction.
// If the dbIface points to a pg.Tx it means that we're in the middle of
// an existing transaction. In that case this object is returned to the
// caller and the rollback and commit functions are no-op.
func Transaction(dbIface interface{}) (tx *pg.Tx, rollback func(), commit func() error, err error) {
	db, ok := dbIface.(*pg.DB)
	if ok {
		tx, err = db.Begin()
		if err != nil {
			err = errors.WithMessage(err, "problem starting database transaction")
			return nil, nil, nil, err
		}
		rollback = func() {
			_ = tx.Rollback()
		}
		commit = func() (err error) {
			err = tx.Commit()
			if err != nil {
				err = errors.WithMessage(err, "problem committing the transaction")
			}
			return err
		}
	} else {
		tx, ok = dbIface.(*pg.Tx)
		if !ok {
			err = errors.New("unsupported type of the database transaction object provided")
			return nil, nil, nil, err
		}
		rollback = func() {}
		commit = func() (err error) {
			return nil
		}
	}
	return tx, rollback, commit, err
}
