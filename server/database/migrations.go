package dbops

import (
	"context"

	"github.com/go-pg/migrations/v8"
	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"isc.org/roost/server/database/maintenance"

	// Registers the database schema migrations.
	_ "isc.org/roost/server/database/migrations"
)

// Checks if the migrations table exists, i.e. the 'init' command was called.
func Initialized(db *PgDB) bool {
	var n int
	_, err := db.QueryOne(pg.Scan(&n), "SELECT count(*) FROM gopg_migrations")
	return err == nil
}

// Migrates the database. The args specify one of the migration operations
// supported by go-pg/migrations. The returned arguments contain new and
// old database version as well as an error.
func Migrate(db *PgDB, args ...string) (oldVersion, newVersion int64, err error) {
	if len(args) > 0 && args[0] == "up" && !Initialized(db) {
		if oldVersion, newVersion, err = migrations.Run(db, "init"); err != nil {
			return oldVersion, newVersion, errors.Wrapf(err, "problem initiating database")
		}
	}

	oldVersion, newVersion, err = migrations.Run(db, args...)
	if err != nil {
		return oldVersion, newVersion, errors.Wrapf(err, "problem migrating database")
	}
	return oldVersion, newVersion, nil
}

// Migrates the database schema to the latest version.
func MigrateToLatest(db *PgDB) (oldVersion, newVersion int64, err error) {
	return Migrate(db, "up")
}

// Checks what is the highest available schema version.
func AvailableVersion() int64 {
	regm := migrations.RegisteredMigrations()
	if len(regm) == 0 {
		return 0
	}

	var latest int64
	for _, m := range regm {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}

// Returns the current schema version.
func CurrentVersion(db *PgDB) (int64, error) {
	return migrations.Version(db)
}

// Migrates the database version down to 0 and then removes the
// gopg_migrations table.
func Toss(db *PgDB) error {
	if db == nil {
		return errors.New("database is nil")
	}

	// Check if the migrations table exists. If it doesn't, there is
	// nothing to do.
	if !Initialized(db) {
		return nil
	}

	// Migrate the database down to 0.
	if _, _, err := Migrate(db, "reset"); err != nil {
		return err
	}

	// Remove the versioning table and id sequence.
	_, err := db.Exec(`
        DROP TABLE IF EXISTS gopg_migrations;
        DROP SEQUENCE IF EXISTS gopg_migrations_id_seq;
    `)
	return errors.Wrapf(err, "problem removing the migrations table")
}

// Prepares a new database for Roost. This function must be called with
// the maintenance (admin) database credentials, typically the postgres
// user and the postgres database. The dbName and userName denote the
// new database name and the new user name to create. The force flag
// indicates whether an existing database should be dropped first.
func CreateDatabase(settings DatabaseSettings, dbName, userName, password string, force bool) error {
	db, err := NewPgDBConn(&settings)
	if err != nil {
		return err
	}
	defer db.Close()

	if force {
		if err = maintenance.DropDatabaseIfExists(db, dbName); err != nil {
			return err
		}
	}
	// The database creation cannot be done in a transaction.
	isCreated, err := maintenance.CreateDatabase(db, dbName)
	if err != nil {
		return err
	} else if !isCreated {
		log.Infof("Database '%s' already exists", dbName)
	}

	// Connect to the newly created database with the admin credentials
	// to set up the user.
	db.Close()
	settings.DBName = dbName
	db, err = NewPgDBConn(&settings)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.RunInTransaction(context.Background(), func(tx *pg.Tx) error {
		hasUser, err := maintenance.HasUser(tx, userName)
		if err != nil {
			return err
		}
		if hasUser {
			log.Infof("User '%s' already exists", userName)
		} else if err = maintenance.CreateUser(tx, userName); err != nil {
			return err
		}

		if err = maintenance.GrantAllPrivilegesOnDatabaseToUser(tx, dbName, userName); err != nil {
			return err
		}
		if err = maintenance.GrantAllPrivilegesOnSchemaToUser(tx, "public", userName); err != nil {
			return err
		}
		if password != "" {
			if err = maintenance.AlterUserPassword(tx, userName, password); err != nil {
				return err
			}
		}
		return nil
	})
}
