package dbtest

import (
	"fmt"
	"math/rand"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	dbops "isc.org/roost/server/database"
	"isc.org/roost/server/database/maintenance"
)

func failOnError(testArg interface{}, err error) {
	if t, ok := (testArg).(*testing.T); ok {
		require.NoError(t, err)
	} else if b, ok := (testArg).(*testing.B); ok {
		if err != nil {
			b.Fatalf("%+v", err)
		}
	} else {
		panic("Specified test parameter must have type *testing.T or *testing.B")
	}
}

// Prepares a dedicated test database created from the roosttest template
// database. Returns settings pointing to the new database.
func createDatabaseTestCase() (settings *dbops.DatabaseSettings, err error) {
	// Default configuration overridable with the ROOST_DATABASE_*
	// environment variables.
	flags := &dbops.DatabaseCLIFlagsWithMaintenance{
		DatabaseCLIFlags: dbops.DatabaseCLIFlags{
			DBName: "roosttest",
			User:   "roosttest",
			Host:   "/var/run/postgresql",
			Port:   5432,
		},
		MaintenanceDBName: "postgres",
		MaintenanceUser:   "postgres",
	}

	flags.ReadFromEnvironment()

	// Connect to maintenance database to be able to create the test
	// database.
	maintenanceSettings, err := flags.ConvertToMaintenanceDatabaseSettings()
	if err != nil {
		return nil, err
	}

	db, err := dbops.NewPgDBConn(maintenanceSettings)
	if db == nil {
		log.
			WithField("database", maintenanceSettings.DBName).
			WithField("user", maintenanceSettings.User).
			Fatalf("Unable to create database instance: %+v", err)
	}
	if err != nil {
		return nil, err
	}
	defer db.Close()

	// Create test database from template. The template db is roosttest
	// (no tests should use it directly). The test database name is
	// roosttest + big random number, e.g.: roosttest9817239871871478571.
	templateDBName := flags.DBName
	dbName := fmt.Sprintf("%s%d", templateDBName, rand.Int63()) //nolint:gosec

	if err = maintenance.DropDatabaseIfExists(db, dbName); err != nil {
		return nil, err
	}
	if _, err = maintenance.CreateDatabaseFromTemplate(db, dbName, templateDBName); err != nil {
		return nil, err
	}

	settings, err = flags.ConvertToDatabaseSettings()
	if err != nil {
		return nil, err
	}
	settings.DBName = dbName

	return settings, nil
}

// Prepares unit test setup by creating a fresh database from the template
// and ensuring the latest schema. Returns the database instance, its
// settings and the teardown function. The specified argument must be of
// a *testing.T or *testing.B type.
func SetupDatabaseTestCase(testArg interface{}) (*dbops.PgDB, *dbops.DatabaseSettings, func()) {
	settings, err := createDatabaseTestCase()
	failOnError(testArg, err)

	db, err := dbops.NewPgDBConn(settings)
	failOnError(testArg, err)

	_, _, err = dbops.MigrateToLatest(db)
	failOnError(testArg, err)

	return db, settings, func() {
		db.Close()
	}
}
