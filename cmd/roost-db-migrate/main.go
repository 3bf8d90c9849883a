package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"isc.org/roost"
	dbops "isc.org/roost/server/database"
	roostutil "isc.org/roost/util"
)

const description = `Roost database migration tool.

Commands:
  init          create the schema versioning table in the database
  up            run all available migrations
  up <target>   run migrations up to the target version
  down          revert the last migration
  reset         revert all migrations
  version       print the current schema version
  set_version <target>
                set the schema version without running migrations`

// CLI settings of the migration tool.
type settings struct {
	dbops.DatabaseCLIFlags
	Version bool `short:"v" long:"version" description:"Show software version"`
}

func main() {
	roostutil.SetupLogging()

	cliSettings := &settings{}
	parser := flags.NewParser(cliSettings, flags.Default)
	parser.ShortDescription = "roost-db-migrate"
	parser.LongDescription = description
	parser.Usage = "[options] command [target]"

	args, err := parser.Parse()
	if err != nil {
		var flagsError *flags.Error
		if errors.As(err, &flagsError) && flagsError.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if cliSettings.Version {
		fmt.Println(roost.Version)
		return
	}

	if len(args) == 0 {
		log.Fatal("No command specified; use --help to list the supported commands")
	}
	command := args[0]
	target := ""
	if len(args) > 1 {
		target = args[1]
	}

	switch command {
	case "init", "up", "down", "reset", "version", "set_version":
	default:
		log.Fatalf("Unsupported command '%s'; use --help to list the supported commands", command)
	}

	databaseSettings, err := cliSettings.ConvertToDatabaseSettings()
	if err != nil {
		log.WithError(err).Fatal("Invalid database settings")
	}
	if err = dbops.Password(databaseSettings); err != nil {
		log.WithError(err).Fatal("Problem reading the database password")
	}

	db, err := dbops.NewPgDBConn(databaseSettings)
	if err != nil {
		log.WithError(err).Fatal("Unable to connect to the database")
	}
	defer db.Close()

	migrationArgs := []string{command}
	if target != "" {
		migrationArgs = append(migrationArgs, target)
	}

	oldVersion, newVersion, err := dbops.Migrate(db, migrationArgs...)
	if err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}

	if newVersion != oldVersion {
		log.Infof("Migrated database from version %d to %d", oldVersion, newVersion)
	} else {
		log.Infof("Database version is %d", oldVersion)
	}
}
