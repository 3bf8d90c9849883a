package main

import (
	"fmt"
	"os"
	"reflect"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"isc.org/roost"
	"isc.org/roost/server/apps/kea"
	dbops "isc.org/roost/server/database"
	dbmodel "isc.org/roost/server/database/model"
	roostutil "isc.org/roost/util"
)

// Random hash size in the generated password.
const passwordGenRandomLength = 24

// Establish connection to a database with opts from command line.
// Returns the database instance. It must be closed by caller.
func getDBConn(rawFlags *cli.Context) *dbops.PgDB {
	flags := &dbops.DatabaseCLIFlags{}
	flags.ReadFromCLI(rawFlags)
	settings, err := flags.ConvertToDatabaseSettings()
	if err != nil {
		log.WithError(err).Fatal("Invalid database settings")
	}

	db, err := dbops.NewPgDBConn(settings)
	if err != nil {
		log.WithError(err).Fatal("Unexpected error")
	}
	if db == nil {
		log.Fatal("Unable to create database instance")
	}
	return db
}

// Execute db-create command. It prepares a new database for Roost and
// a user that can access it with a generated or user-specified
// password.
func runDBCreate(context *cli.Context) {
	flags := &dbops.DatabaseCLIFlagsWithMaintenance{}
	flags.ReadFromCLI(context)

	var err error

	logFields := log.Fields{
		"database_name": flags.DBName,
		"user":          flags.User,
	}

	password := flags.Password
	if len(password) == 0 {
		password, err = roostutil.Base64Random(passwordGenRandomLength)
		if err != nil {
			log.WithError(err).Fatal("Failed to generate random database password")
		}
		// Only log the password if it has been generated. Otherwise,
		// the user should know the password.
		logFields["password"] = password
		flags.Password = password
	}

	settings, err := flags.ConvertToMaintenanceDatabaseSettings()
	if err != nil {
		log.WithError(err).Fatal("Invalid database settings")
	}

	err = dbops.CreateDatabase(*settings, flags.DBName, flags.User, flags.Password, context.Bool("force"))
	if err != nil {
		log.WithError(err).Fatal("Could not create the database and the user")
	}

	log.WithFields(logFields).Info("Created database and user with the following credentials")
}

// Execute db-password-gen command.
func runDBPasswordGen() {
	password, err := roostutil.Base64Random(passwordGenRandomLength)
	if err != nil {
		log.WithError(err).Fatal("Failed to generate random database password")
	}
	log.WithFields(log.Fields{
		"password": password,
	}).Info("Generated new database password")
}

// Execute DB migration command.
func runDBMigrate(settings *cli.Context, command, version string) {
	// The up and down commands require special treatment. If the
	// target version is specified it must be appended to the arguments
	// we pass to the go-pg migrations.
	var args []string
	args = append(args, command)
	if command == "up" && len(version) > 0 {
		args = append(args, version)
		log.Infof("Requested migration up to version %s", version)
	}
	if command == "down" && len(version) > 0 {
		args = append(args, version)
		log.Infof("Requested migration down to version %s", version)
	}
	if command == "set_version" {
		if version == "" {
			log.Fatal("Flag --version/-t is missing but required")
		}
		args = append(args, version)
		log.Infof("Requested setting version to %s", version)
	}

	db := getDBConn(settings)

	oldVersion, newVersion, err := dbops.Migrate(db, args...)
	if err == nil && newVersion == 0 {
		// Init operation doesn't fetch the database version but it
		// doesn't change the version either.
		newVersion, err = dbops.CurrentVersion(db)
		oldVersion = newVersion
	}
	_ = db.Close()
	if err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}

	availVersion := dbops.AvailableVersion()

	switch {
	case newVersion != oldVersion:
		log.Infof("Migrated database from version %d to %d", oldVersion, newVersion)
	case newVersion == 0:
		log.Infof("Database schema is empty (version 0)")
	case availVersion == oldVersion:
		log.Infof("Database version is %d (up-to-date)", oldVersion)
	default:
		log.Infof("Database version is %d (new version %d available)", oldVersion, availVersion)
	}
}

// Execute config-get command. It synthesizes the complete Kea DHCPv4
// configuration of the named server and prints it to stdout.
func runConfigGet(settings *cli.Context) error {
	db := getDBConn(settings)
	defer db.Close()

	server, err := dbmodel.GetDHCPServerByName(db, settings.String("server"))
	if err != nil {
		return err
	}
	if server == nil {
		log.Fatalf("Server '%s' does not exist", settings.String("server"))
	}

	config, err := kea.SynthesizeConfig(db, server.ID)
	if err != nil {
		return err
	}
	output, err := config.Marshal()
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

// Execute relay-get command. It prints the relay helper addresses for
// a prefix.
func runRelayGet(settings *cli.Context) error {
	db := getDBConn(settings)
	defer db.Close()

	relay, err := kea.GetRelayConfig(db, settings.String("prefix"), settings.String("routing-domain"))
	if err != nil {
		return err
	}
	for _, target := range relay.RelayTargets {
		fmt.Println(target)
	}
	return nil
}

// Execute seed-demo command. It populates the database with a small
// demo setup: a two-peer hot-standby cluster, a standalone server, a
// vendor option space with definitions and a few classified subnets.
func runSeedDemo(settings *cli.Context) error {
	db := getDBConn(settings)
	defer db.Close()

	space := &dbmodel.VendorOptionSpace{
		Name:         "cisco-ucm",
		EnterpriseID: 9,
	}
	if err := dbmodel.AddVendorOptionSpace(db, space); err != nil {
		return err
	}

	tftpDef := &dbmodel.OptionDefinition{
		Name:                "tftp-server",
		Code:                1,
		OptionType:          "ipv4-address",
		VendorOptionSpaceID: space.ID,
	}
	if err := dbmodel.AddOptionDefinition(db, tftpDef); err != nil {
		return err
	}

	tftpOption := &dbmodel.OptionData{
		Name:                "cisco-tftp",
		OptionDefinitionID:  tftpDef.ID,
		VendorOptionSpaceID: space.ID,
		DeliveryType:        dbmodel.DeliveryTypeVIVSO,
		Value:               "10.1.1.10",
		CSVFormat:           true,
	}
	if err := dbmodel.AddOptionData(db, tftpOption); err != nil {
		return err
	}

	phones := &dbmodel.ClientClass{
		Name:           "Cisco-UC-Phones",
		TestExpression: "substring(option[60].hex,0,9) == 'Cisco UCM'",
		OptionData:     []*dbmodel.OptionData{tftpOption},
	}
	if err := dbmodel.AddClientClass(db, phones); err != nil {
		return err
	}

	primary := &dbmodel.DHCPServer{
		Name:    "dhcp-primary",
		Address: "10.0.0.1",
		Port:    8000,
		Active:  true,
	}
	standby := &dbmodel.DHCPServer{
		Name:    "dhcp-standby",
		Address: "10.0.0.2",
		Port:    8000,
		Active:  true,
	}
	standalone := &dbmodel.DHCPServer{
		Name:    "dhcp-branch",
		Address: "10.0.0.5",
		Port:    8000,
		Active:  true,
	}
	for _, server := range []*dbmodel.DHCPServer{primary, standby, standalone} {
		if err := dbmodel.AddDHCPServer(db, server); err != nil {
			return err
		}
	}

	relationship := &dbmodel.HARelationship{
		Name:              "primary-dc-ha",
		Mode:              dbmodel.HAModeHotStandby,
		HeartbeatDelay:    10000,
		MaxResponseDelay:  60000,
		MaxAckDelay:       5000,
		MaxUnackedClients: 5,
		MultiThreading:    true,
		Peers: []*dbmodel.HAPeer{
			{DHCPServerID: primary.ID, Role: dbmodel.HAPeerRolePrimary, AutoFailover: true},
			{DHCPServerID: standby.ID, Role: dbmodel.HAPeerRoleStandby, AutoFailover: true},
		},
	}
	if err := dbmodel.AddHARelationship(db, relationship); err != nil {
		return err
	}

	prefixes := []*dbmodel.PrefixConfig{
		{
			Prefix:              "192.168.1.0/24",
			DHCPServerID:        primary.ID,
			Pool:                true,
			ValidLifetime:       3600,
			MaxLifetime:         7200,
			RoutersOptionOffset: 1,
			ClientClasses:       []*dbmodel.ClientClass{phones},
		},
		{
			Prefix:              "192.168.2.0/24",
			DHCPServerID:        primary.ID,
			Pool:                true,
			ValidLifetime:       3600,
			MaxLifetime:         7200,
			RoutersOptionOffset: 1,
		},
		{
			Prefix:              "10.50.0.0/24",
			DHCPServerID:        standalone.ID,
			Pool:                true,
			ValidLifetime:       1800,
			MaxLifetime:         3600,
			RoutersOptionOffset: 1,
		},
	}
	for _, prefix := range prefixes {
		if err := dbmodel.AddPrefixConfig(db, prefix); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"servers":        3,
		"prefix_configs": len(prefixes),
	}).Info("Seeded demo data")
	return nil
}

// Parse the general flag definitions into the objects compatible with
// the CLI library.
func parseFlagDefinitions(flagDefinitions []*dbops.CLIFlagDefinition) ([]cli.Flag, error) {
	var flags []cli.Flag
	for _, definition := range flagDefinitions {
		var flag cli.Flag

		var aliases []string
		if definition.Short != "" {
			aliases = append(aliases, definition.Short)
		}

		var envVars []string
		if definition.EnvironmentVariable != "" {
			envVars = append(envVars, definition.EnvironmentVariable)
		}

		if definition.Kind == reflect.Int {
			valueInt, err := strconv.ParseInt(definition.Default, 10, 0)
			if err != nil {
				return nil, fmt.Errorf("invalid default value ('%s') for parameter ('%s')",
					definition.Default, definition.Long)
			}

			flag = &cli.Int64Flag{
				Name:    definition.Long,
				Aliases: aliases,
				Usage:   definition.Description,
				EnvVars: envVars,
				Value:   valueInt,
			}
		} else {
			flag = &cli.StringFlag{
				Name:    definition.Long,
				Aliases: aliases,
				Usage:   definition.Description,
				EnvVars: envVars,
				Value:   definition.Default,
			}
		}

		flags = append(flags, flag)
	}

	return flags, nil
}

// Prepare urfave cli app with all flags and commands defined.
func setupApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Println(c.App.Version)
	}

	dbFlags, err := parseFlagDefinitions((*dbops.DatabaseCLIFlags)(nil).ConvertToCLIFlagDefinitions())
	if err != nil {
		log.WithError(err).Fatal("Invalid database CLI flag definitions")
	}

	dbCreateFlags, err := parseFlagDefinitions((*dbops.DatabaseCLIFlagsWithMaintenance)(nil).ConvertToCLIFlagDefinitions())
	if err != nil {
		log.WithError(err).Fatal("Invalid create database CLI flag definitions")
	}
	dbCreateFlags = append(dbCreateFlags, &cli.BoolFlag{
		Name:    "force",
		Usage:   "Recreate the database and the user if they exist",
		Aliases: []string{"f"},
	})

	var dbVerFlags []cli.Flag
	dbVerFlags = append(dbVerFlags, dbFlags...)
	dbVerFlags = append(dbVerFlags,
		&cli.StringFlag{
			Name:    "version",
			Usage:   "Target database schema version (optional)",
			Aliases: []string{"t"},
			EnvVars: []string{"ROOST_TOOL_DB_VERSION"},
		})

	var configGetFlags []cli.Flag
	configGetFlags = append(configGetFlags, dbFlags...)
	configGetFlags = append(configGetFlags,
		&cli.StringFlag{
			Name:     "server",
			Usage:    "The name of the DHCP server to generate the configuration for",
			Aliases:  []string{"s"},
			Required: true,
		})

	var relayGetFlags []cli.Flag
	relayGetFlags = append(relayGetFlags, dbFlags...)
	relayGetFlags = append(relayGetFlags,
		&cli.StringFlag{
			Name:     "prefix",
			Usage:    "The prefix in the CIDR notation, e.g. 192.168.1.0/24",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "routing-domain",
			Usage: "The routing domain qualifier of the prefix (optional)",
		})

	app := &cli.App{
		Name:     "Roost Tool",
		Usage:    "A tool for managing the Roost database and generating Kea configurations",
		Version:  roost.Version,
		HelpName: "roost-tool",
		Commands: []*cli.Command{
			{
				Name:        "db-create",
				Usage:       "Create new Roost database",
				UsageText:   "roost-tool db-create [options for db creation] -f",
				Description: ``,
				Flags:       dbCreateFlags,
				Category:    "Database",
				Action: func(c *cli.Context) error {
					runDBCreate(c)
					return nil
				},
			},
			{
				Name:      "db-password-gen",
				Usage:     "Generate random Roost database password",
				UsageText: "roost-tool db-password-gen",
				Category:  "Database",
				Action: func(c *cli.Context) error {
					runDBPasswordGen()
					return nil
				},
			},
			{
				Name:      "db-init",
				Usage:     "Create schema versioning table in the database",
				UsageText: "roost-tool db-init [options for db connection]",
				Flags:     dbFlags,
				Category:  "Database",
				Action: func(c *cli.Context) error {
					runDBMigrate(c, "init", "")
					return nil
				},
			},
			{
				Name:      "db-up",
				Usage:     "Run all available migrations or use -t to specify version",
				UsageText: "roost-tool db-up [options for db connection] [-t version]",
				Flags:     dbVerFlags,
				Category:  "Database",
				Action: func(c *cli.Context) error {
					runDBMigrate(c, "up", c.String("version"))
					return nil
				},
			},
			{
				Name:      "db-down",
				Usage:     "Revert last migration or use -t to specify version to downgrade to",
				UsageText: "roost-tool db-down [options for db connection] [-t version]",
				Flags:     dbVerFlags,
				Category:  "Database",
				Action: func(c *cli.Context) error {
					runDBMigrate(c, "down", c.String("version"))
					return nil
				},
			},
			{
				Name:      "db-reset",
				Usage:     "Revert all migrations",
				UsageText: "roost-tool db-reset [options for db connection]",
				Flags:     dbFlags,
				Category:  "Database",
				Action: func(c *cli.Context) error {
					runDBMigrate(c, "reset", "")
					return nil
				},
			},
			{
				Name:      "db-version",
				Usage:     "Print current migration version",
				UsageText: "roost-tool db-version [options for db connection]",
				Flags:     dbFlags,
				Category:  "Database",
				Action: func(c *cli.Context) error {
					runDBMigrate(c, "version", "")
					return nil
				},
			},
			{
				Name:      "config-get",
				Usage:     "Generate the Kea DHCPv4 configuration for a server",
				UsageText: "roost-tool config-get [options for db connection] -s server-name",
				Flags:     configGetFlags,
				Category:  "Configuration",
				Action:    runConfigGet,
			},
			{
				Name:      "relay-get",
				Usage:     "Print the DHCP relay helper addresses for a prefix",
				UsageText: "roost-tool relay-get [options for db connection] --prefix cidr [--routing-domain name]",
				Flags:     relayGetFlags,
				Category:  "Configuration",
				Action:    runRelayGet,
			},
			{
				Name:      "seed-demo",
				Usage:     "Populate the database with demo entities",
				UsageText: "roost-tool seed-demo [options for db connection]",
				Flags:     dbFlags,
				Category:  "Configuration",
				Action:    runSeedDemo,
			},
		},
	}

	return app
}

func main() {
	// Setup logging.
	roostutil.SetupLogging()

	app := setupApp()
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
