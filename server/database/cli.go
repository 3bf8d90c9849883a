// The package provides a set of utilities to parse and convert the CLI
// flags and the environment variables into the database settings. Roost
// is composed of a few binaries that use different CLI libraries. It's
// essential to process the database parameters consistently regardless
// of how they are provided.
package dbops

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
)

// Iterates over the struct fields, including the fields of the embedded
// structs. The provided function is called for members that aren't
// structs. It accepts an object describing the field of the struct (it
// may be used to retrieve the field name or tags) and another object
// representing the corresponding value of the iterated object. If the
// iterated object is a nil pointer the value objects passed to the
// callback are invalid; only the field metadata may be read then.
func iterateOverFields(obj any, f func(field reflect.StructField, valueField reflect.Value)) {
	v := reflect.ValueOf(obj).Elem()
	vType := reflect.TypeOf(obj).Elem()

	for i := 0; i < vType.NumField(); i++ {
		field := vType.Field(i)
		var valueField reflect.Value
		if v.IsValid() {
			valueField = v.Field(i)
		}

		if field.Type.Kind() == reflect.Struct {
			for j := 0; j < field.Type.NumField(); j++ {
				var nestedValue reflect.Value
				if v.IsValid() {
					nestedValue = valueField.Field(j)
				}
				f(field.Type.Field(j), nestedValue)
			}
			continue
		}
		f(field, valueField)
	}
}

// Helper function that generalizes setting the value of the members based
// on the keys in the member tags and an external value lookup.
func setFieldsBasedOnTags(obj any, tagName string, valueLookup func(string) (string, bool)) {
	iterateOverFields(obj, func(field reflect.StructField, valueField reflect.Value) {
		if !valueField.IsValid() {
			return
		}
		key, ok := field.Tag.Lookup(tagName)
		if !ok {
			return
		}

		value, ok := valueLookup(key)
		if !ok {
			return
		}

		switch field.Type.Kind() {
		case reflect.Int64:
			// Is it time.Duration?
			if field.Type.AssignableTo(reflect.TypeOf(time.Duration(0))) {
				duration, err := time.ParseDuration(value)
				if err != nil {
					return
				}
				valueField.SetInt(int64(duration))
			}
		case reflect.String:
			valueField.SetString(value)
		case reflect.Int:
			envValueInt, err := strconv.ParseInt(value, 10, 0)
			if err != nil {
				return
			}
			valueField.SetInt(envValueInt)
		case reflect.Bool:
			envValueBool, err := strconv.ParseBool(value)
			if err != nil {
				return
			}
			valueField.SetBool(envValueBool)
		default:
			// Skip an unsupported field.
		}
	})
}

// The definition of the CLI flag compatible with the struct tags
// used by the 'github.com/jessevdk/go-flags' library.
type CLIFlagDefinition struct {
	Short               string
	Long                string
	Description         string
	EnvironmentVariable string
	Default             string
	Kind                reflect.Kind
}

// Reads the CLI flags metadata from the struct tags. It must be safe
// for nil pointers.
func convertToCLIFlagDefinitions(obj any) []*CLIFlagDefinition {
	var flags []*CLIFlagDefinition

	iterateOverFields(obj, func(field reflect.StructField, _ reflect.Value) {
		var flag CLIFlagDefinition

		flag.Kind = field.Type.Kind()

		if value, ok := field.Tag.Lookup("short"); ok {
			flag.Short = value
		}
		if value, ok := field.Tag.Lookup("long"); ok {
			flag.Long = value
		}
		if value, ok := field.Tag.Lookup("description"); ok {
			flag.Description = value
		}
		if value, ok := field.Tag.Lookup("env"); ok {
			flag.EnvironmentVariable = value
		}
		if value, ok := field.Tag.Lookup("default"); ok {
			flag.Default = value
		}

		flags = append(flags, &flag)
	})

	return flags
}

// The lookup object to read the CLI values from the external source.
type CLILookup interface {
	IsSet(key string) bool
	String(key string) string
}

// General definition of the CLI flags used to connect to the database.
// The struct tags are compatible with the 'github.com/jessevdk/go-flags'
// library so the struct can be handed to its parser directly.
type DatabaseCLIFlags struct {
	URL          string        `long:"db-url" description:"The URL to locate the Roost PostgreSQL database" env:"ROOST_DATABASE_URL"`
	DBName       string        `short:"d" long:"db-name" description:"The name of the database to connect to" env:"ROOST_DATABASE_NAME" default:"roost"`
	User         string        `short:"u" long:"db-user" description:"The user name to be used for database connections" env:"ROOST_DATABASE_USER_NAME" default:"roost"`
	Password     string        `long:"db-password" description:"The database password to be used for database connections; it is recommended to provide this value using an environment variable or leave it empty to type it in the safe prompt." env:"ROOST_DATABASE_PASSWORD"`
	Host         string        `long:"db-host" description:"The host name, IP address or socket where database is available" env:"ROOST_DATABASE_HOST"`
	Port         int           `short:"p" long:"db-port" description:"The port on which the database is available" env:"ROOST_DATABASE_PORT" default:"5432"`
	TraceSQL     bool          `long:"db-trace-queries" description:"Enable tracing SQL queries" env:"ROOST_DATABASE_TRACE"`
	ReadTimeout  time.Duration `long:"db-read-timeout" description:"Timeout for socket reads; zero disables the timeout; requires unit, e.g.: 42s" env:"ROOST_DATABASE_READ_TIMEOUT" default:"0s"`
	WriteTimeout time.Duration `long:"db-write-timeout" description:"Timeout for socket writes; zero disables the timeout; requires unit, e.g.: 42s" env:"ROOST_DATABASE_WRITE_TIMEOUT" default:"0s"`
}

// Converts the CLI flag values to the database settings object.
// It may parse the access options from the URL but returns an error if
// it's provided simultaneously with the standard parameters.
func (s *DatabaseCLIFlags) ConvertToDatabaseSettings() (*DatabaseSettings, error) {
	settings := &DatabaseSettings{
		DBName:       s.DBName,
		User:         s.User,
		Password:     s.Password,
		Host:         s.Host,
		Port:         s.Port,
		TraceSQL:     s.TraceSQL,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	}

	if s.URL != "" {
		opts, err := pg.ParseURL(s.URL)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid database URL: %s", s.URL)
		}

		host, portRaw, ok := strings.Cut(opts.Addr, ":")
		if !ok {
			// The pg.ParseURL always appends the port if it's missing.
			return nil, errors.Errorf("unknown address format: '%s'", opts.Addr)
		}
		port, err := strconv.ParseInt(portRaw, 10, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid port: '%s'", portRaw)
		}

		settings.DBName = opts.Database
		settings.Host = host
		settings.Port = int(port)
		settings.Password = opts.Password
		settings.User = opts.User
	}

	return settings, nil
}

// Returns the CLI flag definitions as objects. This function is
// dedicated to avoiding parsing the struct tags outside the module.
func (s *DatabaseCLIFlags) ConvertToCLIFlagDefinitions() []*CLIFlagDefinition {
	return convertToCLIFlagDefinitions(s)
}

// Reads the member values from the environment variables. The related
// environment variable name is read from the 'env' struct tag.
func (s *DatabaseCLIFlags) ReadFromEnvironment() {
	setFieldsBasedOnTags(s, "env", os.LookupEnv)
}

// Reads the member values from the CLI flags using the external CLI
// lookup. The flag names are read from the 'long' struct tag.
func (s *DatabaseCLIFlags) ReadFromCLI(lookup CLILookup) {
	setFieldsBasedOnTags(s, "long", func(key string) (string, bool) {
		value := lookup.String(key)
		if value != "" || lookup.IsSet(key) {
			return value, true
		}
		return "", false
	})
}

// The database CLI flags extended with the maintenance credentials.
// The maintenance access should be used to perform operations outside
// the standard database, such as creating or removing databases.
type DatabaseCLIFlagsWithMaintenance struct {
	DatabaseCLIFlags
	MaintenanceDBName   string `short:"m" long:"db-maintenance-name" description:"The existing maintenance database name" env:"ROOST_DATABASE_MAINTENANCE_NAME" default:"postgres"`
	MaintenanceUser     string `short:"a" long:"db-maintenance-user" description:"The Postgres database administrator user name" env:"ROOST_DATABASE_MAINTENANCE_USER_NAME" default:"postgres"`
	MaintenancePassword string `long:"db-maintenance-password" description:"The Postgres database administrator password" env:"ROOST_DATABASE_MAINTENANCE_PASSWORD"`
}

// Returns the database settings needed to connect to the maintenance
// database using the maintenance credentials.
func (s *DatabaseCLIFlagsWithMaintenance) ConvertToMaintenanceDatabaseSettings() (*DatabaseSettings, error) {
	settings, err := s.ConvertToDatabaseSettings()
	if err != nil {
		return nil, err
	}

	settings.DBName = s.MaintenanceDBName
	settings.User = s.MaintenanceUser
	settings.Password = s.MaintenancePassword
	return settings, nil
}

// Returns the CLI flag definitions as objects, including the flags of
// the embedded structure.
func (s *DatabaseCLIFlagsWithMaintenance) ConvertToCLIFlagDefinitions() []*CLIFlagDefinition {
	return convertToCLIFlagDefinitions(s)
}

// Reads the member values from the environment variables.
func (s *DatabaseCLIFlagsWithMaintenance) ReadFromEnvironment() {
	setFieldsBasedOnTags(s, "env", os.LookupEnv)
}

// Reads the member values from the CLI flags using the external CLI
// lookup.
func (s *DatabaseCLIFlagsWithMaintenance) ReadFromCLI(lookup CLILookup) {
	setFieldsBasedOnTags(s, "long", func(key string) (string, bool) {
		value := lookup.String(key)
		if value != "" || lookup.IsSet(key) {
			return value, true
		}
		return "", false
	})
}
