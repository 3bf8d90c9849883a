package dbops

import (
	"fmt"
	"os"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

// Alias to pg.DB.
type PgDB = pg.DB

// Alias to pg.Options.
type PgOptions = pg.Options

// A common interface for go-pg DB and Tx (transaction) objects.
type DBI = orm.DB

// Enables singular SQL table names for go-pg ORM.
func init() {
	orm.SetTableNameInflector(func(s string) string {
		return s
	})
}

// The database connection settings.
type DatabaseSettings struct {
	DBName       string
	User         string
	Password     string
	Host         string
	Port         int
	TraceSQL     bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Converts the database settings to the go-pg specific connection parameters.
func (s *DatabaseSettings) PgParams() *PgOptions {
	pgopts := &PgOptions{
		Database:     s.DBName,
		User:         s.User,
		Password:     s.Password,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	}
	if len(s.Host) != 0 && s.Host[0] == '/' {
		// Socket connection.
		pgopts.Network = "unix"
		pgopts.Addr = fmt.Sprintf("%s/.s.PGSQL.%d", s.Host, s.Port)
	} else {
		pgopts.Network = "tcp"
		pgopts.Addr = fmt.Sprintf("%s:%d", s.Host, s.Port)
	}
	return pgopts
}

// Fetches the database password from the environment variable or prompts
// the user for the password when it hasn't been specified any other way.
func Password(settings *DatabaseSettings) error {
	if len(settings.Password) > 0 {
		return nil
	}
	if password, ok := os.LookupEnv("ROOST_DATABASE_PASSWORD"); ok {
		settings.Password = password
		return nil
	}

	// Prompt the user for database password.
	fmt.Printf("database password: ")
	pass, err := term.ReadPassword(0)
	fmt.Print("\n")
	if err != nil {
		return errors.Wrapf(err, "problem reading database password from terminal")
	}
	settings.Password = string(pass)
	return nil
}
