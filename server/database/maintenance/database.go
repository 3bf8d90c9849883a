// Package maintenance contains the low level operations performed with
// the administrative credentials outside the standard Roost database.
package maintenance

import (
	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
)

// Checks if the error signals that the database already exists.
func isDuplicateDatabase(err error) bool {
	var pgErr pg.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "42P04" // duplicate_database
}

// Creates a database with a given name. Returns false without an error
// when a database with this name already exists.
func CreateDatabase(dbi pg.DBI, dbName string) (created bool, err error) {
	if _, err = dbi.Exec("CREATE DATABASE ?;", pg.Ident(dbName)); err != nil {
		if isDuplicateDatabase(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, `problem creating the database "%s"`, dbName)
	}
	return true, nil
}

// Creates a database with a given name by cloning a template database.
// Returns false without an error when a database with this name already
// exists.
func CreateDatabaseFromTemplate(dbi pg.DBI, dbName, templateName string) (created bool, err error) {
	if _, err = dbi.Exec("CREATE DATABASE ? TEMPLATE ?;", pg.Ident(dbName), pg.Ident(templateName)); err != nil {
		if isDuplicateDatabase(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, `problem creating the database "%s" from the template "%s"`,
			dbName, templateName)
	}
	return true, nil
}

// Drops a database with a given name. It doesn't fail if the database
// doesn't exist.
func DropDatabaseIfExists(dbi pg.DBI, dbName string) error {
	if _, err := dbi.Exec("DROP DATABASE IF EXISTS ?;", pg.Ident(dbName)); err != nil {
		return errors.Wrapf(err, `problem dropping the database "%s"`, dbName)
	}
	return nil
}
