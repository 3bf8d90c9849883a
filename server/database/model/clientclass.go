package dbmodel

import (
	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"

	dbops "isc.org/roost/server/database"
)

// A structure reflecting the client_class SQL table. A client class
// conditionally assigns options to clients matching the test
// expression. The expression is opaque to Roost: it is stored and
// forwarded to Kea verbatim, never parsed.
type ClientClass struct {
	tableName        struct{} `pg:"client_class"` //nolint:unused
	ID               int64
	Name             string
	TestExpression   string
	LocalDefinitions bool `pg:",use_zero"`

	// PXE boot fields.
	NextServer     string
	ServerHostname string
	BootFileName   string

	OptionData []*OptionData `pg:"many2many:client_class_to_option_data,fk:client_class_id,join_fk:option_data_id"`
}

// A structure reflecting the client_class_to_option_data SQL table
// which associates option data with client classes.
type ClientClassToOptionData struct {
	ClientClassID int64 `pg:",pk"`
	OptionDataID  int64 `pg:",pk"`
	OrderIndex    int64
}

// Adds a new client class to the database together with its option
// data associations.
func AddClientClass(dbIface interface{}, class *ClientClass) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	if _, err = tx.Model(class).Insert(); err != nil {
		return errors.Wrapf(err, "problem adding client class %s", class.Name)
	}

	if err = setClientClassOptionData(tx, class); err != nil {
		return err
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing new client class %s", class.Name)
}

// Updates the client class and replaces its option data associations.
func UpdateClientClass(dbIface interface{}, class *ClientClass) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	result, err := tx.Model(class).WherePK().Update()
	if err != nil {
		return errors.Wrapf(err, "problem updating client class with ID %d", class.ID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "client class with ID %d does not exist", class.ID)
	}

	if _, err = tx.Model((*ClientClassToOptionData)(nil)).
		Where("client_class_id = ?", class.ID).
		Delete(); err != nil {
		return errors.Wrapf(err, "problem removing option data from client class %d", class.ID)
	}
	if err = setClientClassOptionData(tx, class); err != nil {
		return err
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing updated client class with ID %d", class.ID)
}

// Inserts the associations between the client class and its option data.
func setClientClassOptionData(tx *pg.Tx, class *ClientClass) error {
	var assocs []ClientClassToOptionData
	for i, option := range class.OptionData {
		assocs = append(assocs, ClientClassToOptionData{
			ClientClassID: class.ID,
			OptionDataID:  option.ID,
			OrderIndex:    int64(i),
		})
	}
	if len(assocs) == 0 {
		return nil
	}
	if _, err := tx.Model(&assocs).OnConflict("DO NOTHING").Insert(); err != nil {
		return errors.Wrapf(err, "problem associating option data with client class %d", class.ID)
	}
	return nil
}

// Fetches a client class by ID together with its option data. Returns
// nil when the class doesn't exist.
func GetClientClassByID(dbi dbops.DBI, classID int64) (*ClientClass, error) {
	class := &ClientClass{}
	err := dbi.Model(class).
		Relation("OptionData.OptionDefinition.VendorOptionSpace").
		Relation("OptionData.VendorOptionSpace").
		Where("client_class.id = ?", classID).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting client class with ID %d", classID)
	}
	return class, nil
}

// Fetches a client class by the unique name. Returns nil when the
// class doesn't exist.
func GetClientClassByName(dbi dbops.DBI, name string) (*ClientClass, error) {
	class := &ClientClass{}
	err := dbi.Model(class).
		Relation("OptionData.OptionDefinition.VendorOptionSpace").
		Relation("OptionData.VendorOptionSpace").
		Where("client_class.name = ?", name).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting client class %s", name)
	}
	return class, nil
}

// Fetches the server-level client classes of the given server, in
// the association order.
func GetClientClassesByServerID(dbi dbops.DBI, serverID int64) ([]ClientClass, error) {
	var classes []ClientClass
	err := dbi.Model(&classes).
		Relation("OptionData.OptionDefinition.VendorOptionSpace").
		Relation("OptionData.VendorOptionSpace").
		Join("INNER JOIN dhcp_server_to_client_class AS stoc ON stoc.client_class_id = client_class.id").
		Where("stoc.dhcp_server_id = ?", serverID).
		OrderExpr("stoc.order_index ASC, client_class.id ASC").
		Select()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, errors.Wrapf(err, "problem getting client classes for server %d", serverID)
	}
	return classes, nil
}

// Fetches all client classes ordered by name.
func GetAllClientClasses(dbi dbops.DBI) ([]ClientClass, error) {
	var classes []ClientClass
	err := dbi.Model(&classes).
		Relation("OptionData.OptionDefinition.VendorOptionSpace").
		Relation("OptionData.VendorOptionSpace").
		OrderExpr("client_class.name ASC").
		Select()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, errors.Wrapf(err, "problem getting all client classes")
	}
	return classes, nil
}

// Deletes the client class and all its associations.
func DeleteClientClass(dbi dbops.DBI, classID int64) error {
	class := &ClientClass{
		ID: classID,
	}
	result, err := dbi.Model(class).WherePK().Delete()
	if err != nil {
		return errors.Wrapf(err, "problem deleting client class with ID %d", classID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "client class with ID %d does not exist", classID)
	}
	return nil
}
