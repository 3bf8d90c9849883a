package dbmodel

import (
	"fmt"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"

	dbops "isc.org/roost/server/database"
)

// A structure reflecting the vendor_option_space SQL table. A vendor
// option space groups custom options of one vendor and is identified by
// the IANA enterprise id when the options are delivered over VIVSO.
type VendorOptionSpace struct {
	tableName    struct{} `pg:"vendor_option_space"` //nolint:unused
	ID           int64
	Name         string
	EnterpriseID int64 `pg:"enterprise_id"`
}

// Returns the space name used for the VIVSO delivery, e.g. vendor-9.
func (space *VendorOptionSpace) GetVIVSOSpaceName() string {
	return fmt.Sprintf("vendor-%d", space.EnterpriseID)
}

// Adds a new vendor option space to the database.
func AddVendorOptionSpace(dbi dbops.DBI, space *VendorOptionSpace) error {
	if _, err := dbi.Model(space).Insert(); err != nil {
		return errors.Wrapf(err, "problem adding vendor option space %s", space.Name)
	}
	return nil
}

// Fetches a vendor option space by ID. Returns nil when it doesn't exist.
func GetVendorOptionSpaceByID(dbi dbops.DBI, spaceID int64) (*VendorOptionSpace, error) {
	space := &VendorOptionSpace{}
	err := dbi.Model(space).
		Where("vendor_option_space.id = ?", spaceID).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting vendor option space with ID %d", spaceID)
	}
	return space, nil
}

// Fetches all vendor option spaces ordered by the enterprise id.
func GetAllVendorOptionSpaces(dbi dbops.DBI) ([]VendorOptionSpace, error) {
	var spaces []VendorOptionSpace
	err := dbi.Model(&spaces).
		OrderExpr("enterprise_id ASC, name ASC").
		Select()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, errors.Wrapf(err, "problem getting all vendor option spaces")
	}
	return spaces, nil
}

// Deletes the vendor option space and, by cascade, its option
// definitions.
func DeleteVendorOptionSpace(dbi dbops.DBI, spaceID int64) error {
	space := &VendorOptionSpace{
		ID: spaceID,
	}
	result, err := dbi.Model(space).WherePK().Delete()
	if err != nil {
		return errors.Wrapf(err, "problem deleting vendor option space with ID %d", spaceID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "vendor option space with ID %d does not exist", spaceID)
	}
	return nil
}
