package dbmodel

import (
	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"

	keaconfig "isc.org/roost/appcfg/kea"
	dbops "isc.org/roost/server/database"
)

// Interface checks.
var _ keaconfig.OptionDefinitionAccessor = (*OptionDefinition)(nil)

// A structure reflecting the option_definition SQL table. It declares
// the structure of a custom DHCP option (Kea option-def). Standard
// options are built into Kea and don't need definitions.
type OptionDefinition struct {
	tableName           struct{} `pg:"option_definition"` //nolint:unused
	ID                  int64
	Name                string
	Code                uint16
	OptionType          string
	OptionSpace         string
	VendorOptionSpaceID int64              `pg:"vendor_option_space_id"`
	VendorOptionSpace   *VendorOptionSpace `pg:"rel:has-one"`
	Array               bool               `pg:"is_array,use_zero"`
	Encapsulate         string
	RecordTypes         string
	Standard            bool `pg:",use_zero"`
}

// Returns the definition name.
func (def *OptionDefinition) GetName() string {
	return def.Name
}

// Returns the option code declared by the definition.
func (def *OptionDefinition) GetCode() uint16 {
	return def.Code
}

// Returns the option data type.
func (def *OptionDefinition) GetType() string {
	return def.OptionType
}

// Returns the effective space name: the vendor space name when the
// definition belongs to a vendor space, the base option space otherwise.
func (def *OptionDefinition) GetSpace() string {
	if def.VendorOptionSpace != nil {
		return def.VendorOptionSpace.Name
	}
	return def.OptionSpace
}

// Returns the array flag.
func (def *OptionDefinition) IsArray() bool {
	return def.Array
}

// Returns the encapsulated option space name.
func (def *OptionDefinition) GetEncapsulate() string {
	return def.Encapsulate
}

// Returns the comma separated field types of a record option.
func (def *OptionDefinition) GetRecordTypes() string {
	return def.RecordTypes
}

// Indicates if this is a standard option definition built into Kea.
// Standard definitions are never emitted into the option-def block.
func (def *OptionDefinition) IsStandard() bool {
	return def.Standard
}

// Adds a new option definition to the database. The (space, code, name)
// tuple must be unique among the definitions.
func AddOptionDefinition(dbIface interface{}, def *OptionDefinition) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	if _, err = tx.Model(def).Insert(); err != nil {
		return errors.Wrapf(err, "problem adding option definition %s (code %d)", def.Name, def.Code)
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing new option definition %s", def.Name)
}

// Fetches an option definition by ID together with its vendor space.
// Returns nil when the definition doesn't exist.
func GetOptionDefinitionByID(dbi dbops.DBI, defID int64) (*OptionDefinition, error) {
	def := &OptionDefinition{}
	err := dbi.Model(def).
		Relation("VendorOptionSpace").
		Where("option_definition.id = ?", defID).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting option definition with ID %d", defID)
	}
	return def, nil
}

// Fetches all option definitions belonging to the given vendor option
// space, ordered by code.
func GetOptionDefinitionsByVendorSpaceID(dbi dbops.DBI, spaceID int64) ([]OptionDefinition, error) {
	var defs []OptionDefinition
	err := dbi.Model(&defs).
		Relation("VendorOptionSpace").
		Where("option_definition.vendor_option_space_id = ?", spaceID).
		OrderExpr("option_definition.code ASC").
		Select()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, errors.Wrapf(err, "problem getting option definitions for vendor space %d", spaceID)
	}
	return defs, nil
}

// Fetches all option definitions ordered by space, code and name.
func GetAllOptionDefinitions(dbi dbops.DBI) ([]OptionDefinition, error) {
	var defs []OptionDefinition
	err := dbi.Model(&defs).
		Relation("VendorOptionSpace").
		OrderExpr("option_definition.option_space ASC, option_definition.code ASC, option_definition.name ASC").
		Select()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, errors.Wrapf(err, "problem getting all option definitions")
	}
	return defs, nil
}

// Deletes the option definition. The deletion fails when option data
// still references the definition.
func DeleteOptionDefinition(dbi dbops.DBI, defID int64) error {
	def := &OptionDefinition{
		ID: defID,
	}
	result, err := dbi.Model(def).WherePK().Delete()
	if err != nil {
		return errors.Wrapf(err, "problem deleting option definition with ID %d", defID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "option definition with ID %d does not exist", defID)
	}
	return nil
}
