package dbmodel

import (
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"

	keaconfig "isc.org/roost/appcfg/kea"
	dbops "isc.org/roost/server/database"
)

// Supported ways of delivering an option value to the client.
const (
	// A direct option in the dhcp4/dhcp6 space.
	DeliveryTypeStandard = "standard"
	// Encapsulated in option 43 (vendor-encapsulated-options).
	DeliveryTypeOption43 = "option43"
	// Delivered over option 125 (VIVSO), keyed by the enterprise id.
	DeliveryTypeVIVSO = "vivso"
)

// Interface checks.
var _ keaconfig.OptionAccessor = (*OptionData)(nil)

// A structure reflecting the option_data SQL table. It binds an option
// definition (or a standard option) to a concrete value (Kea
// option-data). The Name is a distinctive identifier of the instance;
// the option name and code forwarded to Kea come from the definition.
type OptionData struct {
	tableName           struct{} `pg:"option_data"` //nolint:unused
	ID                  int64
	Name                string
	OptionDefinitionID  int64             `pg:"option_definition_id"`
	OptionDefinition    *OptionDefinition `pg:"rel:has-one"`
	OptionSpace         string
	VendorOptionSpaceID int64              `pg:"vendor_option_space_id"`
	VendorOptionSpace   *VendorOptionSpace `pg:"rel:has-one"`
	DeliveryType        string
	Value               string
	AlwaysSend          bool `pg:",use_zero"`
	CSVFormat           bool `pg:"csv_format,use_zero"`
}

// Returns the Kea option name taken from the definition. Empty when
// the option data doesn't reference a definition.
func (option *OptionData) GetName() string {
	if option.OptionDefinition != nil {
		return option.OptionDefinition.Name
	}
	return ""
}

// Returns the Kea option code taken from the definition. Zero when the
// option data doesn't reference a definition.
func (option *OptionData) GetCode() uint16 {
	if option.OptionDefinition != nil {
		return option.OptionDefinition.Code
	}
	return 0
}

// Returns the effective space name depending on the delivery type:
// vendor-<enterprise-id> for VIVSO, the vendor space name for option
// 43, the base option space otherwise.
func (option *OptionData) GetSpace() string {
	if option.VendorOptionSpace != nil {
		if option.DeliveryType == DeliveryTypeVIVSO {
			return option.VendorOptionSpace.GetVIVSOSpaceName()
		}
		return option.VendorOptionSpace.Name
	}
	return option.OptionSpace
}

// Returns the option value.
func (option *OptionData) GetValue() string {
	return option.Value
}

// Indicates if the option should always be sent, regardless whether the
// client requested it.
func (option *OptionData) IsAlwaysSend() bool {
	return option.AlwaysSend
}

// Indicates if the option value is a comma separated list of fields
// rather than a hex string.
func (option *OptionData) IsCSVFormat() bool {
	return option.CSVFormat
}

// Validates the option data consistency before it is committed.
func (option *OptionData) validate() error {
	switch option.DeliveryType {
	case DeliveryTypeStandard:
		if option.VendorOptionSpaceID != 0 {
			return errors.Errorf("vendor option space must not be set for the standard delivery of option data %s", option.Name)
		}
	case DeliveryTypeOption43:
		if option.VendorOptionSpaceID == 0 {
			return errors.Errorf("vendor option space is required for the option 43 delivery of option data %s", option.Name)
		}
	case DeliveryTypeVIVSO:
		if option.VendorOptionSpaceID == 0 {
			return errors.Errorf("vendor option space is required for the VIVSO delivery of option data %s", option.Name)
		}
		if option.VendorOptionSpace != nil && option.VendorOptionSpace.EnterpriseID == 0 {
			return errors.Errorf("the vendor option space of option data %s must have an enterprise ID for the VIVSO delivery", option.Name)
		}
	default:
		return errors.Errorf("unsupported delivery type %s of option data %s", option.DeliveryType, option.Name)
	}

	// A non-CSV value must be a valid hex string with complete bytes.
	if !option.CSVFormat && len(option.Value) > 0 {
		hexValue := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(option.Value)
		if !govalidator.IsHexadecimal(hexValue) {
			return errors.Errorf("the non-CSV value of option data %s must be a valid hex string", option.Name)
		}
		if len(hexValue)%2 != 0 {
			return errors.Errorf("the hex value of option data %s must have an even number of digits", option.Name)
		}
	}
	return nil
}

// Adds new option data to the database.
func AddOptionData(dbIface interface{}, option *OptionData) error {
	if err := option.validate(); err != nil {
		return err
	}

	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	if _, err = tx.Model(option).Insert(); err != nil {
		return errors.Wrapf(err, "problem adding option data %s", option.Name)
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing new option data %s", option.Name)
}

// Updates option data in the database.
func UpdateOptionData(dbIface interface{}, option *OptionData) error {
	if err := option.validate(); err != nil {
		return err
	}

	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	result, err := tx.Model(option).WherePK().Update()
	if err != nil {
		return errors.Wrapf(err, "problem updating option data with ID %d", option.ID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "option data with ID %d does not exist", option.ID)
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing updated option data with ID %d", option.ID)
}

// Fetches option data by ID together with its definition and vendor
// space. Returns nil when the entry doesn't exist.
func GetOptionDataByID(dbi dbops.DBI, optionID int64) (*OptionData, error) {
	option := &OptionData{}
	err := dbi.Model(option).
		Relation("OptionDefinition.VendorOptionSpace").
		Relation("VendorOptionSpace").
		Where("option_data.id = ?", optionID).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting option data with ID %d", optionID)
	}
	return option, nil
}

// Fetches all option data ordered by the distinctive name.
func GetAllOptionData(dbi dbops.DBI) ([]OptionData, error) {
	var options []OptionData
	err := dbi.Model(&options).
		Relation("OptionDefinition.VendorOptionSpace").
		Relation("VendorOptionSpace").
		OrderExpr("option_data.name ASC").
		Select()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, errors.Wrapf(err, "problem getting all option data")
	}
	return options, nil
}

// Fetches the global option data of the given server, in the
// association order.
func GetOptionDataByServerID(dbi dbops.DBI, serverID int64) ([]OptionData, error) {
	var options []OptionData
	err := dbi.Model(&options).
		Relation("OptionDefinition.VendorOptionSpace").
		Relation("VendorOptionSpace").
		Join("INNER JOIN dhcp_server_to_option_data AS stod ON stod.option_data_id = option_data.id").
		Where("stod.dhcp_server_id = ?", serverID).
		OrderExpr("stod.order_index ASC, option_data.id ASC").
		Select()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, errors.Wrapf(err, "problem getting global option data for server %d", serverID)
	}
	return options, nil
}

// Deletes the option data and all its associations.
func DeleteOptionData(dbi dbops.DBI, optionID int64) error {
	option := &OptionData{
		ID: optionID,
	}
	result, err := dbi.Model(option).WherePK().Delete()
	if err != nil {
		return errors.Wrapf(err, "problem deleting option data with ID %d", optionID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "option data with ID %d does not exist", optionID)
	}
	return nil
}
