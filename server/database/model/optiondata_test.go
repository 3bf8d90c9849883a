package dbmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
	dbtest "isc.org/roost/server/database/test"
)

// Check adding and fetching option data.
func TestAddOptionData(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	def := &OptionDefinition{
		Name:        "tftp-server-address",
		Code:        150,
		OptionType:  "ip-address",
		OptionSpace: "dhcp4",
	}
	err := AddOptionDefinition(db, def)
	require.NoError(t, err)

	option := &OptionData{
		Name:               "tftp-main",
		OptionDefinitionID: def.ID,
		DeliveryType:       DeliveryTypeStandard,
		Value:              "10.0.0.50",
		CSVFormat:          true,
		AlwaysSend:         true,
	}
	err = AddOptionData(db, option)
	require.NoError(t, err)
	require.NotZero(t, option.ID)

	// the distinctive name must be unique
	err = AddOptionData(db, &OptionData{
		Name:               "tftp-main",
		OptionDefinitionID: def.ID,
		DeliveryType:       DeliveryTypeStandard,
		Value:              "10.0.0.51",
		CSVFormat:          true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")

	returned, err := GetOptionDataByID(db, option.ID)
	require.NoError(t, err)
	require.NotNil(t, returned)
	require.Equal(t, "10.0.0.50", returned.Value)
	require.True(t, returned.AlwaysSend)
	require.NotNil(t, returned.OptionDefinition)
	require.Equal(t, "tftp-server-address", returned.OptionDefinition.Name)
}

// Check the consistency rules between the delivery type and the
// vendor option space.
func TestOptionDataValidation(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	space := &VendorOptionSpace{
		Name:         "cisco-ucm",
		EnterpriseID: 9,
	}
	err := AddVendorOptionSpace(db, space)
	require.NoError(t, err)

	// standard delivery must not carry a vendor space
	err = AddOptionData(db, &OptionData{
		Name:                "bad-standard",
		DeliveryType:        DeliveryTypeStandard,
		VendorOptionSpaceID: space.ID,
		Value:               "foo",
		CSVFormat:           true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be set")

	// option 43 delivery requires a vendor space
	err = AddOptionData(db, &OptionData{
		Name:         "bad-option43",
		DeliveryType: DeliveryTypeOption43,
		Value:        "foo",
		CSVFormat:    true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")

	// VIVSO delivery requires a vendor space
	err = AddOptionData(db, &OptionData{
		Name:         "bad-vivso",
		DeliveryType: DeliveryTypeVIVSO,
		Value:        "foo",
		CSVFormat:    true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")

	// unknown delivery type
	err = AddOptionData(db, &OptionData{
		Name:         "bad-delivery",
		DeliveryType: "multicast",
		Value:        "foo",
		CSVFormat:    true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported delivery type")

	err = AddOptionData(db, &OptionData{
		Name:                "good-option43",
		DeliveryType:        DeliveryTypeOption43,
		VendorOptionSpaceID: space.ID,
		Value:               "10.0.0.50",
		CSVFormat:           true,
	})
	require.NoError(t, err)
}

// Check the hex string validation of non-CSV option values.
func TestOptionDataHexValidation(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	// colons, dashes and spaces are accepted separators
	err := AddOptionData(db, &OptionData{
		Name:         "hex-separated",
		DeliveryType: DeliveryTypeStandard,
		Value:        "0A:00:00-32 01",
	})
	require.NoError(t, err)

	// non-hex digits are rejected
	err = AddOptionData(db, &OptionData{
		Name:         "hex-invalid",
		DeliveryType: DeliveryTypeStandard,
		Value:        "0A0G",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "hex string")

	// incomplete bytes are rejected
	err = AddOptionData(db, &OptionData{
		Name:         "hex-odd",
		DeliveryType: DeliveryTypeStandard,
		Value:        "0A0",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "even number")
}

// Check that the option accessors return the values forwarded to Kea,
// including the effective space per delivery type.
func TestOptionDataAccessors(t *testing.T) {
	space := &VendorOptionSpace{
		ID:           1,
		Name:         "cisco-ucm",
		EnterpriseID: 9,
	}
	option := &OptionData{
		Name: "cisco-tftp",
		OptionDefinition: &OptionDefinition{
			Name: "tftp-server",
			Code: 150,
		},
		OptionSpace:       "dhcp4",
		VendorOptionSpace: space,
		DeliveryType:      DeliveryTypeVIVSO,
		Value:             "10.0.0.50",
		CSVFormat:         true,
		AlwaysSend:        true,
	}
	require.Equal(t, "tftp-server", option.GetName())
	require.EqualValues(t, 150, option.GetCode())
	require.Equal(t, "10.0.0.50", option.GetValue())
	require.True(t, option.IsAlwaysSend())
	require.True(t, option.IsCSVFormat())

	// VIVSO delivery uses the enterprise id based space name
	require.Equal(t, "vendor-9", option.GetSpace())

	// option 43 delivery uses the vendor space name
	option.DeliveryType = DeliveryTypeOption43
	require.Equal(t, "cisco-ucm", option.GetSpace())

	// standard delivery uses the base option space
	option.DeliveryType = DeliveryTypeStandard
	option.VendorOptionSpace = nil
	require.Equal(t, "dhcp4", option.GetSpace())

	// without a definition the name and code are empty
	option.OptionDefinition = nil
	require.Empty(t, option.GetName())
	require.Zero(t, option.GetCode())
}

// Check updating option data.
func TestUpdateOptionData(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	option := &OptionData{
		Name:         "domain-search",
		DeliveryType: DeliveryTypeStandard,
		Value:        "example.org",
		CSVFormat:    true,
	}
	err := AddOptionData(db, option)
	require.NoError(t, err)

	option.Value = "example.com"
	err = UpdateOptionData(db, option)
	require.NoError(t, err)

	returned, err := GetOptionDataByID(db, option.ID)
	require.NoError(t, err)
	require.Equal(t, "example.com", returned.Value)

	option.ID = 12345
	err = UpdateOptionData(db, option)
	require.ErrorIs(t, err, ErrNotExists)
}

// Check fetching all option data ordered by the distinctive name.
func TestGetAllOptionData(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	for _, name := range []string{"ntp-servers", "domain-search"} {
		err := AddOptionData(db, &OptionData{
			Name:         name,
			DeliveryType: DeliveryTypeStandard,
			Value:        "foo",
			CSVFormat:    true,
		})
		require.NoError(t, err)
	}

	options, err := GetAllOptionData(db)
	require.NoError(t, err)
	require.Len(t, options, 2)
	require.Equal(t, "domain-search", options[0].Name)
	require.Equal(t, "ntp-servers", options[1].Name)
}
