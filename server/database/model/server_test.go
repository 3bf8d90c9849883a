package dbmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
	dbtest "isc.org/roost/server/database/test"
)

// Check if adding a DHCP server to the database works.
func TestAddDHCPServer(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	// add first server, should be no error
	server := &DHCPServer{
		Name:    "dhcp-primary",
		Address: "10.0.0.1",
		Port:    8000,
		Active:  true,
	}
	err := AddDHCPServer(db, server)
	require.NoError(t, err)
	require.NotZero(t, server.ID)

	// add another one but with the same name - an error should be raised
	server2 := &DHCPServer{
		Name:    "dhcp-primary",
		Address: "10.0.0.2",
		Port:    8000,
	}
	err = AddDHCPServer(db, server2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")
}

// Check if updating a DHCP server in the database works.
func TestUpdateDHCPServer(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	server := &DHCPServer{
		Name:    "dhcp-primary",
		Address: "10.0.0.1",
		Port:    8000,
		Active:  true,
	}
	err := AddDHCPServer(db, server)
	require.NoError(t, err)

	server.Address = "10.0.0.10"
	server.Active = false
	err = UpdateDHCPServer(db, server)
	require.NoError(t, err)

	returned, err := GetDHCPServerByID(db, server.ID)
	require.NoError(t, err)
	require.NotNil(t, returned)
	require.Equal(t, "10.0.0.10", returned.Address)
	require.False(t, returned.Active)

	// updating a non-existing server should fail
	server.ID = 12345
	err = UpdateDHCPServer(db, server)
	require.ErrorIs(t, err, ErrNotExists)
}

// Check fetching a server by name and by ID.
func TestGetDHCPServer(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	// get non-existing server
	server, err := GetDHCPServerByName(db, "dhcp-primary")
	require.NoError(t, err)
	require.Nil(t, server)

	added := &DHCPServer{
		Name:    "dhcp-primary",
		Address: "10.0.0.1",
		Port:    8000,
		Active:  true,
	}
	err = AddDHCPServer(db, added)
	require.NoError(t, err)

	server, err = GetDHCPServerByName(db, "dhcp-primary")
	require.NoError(t, err)
	require.NotNil(t, server)
	require.Equal(t, added.ID, server.ID)
	require.Equal(t, "10.0.0.1", server.Address)

	server, err = GetDHCPServerByID(db, added.ID)
	require.NoError(t, err)
	require.NotNil(t, server)
	require.Equal(t, "dhcp-primary", server.Name)

	server, err = GetDHCPServerByID(db, 12345)
	require.NoError(t, err)
	require.Nil(t, server)
}

// Check fetching all servers ordered by name.
func TestGetAllDHCPServers(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	servers, err := GetAllDHCPServers(db)
	require.NoError(t, err)
	require.Empty(t, servers)

	for _, name := range []string{"dhcp-standby", "dhcp-primary", "dhcp-branch"} {
		err = AddDHCPServer(db, &DHCPServer{
			Name:    name,
			Address: "10.0.0.1",
			Port:    8000,
			Active:  true,
		})
		require.NoError(t, err)
	}

	servers, err = GetAllDHCPServers(db)
	require.NoError(t, err)
	require.Len(t, servers, 3)
	require.Equal(t, "dhcp-branch", servers[0].Name)
	require.Equal(t, "dhcp-primary", servers[1].Name)
	require.Equal(t, "dhcp-standby", servers[2].Name)
}

// Check if deleting a DHCP server works and is rejected while the
// server still owns prefix configs.
func TestDeleteDHCPServer(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	server := &DHCPServer{
		Name:    "dhcp-primary",
		Address: "10.0.0.1",
		Port:    8000,
		Active:  true,
	}
	err := AddDHCPServer(db, server)
	require.NoError(t, err)

	config := &PrefixConfig{
		Prefix:        "192.168.1.0/24",
		DHCPServerID:  server.ID,
		Pool:          true,
		ValidLifetime: 3600,
		MaxLifetime:   7200,
	}
	err = AddPrefixConfig(db, config)
	require.NoError(t, err)

	// the prefix config still references the server
	err = DeleteDHCPServer(db, server.ID)
	require.Error(t, err)

	err = DeletePrefixConfig(db, config.ID)
	require.NoError(t, err)
	err = DeleteDHCPServer(db, server.ID)
	require.NoError(t, err)

	err = DeleteDHCPServer(db, server.ID)
	require.ErrorIs(t, err, ErrNotExists)
}

// Check that the URL of the server control channel is correctly formed.
func TestDHCPServerGetURL(t *testing.T) {
	server := &DHCPServer{
		Address: "10.0.0.1",
		Port:    8000,
	}
	require.Equal(t, "http://10.0.0.1:8000/", server.GetURL())
}

// Check that the global option data associations preserve the
// specified order and can be replaced.
func TestSetDHCPServerOptionData(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	server := &DHCPServer{
		Name:    "dhcp-primary",
		Address: "10.0.0.1",
		Port:    8000,
		Active:  true,
	}
	err := AddDHCPServer(db, server)
	require.NoError(t, err)

	var optionIDs []int64
	for _, name := range []string{"domain-search", "ntp-servers", "time-offset"} {
		option := &OptionData{
			Name:         name,
			DeliveryType: DeliveryTypeStandard,
			Value:        "foo",
			CSVFormat:    true,
		}
		err = AddOptionData(db, option)
		require.NoError(t, err)
		optionIDs = append(optionIDs, option.ID)
	}

	// associate in reverse order
	err = SetDHCPServerOptionData(db, server.ID, []int64{optionIDs[2], optionIDs[0]})
	require.NoError(t, err)

	options, err := GetOptionDataByServerID(db, server.ID)
	require.NoError(t, err)
	require.Len(t, options, 2)
	require.Equal(t, "time-offset", options[0].Name)
	require.Equal(t, "domain-search", options[1].Name)

	// replace the associations
	err = SetDHCPServerOptionData(db, server.ID, []int64{optionIDs[1]})
	require.NoError(t, err)

	options, err = GetOptionDataByServerID(db, server.ID)
	require.NoError(t, err)
	require.Len(t, options, 1)
	require.Equal(t, "ntp-servers", options[0].Name)
}

// Check that the server-level client class associations preserve the
// specified order.
func TestSetDHCPServerClientClasses(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	server := &DHCPServer{
		Name:    "dhcp-primary",
		Address: "10.0.0.1",
		Port:    8000,
		Active:  true,
	}
	err := AddDHCPServer(db, server)
	require.NoError(t, err)

	var classIDs []int64
	for _, name := range []string{"voip-phones", "cameras"} {
		class := &ClientClass{
			Name:           name,
			TestExpression: "option[60].text == '" + name + "'",
		}
		err = AddClientClass(db, class)
		require.NoError(t, err)
		classIDs = append(classIDs, class.ID)
	}

	err = SetDHCPServerClientClasses(db, server.ID, []int64{classIDs[1], classIDs[0]})
	require.NoError(t, err)

	classes, err := GetClientClassesByServerID(db, server.ID)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	require.Equal(t, "cameras", classes[0].Name)
	require.Equal(t, "voip-phones", classes[1].Name)
}

// Check that moving the server-level associations between servers
// drops duplicates instead of moving them.
func TestMoveDHCPServerAssociations(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	source := &DHCPServer{
		Name:    "dhcp-primary",
		Address: "10.0.0.1",
		Port:    8000,
		Active:  true,
	}
	err := AddDHCPServer(db, source)
	require.NoError(t, err)

	target := &DHCPServer{
		Name:    "dhcp-standby",
		Address: "10.0.0.2",
		Port:    8000,
		Active:  true,
	}
	err = AddDHCPServer(db, target)
	require.NoError(t, err)

	var optionIDs []int64
	for _, name := range []string{"domain-search", "ntp-servers"} {
		option := &OptionData{
			Name:         name,
			DeliveryType: DeliveryTypeStandard,
			Value:        "foo",
			CSVFormat:    true,
		}
		err = AddOptionData(db, option)
		require.NoError(t, err)
		optionIDs = append(optionIDs, option.ID)
	}
	class := &ClientClass{
		Name:           "voip-phones",
		TestExpression: "option[60].text == 'voip'",
	}
	err = AddClientClass(db, class)
	require.NoError(t, err)

	err = SetDHCPServerOptionData(db, source.ID, optionIDs)
	require.NoError(t, err)
	err = SetDHCPServerClientClasses(db, source.ID, []int64{class.ID})
	require.NoError(t, err)

	// the target already has one of the source's options
	err = SetDHCPServerOptionData(db, target.ID, []int64{optionIDs[0]})
	require.NoError(t, err)

	movedOptions, movedClasses, err := MoveDHCPServerAssociations(db, source.ID, target.ID)
	require.NoError(t, err)
	require.Equal(t, 1, movedOptions)
	require.Equal(t, 1, movedClasses)

	// the source has no associations left
	options, err := GetOptionDataByServerID(db, source.ID)
	require.NoError(t, err)
	require.Empty(t, options)
	classes, err := GetClientClassesByServerID(db, source.ID)
	require.NoError(t, err)
	require.Empty(t, classes)

	options, err = GetOptionDataByServerID(db, target.ID)
	require.NoError(t, err)
	require.Len(t, options, 2)
	classes, err = GetClientClassesByServerID(db, target.ID)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	require.Equal(t, "voip-phones", classes[0].Name)
}
