package kea

import (
	"testing"

	"github.com/stretchr/testify/require"
	dbops "isc.org/roost/server/database"
	dbmodel "isc.org/roost/server/database/model"
	dbtest "isc.org/roost/server/database/test"
)

// Adds a DHCP server fixture.
func addTestServer(t *testing.T, db *dbops.PgDB, name, address string) *dbmodel.DHCPServer {
	server := &dbmodel.DHCPServer{
		Name:    name,
		Address: address,
		Port:    8000,
		Active:  true,
	}
	err := dbmodel.AddDHCPServer(db, server)
	require.NoError(t, err)
	return server
}

// Adds a hot-standby relationship binding the two specified servers.
func addTestRelationship(t *testing.T, db *dbops.PgDB, primary, standby *dbmodel.DHCPServer) *dbmodel.HARelationship {
	relationship := &dbmodel.HARelationship{
		Name:             "primary-dc-ha",
		Mode:             dbmodel.HAModeHotStandby,
		HeartbeatDelay:   10000,
		MaxResponseDelay: 60000,
		MaxAckDelay:      5000,
		Peers: []*dbmodel.HAPeer{
			{
				DHCPServerID: primary.ID,
				Role:         dbmodel.HAPeerRolePrimary,
				AutoFailover: true,
			},
			{
				DHCPServerID: standby.ID,
				Role:         dbmodel.HAPeerRoleStandby,
				AutoFailover: true,
			},
		},
	}
	err := dbmodel.AddHARelationship(db, relationship)
	require.NoError(t, err)
	return relationship
}

// Adds a prefix config fixture owned by the specified server.
func addTestPrefixConfig(t *testing.T, db *dbops.PgDB, prefix string, serverID int64) *dbmodel.PrefixConfig {
	config := &dbmodel.PrefixConfig{
		Prefix:              prefix,
		DHCPServerID:        serverID,
		Pool:                true,
		ValidLifetime:       3600,
		MaxLifetime:         7200,
		RoutersOptionOffset: 1,
	}
	err := dbmodel.AddPrefixConfig(db, config)
	require.NoError(t, err)
	return config
}

// Check that a standalone server and the primary peer resolve to
// themselves while a non-primary peer resolves to the primary.
func TestResolveEffectiveServerID(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	primary := addTestServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestServer(t, db, "dhcp-standby", "10.0.0.2")
	branch := addTestServer(t, db, "dhcp-branch", "10.0.0.5")
	addTestRelationship(t, db, primary, standby)

	effectiveID, err := ResolveEffectiveServerID(db, branch.ID)
	require.NoError(t, err)
	require.Equal(t, branch.ID, effectiveID)

	effectiveID, err = ResolveEffectiveServerID(db, primary.ID)
	require.NoError(t, err)
	require.Equal(t, primary.ID, effectiveID)

	effectiveID, err = ResolveEffectiveServerID(db, standby.ID)
	require.NoError(t, err)
	require.Equal(t, primary.ID, effectiveID)
}

// Check that resolution fails when the relationship has no primary
// peer instead of falling back to the peer's own data.
func TestResolveEffectiveServerIDMissingPrimary(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	standby := addTestServer(t, db, "dhcp-standby", "10.0.0.2")
	relationship := &dbmodel.HARelationship{
		Name: "primary-dc-ha",
		Mode: dbmodel.HAModeHotStandby,
		Peers: []*dbmodel.HAPeer{
			{
				DHCPServerID: standby.ID,
				Role:         dbmodel.HAPeerRoleStandby,
			},
		},
	}
	err := dbmodel.AddHARelationship(db, relationship)
	require.NoError(t, err)

	_, err = ResolveEffectiveServerID(db, standby.ID)
	require.ErrorIs(t, err, dbmodel.ErrMissingPrimary)
}

// Check that the effective entity reads of all peers return the
// primary's data.
func TestGetEffectiveEntities(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	primary := addTestServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestServer(t, db, "dhcp-standby", "10.0.0.2")
	addTestRelationship(t, db, primary, standby)
	addTestPrefixConfig(t, db, "192.168.1.0/24", primary.ID)

	option := &dbmodel.OptionData{
		Name:         "domain-search",
		DeliveryType: dbmodel.DeliveryTypeStandard,
		Value:        "example.org",
		CSVFormat:    true,
	}
	err := dbmodel.AddOptionData(db, option)
	require.NoError(t, err)
	err = dbmodel.SetDHCPServerOptionData(db, primary.ID, []int64{option.ID})
	require.NoError(t, err)

	class := &dbmodel.ClientClass{
		Name:           "voip-phones",
		TestExpression: "option[60].text == 'cisco'",
	}
	err = dbmodel.AddClientClass(db, class)
	require.NoError(t, err)
	err = dbmodel.SetDHCPServerClientClasses(db, primary.ID, []int64{class.ID})
	require.NoError(t, err)

	// the standby sees the primary's entities
	configs, err := GetEffectivePrefixConfigs(db, standby.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, "192.168.1.0/24", configs[0].Prefix)

	options, err := GetEffectiveOptionData(db, standby.ID)
	require.NoError(t, err)
	require.Len(t, options, 1)
	require.Equal(t, "domain-search", options[0].Name)

	classes, err := GetEffectiveClientClasses(db, standby.ID)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	require.Equal(t, "voip-phones", classes[0].Name)

	// the standby's own list is empty
	configs, err = dbmodel.GetPrefixConfigsByServerID(db, standby.ID)
	require.NoError(t, err)
	require.Empty(t, configs)
}

// Check that the primary lookup over the loaded relationship returns
// the primary peer or reports its absence.
func TestGetPrimaryPeer(t *testing.T) {
	relationship := &dbmodel.HARelationship{
		Name: "primary-dc-ha",
		Peers: []*dbmodel.HAPeer{
			{ID: 1, Role: dbmodel.HAPeerRoleStandby},
			{ID: 2, Role: dbmodel.HAPeerRolePrimary},
		},
	}
	primary, err := GetPrimaryPeer(relationship)
	require.NoError(t, err)
	require.EqualValues(t, 2, primary.ID)

	relationship.Peers = relationship.Peers[:1]
	_, err = GetPrimaryPeer(relationship)
	require.ErrorIs(t, err, dbmodel.ErrMissingPrimary)
}
