package dbmodel

import (
	"testing"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/stretchr/testify/require"
	dbops "isc.org/roost/server/database"
	dbtest "isc.org/roost/server/database/test"
)

// Waits until another connection to the test database blocks on a
// row lock.
func waitForLockWaiter(t *testing.T, db *dbops.PgDB) {
	for i := 0; i < 500; i++ {
		var waiting int
		_, err := db.QueryOne(pg.Scan(&waiting),
			"SELECT COUNT(*) FROM pg_stat_activity WHERE datname = current_database() AND wait_event_type = 'Lock'")
		require.NoError(t, err)
		if waiting > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no connection is waiting for a lock")
}

// Adds a hot-standby relationship binding the two specified servers.
func addTestHARelationship(t *testing.T, db interface{}, primary, standby *DHCPServer) *HARelationship {
	relationship := &HARelationship{
		Name:             "primary-dc-ha",
		Mode:             HAModeHotStandby,
		HeartbeatDelay:   10000,
		MaxResponseDelay: 60000,
		MaxAckDelay:      5000,
		Peers: []*HAPeer{
			{
				DHCPServerID: primary.ID,
				Role:         HAPeerRolePrimary,
				AutoFailover: true,
			},
			{
				DHCPServerID: standby.ID,
				Role:         HAPeerRoleStandby,
				AutoFailover: true,
			},
		},
	}
	err := AddHARelationship(db, relationship)
	require.NoError(t, err)
	return relationship
}

// Check adding a relationship with its peers and fetching it back in
// the declaration order.
func TestAddHARelationship(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	primary := addTestDHCPServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestDHCPServer(t, db, "dhcp-standby", "10.0.0.2")
	relationship := addTestHARelationship(t, db, primary, standby)
	require.NotZero(t, relationship.ID)

	returned, err := GetHARelationshipByID(db, relationship.ID)
	require.NoError(t, err)
	require.NotNil(t, returned)
	require.Equal(t, HAModeHotStandby, returned.Mode)
	require.Len(t, returned.Peers, 2)
	require.Equal(t, HAPeerRolePrimary, returned.Peers[0].Role)
	require.Equal(t, HAPeerRoleStandby, returned.Peers[1].Role)
	require.NotNil(t, returned.Peers[0].DHCPServer)
	require.Equal(t, "dhcp-primary", returned.Peers[0].DHCPServer.Name)
	require.EqualValues(t, 0, returned.Peers[0].OrderIndex)
	require.EqualValues(t, 1, returned.Peers[1].OrderIndex)

	returned, err = GetHARelationshipByName(db, "primary-dc-ha")
	require.NoError(t, err)
	require.NotNil(t, returned)
	require.Equal(t, relationship.ID, returned.ID)

	returned, err = GetHARelationshipByID(db, 12345)
	require.NoError(t, err)
	require.Nil(t, returned)
}

// Check that a server cannot be bound twice to the same relationship.
func TestAddHAPeerDuplicateMembership(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	primary := addTestDHCPServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestDHCPServer(t, db, "dhcp-standby", "10.0.0.2")
	relationship := addTestHARelationship(t, db, primary, standby)

	err := AddHAPeer(db, &HAPeer{
		HARelationshipID: relationship.ID,
		DHCPServerID:     standby.ID,
		Role:             HAPeerRoleBackup,
	})
	require.ErrorIs(t, err, ErrDuplicateMembership)
}

// Check that the second primary of a relationship is rejected.
func TestAddHAPeerDuplicatePrimary(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	primary := addTestDHCPServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestDHCPServer(t, db, "dhcp-standby", "10.0.0.2")
	relationship := addTestHARelationship(t, db, primary, standby)

	third := addTestDHCPServer(t, db, "dhcp-third", "10.0.0.3")
	err := AddHAPeer(db, &HAPeer{
		HARelationshipID: relationship.ID,
		DHCPServerID:     third.ID,
		Role:             HAPeerRolePrimary,
	})
	require.ErrorIs(t, err, ErrDuplicatePrimary)

	// a backup peer is accepted and appended at the end
	peer := &HAPeer{
		HARelationshipID: relationship.ID,
		DHCPServerID:     third.ID,
		Role:             HAPeerRoleBackup,
	}
	err = AddHAPeer(db, peer)
	require.NoError(t, err)
	require.EqualValues(t, 2, peer.OrderIndex)
}

// Check that adding a peer to a non-existing relationship fails.
func TestAddHAPeerNoRelationship(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	server := addTestDHCPServer(t, db, "dhcp-primary", "10.0.0.1")
	err := AddHAPeer(db, &HAPeer{
		HARelationshipID: 12345,
		DHCPServerID:     server.ID,
		Role:             HAPeerRolePrimary,
	})
	require.ErrorIs(t, err, ErrNotExists)
}

// Check the role change guards: the primary owning configuration
// cannot be demoted and a second primary cannot be promoted.
func TestUpdateHAPeerRole(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	primary := addTestDHCPServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestDHCPServer(t, db, "dhcp-standby", "10.0.0.2")
	relationship := addTestHARelationship(t, db, primary, standby)

	err := AddPrefixConfig(db, &PrefixConfig{
		Prefix:        "192.168.1.0/24",
		DHCPServerID:  primary.ID,
		ValidLifetime: 3600,
		MaxLifetime:   7200,
	})
	require.NoError(t, err)

	primaryPeer := relationship.Peers[0]
	standbyPeer := relationship.Peers[1]

	// the primary's server owns a prefix config
	err = UpdateHAPeerRole(db, primaryPeer.ID, HAPeerRoleStandby)
	require.ErrorIs(t, err, ErrPrimaryInUse)

	// the relationship already has a primary
	err = UpdateHAPeerRole(db, standbyPeer.ID, HAPeerRolePrimary)
	require.ErrorIs(t, err, ErrDuplicatePrimary)

	// a role change not touching the primary is fine
	err = UpdateHAPeerRole(db, standbyPeer.ID, HAPeerRoleBackup)
	require.NoError(t, err)

	returned, err := GetHAPeerByID(db, standbyPeer.ID)
	require.NoError(t, err)
	require.Equal(t, HAPeerRoleBackup, returned.Role)

	// demoting the primary works once its server owns nothing
	count, err := GetPrefixConfigCountByServerID(db, primary.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	_, err = ReparentPrefixConfigs(db, primary.ID, standby.ID)
	require.NoError(t, err)
	err = UpdateHAPeerRole(db, primaryPeer.ID, HAPeerRoleStandby)
	require.NoError(t, err)

	err = UpdateHAPeerRole(db, 12345, HAPeerRoleBackup)
	require.ErrorIs(t, err, ErrNotExists)
}

// Check that a role change overlapping a committed primary swap runs
// its guards on the fresh roles, not on the ones read before the lock
// was granted.
func TestUpdateHAPeerRoleConcurrentSwap(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	primary := addTestDHCPServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestDHCPServer(t, db, "dhcp-standby", "10.0.0.2")
	relationship := addTestHARelationship(t, db, primary, standby)

	primaryPeer := relationship.Peers[0]
	standbyPeer := relationship.Peers[1]

	// Swap the primary in a competing transaction holding the
	// relationship lock.
	tx, err := db.Begin()
	require.NoError(t, err)
	err = LockHARelationship(tx, relationship.ID)
	require.NoError(t, err)
	_, err = tx.Model((*HAPeer)(nil)).
		Set("role = ?", HAPeerRoleStandby).
		Where("id = ?", primaryPeer.ID).
		Update()
	require.NoError(t, err)
	_, err = tx.Model((*HAPeer)(nil)).
		Set("role = ?", HAPeerRolePrimary).
		Where("id = ?", standbyPeer.ID).
		Update()
	require.NoError(t, err)

	// The role change reads the old roles, under which the promoted
	// peer still looks like the primary, and blocks on the lock.
	errChan := make(chan error)
	go func() {
		errChan <- UpdateHAPeerRole(db, primaryPeer.ID, HAPeerRolePrimary)
	}()
	waitForLockWaiter(t, db)
	err = tx.Commit()
	require.NoError(t, err)

	err = <-errChan
	require.ErrorIs(t, err, ErrDuplicatePrimary)

	returned, err := GetHARelationshipByID(db, relationship.ID)
	require.NoError(t, err)
	require.Equal(t, HAPeerRoleStandby, returned.Peers[0].Role)
	require.Equal(t, HAPeerRolePrimary, returned.Peers[1].Role)
}

// Check the deletion guards of the peers.
func TestDeleteHAPeer(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	primary := addTestDHCPServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestDHCPServer(t, db, "dhcp-standby", "10.0.0.2")
	relationship := addTestHARelationship(t, db, primary, standby)

	err := AddPrefixConfig(db, &PrefixConfig{
		Prefix:        "192.168.1.0/24",
		DHCPServerID:  primary.ID,
		ValidLifetime: 3600,
		MaxLifetime:   7200,
	})
	require.NoError(t, err)

	primaryPeer := relationship.Peers[0]
	standbyPeer := relationship.Peers[1]

	// the primary's server owns a prefix config
	err = DeleteHAPeer(db, primaryPeer.ID)
	require.ErrorIs(t, err, ErrPrimaryInUse)

	// a non-primary peer can always be removed
	err = DeleteHAPeer(db, standbyPeer.ID)
	require.NoError(t, err)

	// the primary too, once its server owns nothing
	_, err = ReparentPrefixConfigs(db, primary.ID, standby.ID)
	require.NoError(t, err)
	err = DeleteHAPeer(db, primaryPeer.ID)
	require.NoError(t, err)

	err = DeleteHAPeer(db, primaryPeer.ID)
	require.ErrorIs(t, err, ErrNotExists)
}

// Check that deleting a relationship cascades to the peers but leaves
// the servers intact.
func TestDeleteHARelationship(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	primary := addTestDHCPServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestDHCPServer(t, db, "dhcp-standby", "10.0.0.2")
	relationship := addTestHARelationship(t, db, primary, standby)

	err := DeleteHARelationship(db, relationship.ID)
	require.NoError(t, err)

	peer, err := GetHAPeerByServerID(db, primary.ID)
	require.NoError(t, err)
	require.Nil(t, peer)

	server, err := GetDHCPServerByID(db, primary.ID)
	require.NoError(t, err)
	require.NotNil(t, server)

	err = DeleteHARelationship(db, relationship.ID)
	require.ErrorIs(t, err, ErrNotExists)
}

// Check fetching the peer entry of a server.
func TestGetHAPeerByServerID(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	primary := addTestDHCPServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestDHCPServer(t, db, "dhcp-standby", "10.0.0.2")
	branch := addTestDHCPServer(t, db, "dhcp-branch", "10.0.0.5")
	relationship := addTestHARelationship(t, db, primary, standby)

	peer, err := GetHAPeerByServerID(db, standby.ID)
	require.NoError(t, err)
	require.NotNil(t, peer)
	require.Equal(t, relationship.ID, peer.HARelationshipID)
	require.Equal(t, HAPeerRoleStandby, peer.Role)
	require.NotNil(t, peer.HARelationship)
	require.Equal(t, "primary-dc-ha", peer.HARelationship.Name)

	// a standalone server has no peer entry
	peer, err = GetHAPeerByServerID(db, branch.ID)
	require.NoError(t, err)
	require.Nil(t, peer)
}

// Check fetching all relationships ordered by name.
func TestGetAllHARelationships(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	relationships, err := GetAllHARelationships(db)
	require.NoError(t, err)
	require.Empty(t, relationships)

	primary := addTestDHCPServer(t, db, "dhcp-primary", "10.0.0.1")
	standby := addTestDHCPServer(t, db, "dhcp-standby", "10.0.0.2")
	addTestHARelationship(t, db, primary, standby)

	err = AddHARelationship(db, &HARelationship{
		Name: "branch-ha",
		Mode: HAModePassiveBackup,
	})
	require.NoError(t, err)

	relationships, err = GetAllHARelationships(db)
	require.NoError(t, err)
	require.Len(t, relationships, 2)
	require.Equal(t, "branch-ha", relationships[0].Name)
	require.Equal(t, "primary-dc-ha", relationships[1].Name)
	require.Len(t, relationships[1].Peers, 2)
}
