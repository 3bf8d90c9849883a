package dbmodel

import (
	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/pkg/errors"

	dbops "isc.org/roost/server/database"
)

// Supported High Availability modes.
const (
	HAModeHotStandby    = "hot-standby"
	HAModeLoadBalancing = "load-balancing"
	HAModePassiveBackup = "passive-backup"
)

// Roles a peer can hold within an HA relationship.
const (
	HAPeerRolePrimary   = "primary"
	HAPeerRoleSecondary = "secondary"
	HAPeerRoleStandby   = "standby"
	HAPeerRoleBackup    = "backup"
)

// A structure reflecting the ha_relationship SQL table. It groups the
// peers of one High Availability cluster and holds the parameters
// common to all of them.
type HARelationship struct {
	tableName               struct{} `pg:"ha_relationship"` //nolint:unused
	ID                      int64
	Name                    string
	Mode                    string
	HeartbeatDelay          int64
	MaxResponseDelay        int64
	MaxAckDelay             int64
	MaxUnackedClients       int64 `pg:",use_zero"`
	MaxRejectedLeaseUpdates int64 `pg:",use_zero"`

	// Multi-threading settings (HA+MT).
	MultiThreading        bool  `pg:",use_zero"`
	HTTPDedicatedListener bool  `pg:"http_dedicated_listener,use_zero"`
	HTTPListenerThreads   int64 `pg:"http_listener_threads,use_zero"`
	HTTPClientThreads     int64 `pg:"http_client_threads,use_zero"`

	Peers []*HAPeer `pg:"rel:has-many"`
}

// A structure reflecting the ha_peer SQL table. It links one server to
// one HA relationship with a role. At most one peer of a relationship
// holds the primary role at any time.
type HAPeer struct {
	tableName        struct{} `pg:"ha_peer"` //nolint:unused
	ID               int64
	HARelationshipID int64           `pg:"ha_relationship_id"`
	HARelationship   *HARelationship `pg:"rel:has-one"`
	DHCPServerID     int64           `pg:"dhcp_server_id"`
	DHCPServer       *DHCPServer     `pg:"rel:has-one"`
	Role             string
	URL              string
	AutoFailover     bool  `pg:",use_zero"`
	OrderIndex       int64 `pg:",use_zero"`
}

// Checks if the peer holds the primary role.
func (peer *HAPeer) IsPrimary() bool {
	return peer.Role == HAPeerRolePrimary
}

// LockHARelationship locks the relationship row until the surrounding
// transaction ends. All peer mutations take this lock first so two
// concurrent role changes within one relationship serialize.
func LockHARelationship(tx *pg.Tx, relationshipID int64) error {
	rel := &HARelationship{}
	err := tx.Model(rel).
		Where("ha_relationship.id = ?", relationshipID).
		For("UPDATE").
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return errors.Wrapf(ErrNotExists, "HA relationship with ID %d does not exist", relationshipID)
		}
		return errors.Wrapf(err, "problem locking HA relationship with ID %d", relationshipID)
	}
	return nil
}

// Returns the primary peer of the relationship or nil when the
// relationship currently has none.
func getPrimaryPeer(dbi dbops.DBI, relationshipID int64) (*HAPeer, error) {
	peer := &HAPeer{}
	err := dbi.Model(peer).
		Relation("DHCPServer").
		Where("ha_peer.ha_relationship_id = ?", relationshipID).
		Where("ha_peer.role = ?", HAPeerRolePrimary).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting the primary peer of relationship %d", relationshipID)
	}
	return peer, nil
}

// Adds a new HA relationship to the database together with its peers.
func AddHARelationship(dbIface interface{}, relationship *HARelationship) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	if _, err = tx.Model(relationship).Insert(); err != nil {
		return errors.Wrapf(err, "problem adding HA relationship %s", relationship.Name)
	}

	for _, peer := range relationship.Peers {
		peer.HARelationshipID = relationship.ID
		if err = AddHAPeer(tx, peer); err != nil {
			return err
		}
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing new HA relationship %s", relationship.Name)
}

// Fetches an HA relationship by ID together with its peers and their
// servers. The peers are returned in the declaration order. Returns
// nil when the relationship doesn't exist.
func GetHARelationshipByID(dbi dbops.DBI, relationshipID int64) (*HARelationship, error) {
	relationship := &HARelationship{}
	err := dbi.Model(relationship).
		Relation("Peers", func(q *orm.Query) (*orm.Query, error) {
			return q.OrderExpr("ha_peer.order_index ASC, ha_peer.id ASC"), nil
		}).
		Relation("Peers.DHCPServer").
		Where("ha_relationship.id = ?", relationshipID).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting HA relationship with ID %d", relationshipID)
	}
	return relationship, nil
}

// Fetches an HA relationship by the unique name. Returns nil when the
// relationship doesn't exist.
func GetHARelationshipByName(dbi dbops.DBI, name string) (*HARelationship, error) {
	relationship := &HARelationship{}
	err := dbi.Model(relationship).
		Relation("Peers", func(q *orm.Query) (*orm.Query, error) {
			return q.OrderExpr("ha_peer.order_index ASC, ha_peer.id ASC"), nil
		}).
		Relation("Peers.DHCPServer").
		Where("ha_relationship.name = ?", name).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting HA relationship %s", name)
	}
	return relationship, nil
}

// Fetches all HA relationships with their peers, ordered by name.
func GetAllHARelationships(dbi dbops.DBI) ([]HARelationship, error) {
	var relationships []HARelationship
	err := dbi.Model(&relationships).
		Relation("Peers", func(q *orm.Query) (*orm.Query, error) {
			return q.OrderExpr("ha_peer.order_index ASC, ha_peer.id ASC"), nil
		}).
		Relation("Peers.DHCPServer").
		OrderExpr("ha_relationship.name ASC").
		Select()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, errors.Wrapf(err, "problem getting all HA relationships")
	}
	return relationships, nil
}

// Deletes the HA relationship and, by cascade, its peers. The servers
// and their prefix configs are left intact.
func DeleteHARelationship(dbi dbops.DBI, relationshipID int64) error {
	relationship := &HARelationship{
		ID: relationshipID,
	}
	result, err := dbi.Model(relationship).WherePK().Delete()
	if err != nil {
		return errors.Wrapf(err, "problem deleting HA relationship with ID %d", relationshipID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "HA relationship with ID %d does not exist", relationshipID)
	}
	return nil
}

// Adds a new peer to an HA relationship. It rejects a second peer for
// the same server within one relationship and a second primary. The
// checks and the insert run in one transaction holding a lock on the
// relationship row.
func AddHAPeer(dbIface interface{}, peer *HAPeer) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	if err = LockHARelationship(tx, peer.HARelationshipID); err != nil {
		return err
	}

	existing, err := tx.Model((*HAPeer)(nil)).
		Where("ha_relationship_id = ?", peer.HARelationshipID).
		Where("dhcp_server_id = ?", peer.DHCPServerID).
		Count()
	if err != nil {
		return errors.Wrapf(err, "problem checking the membership of server %d in relationship %d",
			peer.DHCPServerID, peer.HARelationshipID)
	}
	if existing > 0 {
		return errors.WithMessagef(ErrDuplicateMembership,
			"server %d in relationship %d", peer.DHCPServerID, peer.HARelationshipID)
	}

	if peer.IsPrimary() {
		primary, err := getPrimaryPeer(tx, peer.HARelationshipID)
		if err != nil {
			return err
		}
		if primary != nil {
			return errors.WithMessagef(ErrDuplicatePrimary,
				"peer %d of relationship %d is already the primary", primary.ID, peer.HARelationshipID)
		}
	}

	// Append the peer at the end of the declaration order.
	if err = tx.Model((*HAPeer)(nil)).
		ColumnExpr("COALESCE(MAX(order_index) + 1, 0)").
		Where("ha_relationship_id = ?", peer.HARelationshipID).
		Select(&peer.OrderIndex); err != nil {
		return errors.Wrapf(err, "problem determining the order of a new peer in relationship %d",
			peer.HARelationshipID)
	}

	if _, err = tx.Model(peer).Insert(); err != nil {
		return errors.Wrapf(err, "problem adding a peer for server %d to relationship %d",
			peer.DHCPServerID, peer.HARelationshipID)
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing new peer of relationship %d", peer.HARelationshipID)
}

// Changes the role of an HA peer. Demoting the primary is rejected
// while its server directly owns prefix configs; promoting a second
// primary is rejected. The only supported path to swap the primary is
// the migration in the kea package.
func UpdateHAPeerRole(dbIface interface{}, peerID int64, newRole string) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	peer, err := GetHAPeerByID(tx, peerID)
	if err != nil {
		return err
	}
	if peer == nil {
		return errors.Wrapf(ErrNotExists, "HA peer with ID %d does not exist", peerID)
	}

	if err = LockHARelationship(tx, peer.HARelationshipID); err != nil {
		return err
	}

	// The pre-lock read may be stale once the lock is granted. Re-read
	// the peer so the guards below run on the current role.
	peer, err = GetHAPeerByID(tx, peerID)
	if err != nil {
		return err
	}
	if peer == nil {
		return errors.Wrapf(ErrNotExists, "HA peer with ID %d does not exist", peerID)
	}

	if peer.IsPrimary() && newRole != HAPeerRolePrimary {
		count, err := GetPrefixConfigCountByServerID(tx, peer.DHCPServerID)
		if err != nil {
			return err
		}
		if count > 0 {
			return errors.WithMessagef(ErrPrimaryInUse,
				"cannot change the role of peer %d: its server owns %d prefix configs", peerID, count)
		}
	}

	if !peer.IsPrimary() && newRole == HAPeerRolePrimary {
		primary, err := getPrimaryPeer(tx, peer.HARelationshipID)
		if err != nil {
			return err
		}
		if primary != nil {
			return errors.WithMessagef(ErrDuplicatePrimary,
				"peer %d of relationship %d is already the primary", primary.ID, peer.HARelationshipID)
		}
	}

	if _, err = tx.Model((*HAPeer)(nil)).
		Set("role = ?", newRole).
		Where("id = ?", peerID).
		Update(); err != nil {
		return errors.Wrapf(err, "problem changing the role of peer %d to %s", peerID, newRole)
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing the role change of peer %d", peerID)
}

// Deletes an HA peer from its relationship. The deletion is rejected
// while the peer is the primary and its server directly owns prefix
// configs, since that would orphan the cluster's effective
// configuration.
func DeleteHAPeer(dbIface interface{}, peerID int64) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	peer, err := GetHAPeerByID(tx, peerID)
	if err != nil {
		return err
	}
	if peer == nil {
		return errors.Wrapf(ErrNotExists, "HA peer with ID %d does not exist", peerID)
	}

	if err = LockHARelationship(tx, peer.HARelationshipID); err != nil {
		return err
	}

	// Re-read the peer under the lock so the guard sees the current role.
	peer, err = GetHAPeerByID(tx, peerID)
	if err != nil {
		return err
	}
	if peer == nil {
		return errors.Wrapf(ErrNotExists, "HA peer with ID %d does not exist", peerID)
	}

	if peer.IsPrimary() {
		count, err := GetPrefixConfigCountByServerID(tx, peer.DHCPServerID)
		if err != nil {
			return err
		}
		if count > 0 {
			return errors.WithMessagef(ErrPrimaryInUse,
				"cannot delete peer %d: its server owns %d prefix configs", peerID, count)
		}
	}

	if _, err = tx.Model(peer).WherePK().Delete(); err != nil {
		return errors.Wrapf(err, "problem deleting peer %d", peerID)
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing the deletion of peer %d", peerID)
}

// Fetches an HA peer by ID together with its relationship and server.
// Returns nil when the peer doesn't exist.
func GetHAPeerByID(dbi dbops.DBI, peerID int64) (*HAPeer, error) {
	peer := &HAPeer{}
	err := dbi.Model(peer).
		Relation("HARelationship").
		Relation("DHCPServer").
		Where("ha_peer.id = ?", peerID).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting HA peer with ID %d", peerID)
	}
	return peer, nil
}

// Fetches the HA peer entry of the given server. Returns nil when the
// server doesn't belong to any HA relationship.
func GetHAPeerByServerID(dbi dbops.DBI, serverID int64) (*HAPeer, error) {
	peer := &HAPeer{}
	err := dbi.Model(peer).
		Relation("HARelationship").
		Relation("DHCPServer").
		Where("ha_peer.dhcp_server_id = ?", serverID).
		OrderExpr("ha_peer.ha_relationship_id ASC").
		Limit(1).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting the HA peer entry of server %d", serverID)
	}
	return peer, nil
}
