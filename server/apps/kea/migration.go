package kea

import (
	"github.com/pkg/errors"

	dbops "isc.org/roost/server/database"
	dbmodel "isc.org/roost/server/database/model"
)

// MigrationResult summarizes the entities transferred to the new
// primary server.
type MigrationResult struct {
	RelationshipID     int64
	OldPrimaryServerID int64
	NewPrimaryServerID int64
	MovedPrefixConfigs int
	MovedOptionData    int
	MovedClientClasses int
}

// MigrateToNewPrimary atomically transfers the primary role within an
// HA relationship to the server identified by newPrimaryServerID. The
// prefix configs, global option data and server-level client classes
// owned by the current primary's server are re-parented to the new
// primary's server, the current primary is demoted to the target
// peer's former role and the target peer is promoted. The whole
// operation commits or none of it does, so the effective configuration
// of every peer is identical before and after the call.
//
// The target must already be a non-primary peer of the relationship;
// the call fails with ErrNotAPeer otherwise. When another transaction
// changes the relationship's primary between the initial read and the
// lock acquisition the call fails with ErrConcurrentRoleChange and the
// caller may retry.
func MigrateToNewPrimary(dbIface interface{}, relationshipID, newPrimaryServerID int64) (*MigrationResult, error) {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return nil, err
	}
	defer rollback()

	// Read the relationship optimistically and identify the peers
	// affected by the migration.
	relationship, err := dbmodel.GetHARelationshipByID(tx, relationshipID)
	if err != nil {
		return nil, err
	}
	if relationship == nil {
		return nil, errors.Wrapf(dbmodel.ErrNotExists, "HA relationship with ID %d does not exist", relationshipID)
	}

	var target *dbmodel.HAPeer
	for _, peer := range relationship.Peers {
		if peer.DHCPServerID == newPrimaryServerID {
			target = peer
			break
		}
	}
	if target == nil {
		return nil, errors.WithMessagef(dbmodel.ErrNotAPeer,
			"server %d has no peer entry in relationship %s", newPrimaryServerID, relationship.Name)
	}
	if target.IsPrimary() {
		return nil, errors.WithMessagef(dbmodel.ErrNotAPeer,
			"server %d is already the primary of relationship %s", newPrimaryServerID, relationship.Name)
	}

	primary, err := GetPrimaryPeer(relationship)
	if err != nil {
		return nil, err
	}

	// Serialize against other role changes and verify the primary
	// didn't move in the meantime.
	if err = dbmodel.LockHARelationship(tx, relationshipID); err != nil {
		return nil, err
	}
	lockedPrimary, err := dbmodel.GetHAPeerByID(tx, primary.ID)
	if err != nil {
		return nil, err
	}
	if lockedPrimary == nil || !lockedPrimary.IsPrimary() {
		return nil, errors.WithMessagef(dbmodel.ErrConcurrentRoleChange,
			"relationship %s", relationship.Name)
	}

	result := &MigrationResult{
		RelationshipID:     relationshipID,
		OldPrimaryServerID: primary.DHCPServerID,
		NewPrimaryServerID: newPrimaryServerID,
	}

	result.MovedPrefixConfigs, err = dbmodel.ReparentPrefixConfigs(tx, primary.DHCPServerID, newPrimaryServerID)
	if err != nil {
		return nil, err
	}
	result.MovedOptionData, result.MovedClientClasses, err = dbmodel.MoveDHCPServerAssociations(
		tx, primary.DHCPServerID, newPrimaryServerID)
	if err != nil {
		return nil, err
	}

	// Swap the roles. The old primary is demoted first so the
	// single-primary constraint holds throughout the transaction.
	if _, err = tx.Model((*dbmodel.HAPeer)(nil)).
		Set("role = ?", target.Role).
		Where("id = ?", primary.ID).
		Update(); err != nil {
		return nil, errors.Wrapf(err, "problem demoting peer %d", primary.ID)
	}
	if _, err = tx.Model((*dbmodel.HAPeer)(nil)).
		Set("role = ?", dbmodel.HAPeerRolePrimary).
		Where("id = ?", target.ID).
		Update(); err != nil {
		return nil, errors.Wrapf(err, "problem promoting peer %d", target.ID)
	}

	err = commit()
	if err != nil {
		return nil, errors.WithMessagef(err, "problem committing the primary migration in relationship %s",
			relationship.Name)
	}
	return result, nil
}
