// Package kea implements the HA-aware configuration engine. It
// resolves which server's data is authoritative within an HA
// relationship, synthesizes complete Kea DHCPv4 configurations,
// migrates the primary role between peers and aggregates relay
// targets for network devices.
package kea

import (
	"github.com/pkg/errors"

	dbops "isc.org/roost/server/database"
	dbmodel "isc.org/roost/server/database/model"
)

// GetPrimaryPeer returns the primary peer of the relationship. A
// relationship is expected to always have one but transient states
// during a migration may leave it without; that condition is reported
// as an error rather than tolerated because no peer can be safely
// configured from it.
func GetPrimaryPeer(relationship *dbmodel.HARelationship) (*dbmodel.HAPeer, error) {
	for _, peer := range relationship.Peers {
		if peer.IsPrimary() {
			return peer, nil
		}
	}
	return nil, errors.WithMessagef(dbmodel.ErrMissingPrimary, "relationship %s", relationship.Name)
}

// ResolveEffectiveServerID returns the ID of the server whose directly
// owned configuration applies to the given server. A standalone server
// and the primary peer resolve to themselves. A non-primary peer
// resolves to the primary of its relationship, which is how the
// configuration stays in sync across the cluster: reads are
// redirected, no data is copied.
func ResolveEffectiveServerID(dbi dbops.DBI, serverID int64) (int64, error) {
	peer, err := dbmodel.GetHAPeerByServerID(dbi, serverID)
	if err != nil {
		return 0, err
	}
	if peer == nil || peer.IsPrimary() {
		return serverID, nil
	}
	relationship, err := dbmodel.GetHARelationshipByID(dbi, peer.HARelationshipID)
	if err != nil {
		return 0, err
	}
	if relationship == nil {
		return 0, errors.Wrapf(dbmodel.ErrNotExists, "HA relationship with ID %d does not exist",
			peer.HARelationshipID)
	}
	primary, err := GetPrimaryPeer(relationship)
	if err != nil {
		return 0, err
	}
	return primary.DHCPServerID, nil
}

// GetEffectivePrefixConfigs returns the prefix configs applying to the
// server after the HA redirection, in the creation order.
func GetEffectivePrefixConfigs(dbi dbops.DBI, serverID int64) ([]dbmodel.PrefixConfig, error) {
	effectiveID, err := ResolveEffectiveServerID(dbi, serverID)
	if err != nil {
		return nil, err
	}
	return dbmodel.GetPrefixConfigsByServerID(dbi, effectiveID)
}

// GetEffectiveOptionData returns the global option data applying to
// the server after the HA redirection.
func GetEffectiveOptionData(dbi dbops.DBI, serverID int64) ([]dbmodel.OptionData, error) {
	effectiveID, err := ResolveEffectiveServerID(dbi, serverID)
	if err != nil {
		return nil, err
	}
	return dbmodel.GetOptionDataByServerID(dbi, effectiveID)
}

// GetEffectiveClientClasses returns the server-level client classes
// applying to the server after the HA redirection.
func GetEffectiveClientClasses(dbi dbops.DBI, serverID int64) ([]dbmodel.ClientClass, error) {
	effectiveID, err := ResolveEffectiveServerID(dbi, serverID)
	if err != nil {
		return nil, err
	}
	return dbmodel.GetClientClassesByServerID(dbi, effectiveID)
}
