package kea

import (
	"context"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"

	keaconfig "isc.org/roost/appcfg/kea"
	dbops "isc.org/roost/server/database"
	dbmodel "isc.org/roost/server/database/model"
)

// GetRelayConfig returns the helper addresses a layer 3 device should
// relay DHCP requests to for the given prefix, with an optional
// routing domain qualifier. For a prefix served by an HA cluster the
// targets cover every peer of the relationship, the primary first and
// the rest in the declaration order, so redundant relay entries come
// out deterministic. For a standalone server the list holds just its
// address.
func GetRelayConfig(db *dbops.PgDB, prefix, routingDomain string) (*keaconfig.RelayConfig, error) {
	var relay *keaconfig.RelayConfig
	err := db.RunInTransaction(context.Background(), func(tx *pg.Tx) error {
		var err error
		relay, err = getRelayConfig(tx, prefix, routingDomain)
		return err
	})
	return relay, err
}

func getRelayConfig(dbi dbops.DBI, prefix, routingDomain string) (*keaconfig.RelayConfig, error) {
	config, err := dbmodel.GetPrefixConfigByPrefix(dbi, prefix, routingDomain)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.Wrapf(dbmodel.ErrNotExists, "no prefix config for %s", prefix)
	}
	server := config.DHCPServer
	if server == nil {
		return nil, errors.Wrapf(dbmodel.ErrNotExists, "prefix config %d has no server", config.ID)
	}

	peer, err := dbmodel.GetHAPeerByServerID(dbi, server.ID)
	if err != nil {
		return nil, err
	}

	relay := &keaconfig.RelayConfig{
		Server: keaconfig.RelayServer{
			Name: server.Name,
			URL:  server.GetURL(),
		},
	}
	if peer != nil && peer.URL != "" {
		relay.Server.URL = peer.URL
	}

	if peer == nil {
		relay.RelayTargets = []string{server.Address}
		return relay, nil
	}

	relationship, err := dbmodel.GetHARelationshipByID(dbi, peer.HARelationshipID)
	if err != nil {
		return nil, err
	}
	if relationship == nil {
		return nil, errors.Wrapf(dbmodel.ErrNotExists, "HA relationship with ID %d does not exist",
			peer.HARelationshipID)
	}
	relay.RelayTargets = relayTargets(relationship)
	return relay, nil
}

// Returns the addresses of all peer servers of the relationship, the
// primary first and the rest in the declaration order, deduplicated.
func relayTargets(relationship *dbmodel.HARelationship) []string {
	var targets []string
	seen := make(map[string]bool)
	appendTarget := func(peer *dbmodel.HAPeer) {
		if peer.DHCPServer == nil || peer.DHCPServer.Address == "" {
			return
		}
		if !seen[peer.DHCPServer.Address] {
			seen[peer.DHCPServer.Address] = true
			targets = append(targets, peer.DHCPServer.Address)
		}
	}
	for _, peer := range relationship.Peers {
		if peer.IsPrimary() {
			appendTarget(peer)
		}
	}
	for _, peer := range relationship.Peers {
		if !peer.IsPrimary() {
			appendTarget(peer)
		}
	}
	return targets
}
