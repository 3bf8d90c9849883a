package dbmodel

import (
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"

	dbops "isc.org/roost/server/database"
	roostutil "isc.org/roost/util"
)

// A structure reflecting the dhcp_server SQL table. It holds the
// identity and reachability information of a managed Kea DHCP server.
type DHCPServer struct {
	tableName struct{} `pg:"dhcp_server"` //nolint:unused
	ID        int64
	CreatedAt time.Time
	Name      string
	Address   string
	Port      int64
	Active    bool `pg:",use_zero"`

	// Global (server-level) configuration entities.
	OptionData    []*OptionData  `pg:"many2many:dhcp_server_to_option_data,fk:dhcp_server_id,join_fk:option_data_id"`
	ClientClasses []*ClientClass `pg:"many2many:dhcp_server_to_client_class,fk:dhcp_server_id,join_fk:client_class_id"`

	PrefixConfigs []*PrefixConfig `pg:"rel:has-many"`
	HAPeers       []*HAPeer       `pg:"rel:has-many"`
}

// A structure reflecting the dhcp_server_to_option_data SQL table which
// associates global option data with servers.
type DHCPServerToOptionData struct {
	DHCPServerID int64 `pg:"dhcp_server_id,pk"`
	OptionDataID int64 `pg:",pk"`
	OrderIndex   int64
}

// A structure reflecting the dhcp_server_to_client_class SQL table which
// associates server-level client classes with servers.
type DHCPServerToClientClass struct {
	DHCPServerID  int64 `pg:"dhcp_server_id,pk"`
	ClientClassID int64 `pg:",pk"`
	OrderIndex    int64
}

// Returns the URL over which the server's control channel is reachable.
func (server *DHCPServer) GetURL() string {
	return roostutil.HostWithPortURL(server.Address, server.Port)
}

// Adds a new DHCP server to the database.
func AddDHCPServer(dbIface interface{}, server *DHCPServer) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	if _, err = tx.Model(server).Insert(); err != nil {
		return errors.Wrapf(err, "problem adding DHCP server %s", server.Name)
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing new DHCP server %s", server.Name)
}

// Updates basic information about the DHCP server.
func UpdateDHCPServer(dbIface interface{}, server *DHCPServer) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	result, err := tx.Model(server).WherePK().ExcludeColumn("created_at").Update()
	if err != nil {
		return errors.Wrapf(err, "problem updating DHCP server with ID %d", server.ID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "DHCP server with ID %d does not exist", server.ID)
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing updated DHCP server with ID %d", server.ID)
}

// Fetches a DHCP server and its related entities by ID. Returns nil
// when the server doesn't exist.
func GetDHCPServerByID(dbi dbops.DBI, serverID int64) (*DHCPServer, error) {
	server := &DHCPServer{}
	err := dbi.Model(server).
		Relation("OptionData").
		Relation("ClientClasses").
		Relation("HAPeers.HARelationship").
		Where("dhcp_server.id = ?", serverID).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting DHCP server with ID %d", serverID)
	}
	return server, nil
}

// Fetches a DHCP server and its related entities by the unique name.
// Returns nil when the server doesn't exist.
func GetDHCPServerByName(dbi dbops.DBI, name string) (*DHCPServer, error) {
	server := &DHCPServer{}
	err := dbi.Model(server).
		Relation("OptionData").
		Relation("ClientClasses").
		Relation("HAPeers.HARelationship").
		Where("dhcp_server.name = ?", name).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting DHCP server %s", name)
	}
	return server, nil
}

// Fetches all DHCP servers ordered by name.
func GetAllDHCPServers(dbi dbops.DBI) ([]DHCPServer, error) {
	var servers []DHCPServer
	err := dbi.Model(&servers).
		OrderExpr("name ASC").
		Select()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, errors.Wrapf(err, "problem getting all DHCP servers")
	}
	return servers, nil
}

// Deletes the DHCP server. The deletion fails when the server is still
// referenced by an HA peer or a prefix config.
func DeleteDHCPServer(dbi dbops.DBI, serverID int64) error {
	server := &DHCPServer{
		ID: serverID,
	}
	result, err := dbi.Model(server).WherePK().Delete()
	if err != nil {
		return errors.Wrapf(err, "problem deleting DHCP server with ID %d", serverID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "DHCP server with ID %d does not exist", serverID)
	}
	return nil
}

// Replaces the set of global option data associated with the server.
// The specified order of the option data IDs is preserved.
func SetDHCPServerOptionData(dbIface interface{}, serverID int64, optionDataIDs []int64) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	if _, err = tx.Model((*DHCPServerToOptionData)(nil)).
		Where("dhcp_server_id = ?", serverID).
		Delete(); err != nil {
		return errors.Wrapf(err, "problem removing global option data from server %d", serverID)
	}

	var assocs []DHCPServerToOptionData
	for i, id := range optionDataIDs {
		assocs = append(assocs, DHCPServerToOptionData{
			DHCPServerID: serverID,
			OptionDataID: id,
			OrderIndex:   int64(i),
		})
	}
	if len(assocs) > 0 {
		if _, err = tx.Model(&assocs).OnConflict("DO NOTHING").Insert(); err != nil {
			return errors.Wrapf(err, "problem associating global option data with server %d", serverID)
		}
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing global option data of server %d", serverID)
}

// Replaces the set of server-level client classes associated with the
// server. The specified order of the client class IDs is preserved.
func SetDHCPServerClientClasses(dbIface interface{}, serverID int64, clientClassIDs []int64) error {
	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	if _, err = tx.Model((*DHCPServerToClientClass)(nil)).
		Where("dhcp_server_id = ?", serverID).
		Delete(); err != nil {
		return errors.Wrapf(err, "problem removing client classes from server %d", serverID)
	}

	var assocs []DHCPServerToClientClass
	for i, id := range clientClassIDs {
		assocs = append(assocs, DHCPServerToClientClass{
			DHCPServerID:  serverID,
			ClientClassID: id,
			OrderIndex:    int64(i),
		})
	}
	if len(assocs) > 0 {
		if _, err = tx.Model(&assocs).OnConflict("DO NOTHING").Insert(); err != nil {
			return errors.Wrapf(err, "problem associating client classes with server %d", serverID)
		}
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing client classes of server %d", serverID)
}

// Moves the server-level option data and client class associations
// from one server to another. Associations the target server already
// has are dropped from the source instead of moved. Returns the
// numbers of moved option data and client class associations.
func MoveDHCPServerAssociations(dbi dbops.DBI, fromServerID, toServerID int64) (int, int, error) {
	optionResult, err := dbi.Model((*DHCPServerToOptionData)(nil)).
		Set("dhcp_server_id = ?", toServerID).
		Where("dhcp_server_id = ?", fromServerID).
		Where("option_data_id NOT IN (SELECT option_data_id FROM dhcp_server_to_option_data WHERE dhcp_server_id = ?)", toServerID).
		Update()
	if err != nil {
		return 0, 0, errors.Wrapf(err, "problem moving global option data from server %d to server %d",
			fromServerID, toServerID)
	}
	if _, err = dbi.Model((*DHCPServerToOptionData)(nil)).
		Where("dhcp_server_id = ?", fromServerID).
		Delete(); err != nil {
		return 0, 0, errors.Wrapf(err, "problem removing stale global option data from server %d", fromServerID)
	}

	classResult, err := dbi.Model((*DHCPServerToClientClass)(nil)).
		Set("dhcp_server_id = ?", toServerID).
		Where("dhcp_server_id = ?", fromServerID).
		Where("client_class_id NOT IN (SELECT client_class_id FROM dhcp_server_to_client_class WHERE dhcp_server_id = ?)", toServerID).
		Update()
	if err != nil {
		return 0, 0, errors.Wrapf(err, "problem moving client classes from server %d to server %d",
			fromServerID, toServerID)
	}
	if _, err = dbi.Model((*DHCPServerToClientClass)(nil)).
		Where("dhcp_server_id = ?", fromServerID).
		Delete(); err != nil {
		return 0, 0, errors.Wrapf(err, "problem removing stale client classes from server %d", fromServerID)
	}

	return optionResult.RowsAffected(), classResult.RowsAffected(), nil
}
