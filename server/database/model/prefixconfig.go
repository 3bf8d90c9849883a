package dbmodel

import (
	"net"
	"time"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/asaskevich/govalidator"
	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"

	dbops "isc.org/roost/server/database"
	roostutil "isc.org/roost/util"
)

// A structure reflecting the prefix_config SQL table. It holds the
// DHCP configuration of a single network prefix (Kea subnet) owned by
// one server. A prefix has at most one configuration within a routing
// domain.
type PrefixConfig struct {
	tableName     struct{} `pg:"prefix_config"` //nolint:unused
	ID            int64
	CreatedAt     time.Time
	Prefix        string
	RoutingDomain string
	DHCPServerID  int64       `pg:"dhcp_server_id"`
	DHCPServer    *DHCPServer `pg:"rel:has-one"`
	Pool          bool        `pg:",use_zero"`
	ValidLifetime int64
	MaxLifetime   int64

	// Offset from the network address of the router IP advertised in
	// the routers option, e.g. 1 for .1 in a /24. Zero disables the
	// routers option.
	RoutersOptionOffset int64 `pg:",use_zero"`

	OptionData    []*OptionData  `pg:"many2many:prefix_config_to_option_data,fk:prefix_config_id,join_fk:option_data_id"`
	ClientClasses []*ClientClass `pg:"many2many:prefix_config_to_client_class,fk:prefix_config_id,join_fk:client_class_id"`
}

// A structure reflecting the prefix_config_to_option_data SQL table.
type PrefixConfigToOptionData struct {
	PrefixConfigID int64 `pg:",pk"`
	OptionDataID   int64 `pg:",pk"`
	OrderIndex     int64
}

// A structure reflecting the prefix_config_to_client_class SQL table.
type PrefixConfigToClientClass struct {
	PrefixConfigID int64 `pg:",pk"`
	ClientClassID  int64 `pg:",pk"`
	OrderIndex     int64
}

// Returns the router address advertised in the routers option,
// computed from the prefix and the configured offset. Returns an empty
// string when the routers option is disabled.
func (config *PrefixConfig) GetRouterAddress() (string, error) {
	if config.RoutersOptionOffset == 0 {
		return "", nil
	}
	_, network, err := net.ParseCIDR(config.Prefix)
	if err != nil {
		return "", errors.Wrapf(err, "invalid prefix %s in prefix config %d", config.Prefix, config.ID)
	}
	router, err := cidr.Host(network, int(config.RoutersOptionOffset))
	if err != nil {
		return "", errors.Wrapf(err, "routers option offset %d doesn't fit in the prefix %s",
			config.RoutersOptionOffset, config.Prefix)
	}
	return router.String(), nil
}

// Validates the prefix config before it is committed. The lifetime
// bound is also enforced by a database constraint but it is checked
// here to return a friendlier error within the same transaction.
func (config *PrefixConfig) validate() error {
	if config.MaxLifetime < config.ValidLifetime {
		return errors.WithMessagef(ErrInvalidLifetime,
			"prefix config for %s has valid lifetime %d and maximum lifetime %d",
			config.Prefix, config.ValidLifetime, config.MaxLifetime)
	}
	if !govalidator.IsCIDR(config.Prefix) {
		return errors.Errorf("prefix %s is not a valid CIDR", config.Prefix)
	}

	// Store the prefix in the canonical form with host bits zeroed.
	parsed, isPrefix, ok := roostutil.ParseIP(config.Prefix)
	if !ok || !isPrefix {
		return errors.Errorf("specified value %s is not a prefix", config.Prefix)
	}
	config.Prefix = parsed
	return nil
}

// Adds a new prefix config to the database together with its option
// data and client class associations.
func AddPrefixConfig(dbIface interface{}, config *PrefixConfig) error {
	if err := config.validate(); err != nil {
		return err
	}

	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	if _, err = tx.Model(config).Insert(); err != nil {
		return errors.Wrapf(err, "problem adding prefix config for %s", config.Prefix)
	}

	if err = setPrefixConfigAssociations(tx, config); err != nil {
		return err
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing new prefix config for %s", config.Prefix)
}

// Updates the prefix config and replaces its associations.
func UpdatePrefixConfig(dbIface interface{}, config *PrefixConfig) error {
	if err := config.validate(); err != nil {
		return err
	}

	tx, rollback, commit, err := dbops.Transaction(dbIface)
	if err != nil {
		return err
	}
	defer rollback()

	result, err := tx.Model(config).WherePK().ExcludeColumn("created_at").Update()
	if err != nil {
		return errors.Wrapf(err, "problem updating prefix config with ID %d", config.ID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "prefix config with ID %d does not exist", config.ID)
	}

	if _, err = tx.Model((*PrefixConfigToOptionData)(nil)).
		Where("prefix_config_id = ?", config.ID).
		Delete(); err != nil {
		return errors.Wrapf(err, "problem removing option data from prefix config %d", config.ID)
	}
	if _, err = tx.Model((*PrefixConfigToClientClass)(nil)).
		Where("prefix_config_id = ?", config.ID).
		Delete(); err != nil {
		return errors.Wrapf(err, "problem removing client classes from prefix config %d", config.ID)
	}
	if err = setPrefixConfigAssociations(tx, config); err != nil {
		return err
	}

	err = commit()
	return errors.WithMessagef(err, "problem committing updated prefix config with ID %d", config.ID)
}

// Inserts the associations between the prefix config and its option
// data and client classes.
func setPrefixConfigAssociations(tx *pg.Tx, config *PrefixConfig) error {
	var optionAssocs []PrefixConfigToOptionData
	for i, option := range config.OptionData {
		optionAssocs = append(optionAssocs, PrefixConfigToOptionData{
			PrefixConfigID: config.ID,
			OptionDataID:   option.ID,
			OrderIndex:     int64(i),
		})
	}
	if len(optionAssocs) > 0 {
		if _, err := tx.Model(&optionAssocs).OnConflict("DO NOTHING").Insert(); err != nil {
			return errors.Wrapf(err, "problem associating option data with prefix config %d", config.ID)
		}
	}

	var classAssocs []PrefixConfigToClientClass
	for i, class := range config.ClientClasses {
		classAssocs = append(classAssocs, PrefixConfigToClientClass{
			PrefixConfigID: config.ID,
			ClientClassID:  class.ID,
			OrderIndex:     int64(i),
		})
	}
	if len(classAssocs) > 0 {
		if _, err := tx.Model(&classAssocs).OnConflict("DO NOTHING").Insert(); err != nil {
			return errors.Wrapf(err, "problem associating client classes with prefix config %d", config.ID)
		}
	}
	return nil
}

// Fetches a prefix config by ID together with its associations.
// Returns nil when the config doesn't exist.
func GetPrefixConfigByID(dbi dbops.DBI, configID int64) (*PrefixConfig, error) {
	config := &PrefixConfig{}
	err := dbi.Model(config).
		Relation("DHCPServer").
		Relation("OptionData.OptionDefinition.VendorOptionSpace").
		Relation("OptionData.VendorOptionSpace").
		Relation("ClientClasses.OptionData.OptionDefinition.VendorOptionSpace").
		Relation("ClientClasses.OptionData.VendorOptionSpace").
		Where("prefix_config.id = ?", configID).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting prefix config with ID %d", configID)
	}
	return config, nil
}

// Fetches a prefix config by the prefix and an optional routing domain
// qualifier. Returns nil when the config doesn't exist.
func GetPrefixConfigByPrefix(dbi dbops.DBI, prefix, routingDomain string) (*PrefixConfig, error) {
	config := &PrefixConfig{}
	q := dbi.Model(config).
		Relation("DHCPServer").
		Relation("OptionData.OptionDefinition.VendorOptionSpace").
		Relation("OptionData.VendorOptionSpace").
		Relation("ClientClasses.OptionData.OptionDefinition.VendorOptionSpace").
		Relation("ClientClasses.OptionData.VendorOptionSpace").
		Where("prefix_config.prefix = ?", prefix)
	if routingDomain != "" {
		q = q.Where("prefix_config.routing_domain = ?", routingDomain)
	} else {
		q = q.Where("prefix_config.routing_domain IS NULL")
	}
	err := q.Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "problem getting prefix config for %s", prefix)
	}
	return config, nil
}

// Fetches the prefix configs directly owned by the given server. The
// configs are returned in the creation order so the synthesized
// documents are deterministic across calls.
func GetPrefixConfigsByServerID(dbi dbops.DBI, serverID int64) ([]PrefixConfig, error) {
	var configs []PrefixConfig
	err := dbi.Model(&configs).
		Relation("OptionData.OptionDefinition.VendorOptionSpace").
		Relation("OptionData.VendorOptionSpace").
		Relation("ClientClasses.OptionData.OptionDefinition.VendorOptionSpace").
		Relation("ClientClasses.OptionData.VendorOptionSpace").
		Where("prefix_config.dhcp_server_id = ?", serverID).
		OrderExpr("prefix_config.id ASC").
		Select()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, errors.Wrapf(err, "problem getting prefix configs for server %d", serverID)
	}
	return configs, nil
}

// Returns the number of prefix configs directly owned by the server.
func GetPrefixConfigCountByServerID(dbi dbops.DBI, serverID int64) (int, error) {
	count, err := dbi.Model((*PrefixConfig)(nil)).
		Where("dhcp_server_id = ?", serverID).
		Count()
	if err != nil {
		return 0, errors.Wrapf(err, "problem counting prefix configs for server %d", serverID)
	}
	return count, nil
}

// Transfers the ownership of all prefix configs from one server to
// another. The config identifiers, associations and lifetimes are
// preserved unchanged. Returns the number of re-parented configs.
func ReparentPrefixConfigs(dbi dbops.DBI, fromServerID, toServerID int64) (int, error) {
	result, err := dbi.Model((*PrefixConfig)(nil)).
		Set("dhcp_server_id = ?", toServerID).
		Where("dhcp_server_id = ?", fromServerID).
		Update()
	if err != nil {
		return 0, errors.Wrapf(err, "problem transferring prefix configs from server %d to server %d",
			fromServerID, toServerID)
	}
	return result.RowsAffected(), nil
}

// Deletes the prefix config and all its associations.
func DeletePrefixConfig(dbi dbops.DBI, configID int64) error {
	config := &PrefixConfig{
		ID: configID,
	}
	result, err := dbi.Model(config).WherePK().Delete()
	if err != nil {
		return errors.Wrapf(err, "problem deleting prefix config with ID %d", configID)
	} else if result.RowsAffected() <= 0 {
		return errors.Wrapf(ErrNotExists, "prefix config with ID %d does not exist", configID)
	}
	return nil
}
