package kea

import (
	"context"
	"net"
	"sort"
	"strconv"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"

	keaconfig "isc.org/roost/appcfg/kea"
	dbops "isc.org/roost/server/database"
	dbmodel "isc.org/roost/server/database/model"
)

// SynthesizeConfig generates a complete Kea DHCPv4 configuration for
// the given server. The generation is a pure function of the database
// state: the whole read runs in one transaction so the HA peer set and
// the prefix config ownership are observed together, never in a torn
// intermediate state.
//
// For two peers of the same relationship the generated subnet, option
// and client class blocks are identical. Only the this-server-name
// field of the HA block differs.
func SynthesizeConfig(db *dbops.PgDB, serverID int64) (*keaconfig.Config, error) {
	var config *keaconfig.Config
	err := db.RunInTransaction(context.Background(), func(tx *pg.Tx) error {
		var err error
		config, err = synthesizeConfig(tx, serverID)
		return err
	})
	return config, err
}

func synthesizeConfig(dbi dbops.DBI, serverID int64) (*keaconfig.Config, error) {
	server, err := dbmodel.GetDHCPServerByID(dbi, serverID)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, errors.Wrapf(dbmodel.ErrNotExists, "DHCP server with ID %d does not exist", serverID)
	}

	effectiveID, err := ResolveEffectiveServerID(dbi, serverID)
	if err != nil {
		return nil, err
	}
	prefixConfigs, err := dbmodel.GetPrefixConfigsByServerID(dbi, effectiveID)
	if err != nil {
		return nil, err
	}
	serverClasses, err := dbmodel.GetClientClassesByServerID(dbi, effectiveID)
	if err != nil {
		return nil, err
	}
	globalOptions, err := dbmodel.GetOptionDataByServerID(dbi, effectiveID)
	if err != nil {
		return nil, err
	}

	dhcp4 := &keaconfig.Dhcp4Config{
		InterfacesConfig: &keaconfig.InterfacesConfig{
			Interfaces: []string{"*"},
		},
		ValidLifetime:    keaconfig.DefaultValidLifetime,
		MaxValidLifetime: keaconfig.DefaultMaxValidLifetime,
	}

	for i := range globalOptions {
		dhcp4.OptionData = append(dhcp4.OptionData, keaconfig.CreateSingleOptionData(&globalOptions[i]))
	}

	// Server-level classes first, then the classes referenced by the
	// prefix configs, without duplicates.
	var classes []*dbmodel.ClientClass
	seenClasses := make(map[int64]bool)
	for i := range serverClasses {
		if !seenClasses[serverClasses[i].ID] {
			seenClasses[serverClasses[i].ID] = true
			classes = append(classes, &serverClasses[i])
		}
	}
	for i := range prefixConfigs {
		for _, class := range prefixConfigs[i].ClientClasses {
			if !seenClasses[class.ID] {
				seenClasses[class.ID] = true
				classes = append(classes, class)
			}
		}
	}

	// Every option data instance in scope of the document. It drives
	// the discovery of the custom definitions the document must
	// declare.
	var allOptions []*dbmodel.OptionData
	for i := range globalOptions {
		allOptions = append(allOptions, &globalOptions[i])
	}
	for _, class := range classes {
		allOptions = append(allOptions, class.OptionData...)
	}
	for i := range prefixConfigs {
		allOptions = append(allOptions, prefixConfigs[i].OptionData...)
	}

	dhcp4.OptionDef, err = synthesizeOptionDefs(dbi, classes, allOptions)
	if err != nil {
		return nil, err
	}

	for _, class := range classes {
		dhcp4.ClientClasses = append(dhcp4.ClientClasses, synthesizeClientClass(class))
	}

	for i := range prefixConfigs {
		subnet, err := synthesizeSubnet(&prefixConfigs[i])
		if err != nil {
			return nil, err
		}
		if subnet != nil {
			dhcp4.Subnet4 = append(dhcp4.Subnet4, subnet)
		}
	}

	peer, err := dbmodel.GetHAPeerByServerID(dbi, serverID)
	if err != nil {
		return nil, err
	}
	if peer != nil {
		relationship, err := dbmodel.GetHARelationshipByID(dbi, peer.HARelationshipID)
		if err != nil {
			return nil, err
		}
		dhcp4.HooksLibraries = []keaconfig.HookLibrary{
			{
				Library: keaconfig.LeaseCmdsHookLibraryPath,
			},
			{
				Library: keaconfig.HAHookLibraryPath,
				Parameters: &keaconfig.HookParameters{
					HighAvailability: []keaconfig.HA{synthesizeHAConfig(relationship, server.Name)},
				},
			},
		}
	}

	return &keaconfig.Config{Dhcp4: dhcp4}, nil
}

// Builds the global option-def block. It declares the definitions of
// all vendor spaces referenced by the document plus the non-standard
// definitions referenced directly, except the ones the classes with
// local definitions declare inline.
func synthesizeOptionDefs(dbi dbops.DBI, classes []*dbmodel.ClientClass, allOptions []*dbmodel.OptionData) ([]*keaconfig.OptionDef, error) {
	localDefs := make(map[int64]bool)
	for _, class := range classes {
		if !class.LocalDefinitions {
			continue
		}
		for _, option := range class.OptionData {
			if option.OptionDefinitionID != 0 {
				localDefs[option.OptionDefinitionID] = true
			}
		}
	}

	var vendorSpaceIDs []int64
	seenSpaces := make(map[int64]bool)
	for _, option := range allOptions {
		if option.VendorOptionSpaceID != 0 && !seenSpaces[option.VendorOptionSpaceID] {
			seenSpaces[option.VendorOptionSpaceID] = true
			vendorSpaceIDs = append(vendorSpaceIDs, option.VendorOptionSpaceID)
		}
	}
	sort.Slice(vendorSpaceIDs, func(i, j int) bool { return vendorSpaceIDs[i] < vendorSpaceIDs[j] })

	var optionDefs []*keaconfig.OptionDef
	seenDefs := make(map[int64]bool)
	for _, spaceID := range vendorSpaceIDs {
		defs, err := dbmodel.GetOptionDefinitionsByVendorSpaceID(dbi, spaceID)
		if err != nil {
			return nil, err
		}
		for i := range defs {
			if localDefs[defs[i].ID] || seenDefs[defs[i].ID] {
				continue
			}
			seenDefs[defs[i].ID] = true
			optionDefs = append(optionDefs, keaconfig.CreateOptionDef(&defs[i]))
		}
	}
	for _, option := range allOptions {
		def := option.OptionDefinition
		if def == nil || def.IsStandard() || localDefs[def.ID] || seenDefs[def.ID] {
			continue
		}
		seenDefs[def.ID] = true
		optionDefs = append(optionDefs, keaconfig.CreateOptionDef(def))
	}

	sort.SliceStable(optionDefs, func(i, j int) bool {
		if optionDefs[i].Space != optionDefs[j].Space {
			return optionDefs[i].Space < optionDefs[j].Space
		}
		if optionDefs[i].Code != optionDefs[j].Code {
			return optionDefs[i].Code < optionDefs[j].Code
		}
		return optionDefs[i].Name < optionDefs[j].Name
	})
	return optionDefs, nil
}

// Builds a client class block. Classes delivering options over option
// 43 declare the vendor-encapsulated-options prolog; classes with
// VIVSO options announce the enterprise IDs over vivso-suboptions.
// The option data entries follow in a stable order.
func synthesizeClientClass(class *dbmodel.ClientClass) *keaconfig.ClientClass {
	result := &keaconfig.ClientClass{
		Name:           class.Name,
		Test:           class.TestExpression,
		NextServer:     class.NextServer,
		ServerHostname: class.ServerHostname,
		BootFileName:   class.BootFileName,
	}

	option43Spaces := vendorSpacesByDelivery(class.OptionData, dbmodel.DeliveryTypeOption43)
	vivsoSpaces := vendorSpacesByDelivery(class.OptionData, dbmodel.DeliveryTypeVIVSO)

	for _, space := range option43Spaces {
		result.OptionDef = append(result.OptionDef, &keaconfig.OptionDef{
			Name:        "vendor-encapsulated-options",
			Code:        43,
			Type:        "empty",
			Space:       keaconfig.DHCPv4OptionSpace,
			Encapsulate: space.Name,
		})
	}
	if class.LocalDefinitions {
		var defs []*dbmodel.OptionDefinition
		seenDefs := make(map[int64]bool)
		for _, option := range class.OptionData {
			if option.OptionDefinition != nil && !seenDefs[option.OptionDefinition.ID] {
				seenDefs[option.OptionDefinition.ID] = true
				defs = append(defs, option.OptionDefinition)
			}
		}
		sort.SliceStable(defs, func(i, j int) bool {
			if defs[i].Code != defs[j].Code {
				return defs[i].Code < defs[j].Code
			}
			return defs[i].Name < defs[j].Name
		})
		for _, def := range defs {
			result.OptionDef = append(result.OptionDef, keaconfig.CreateOptionDef(def))
		}
	}

	if len(option43Spaces) > 0 {
		result.OptionData = append(result.OptionData, &keaconfig.SingleOptionData{
			Name: "vendor-encapsulated-options",
			Code: 43,
		})
	}
	for _, space := range vivsoSpaces {
		result.OptionData = append(result.OptionData, &keaconfig.SingleOptionData{
			Name: "vivso-suboptions",
			Data: strconv.FormatInt(space.EnterpriseID, 10),
		})
	}
	for _, option := range sortOptionData(class.OptionData) {
		result.OptionData = append(result.OptionData, keaconfig.CreateSingleOptionData(option))
	}

	return result
}

// Builds a subnet4 block from a prefix config. IPv6 prefixes are
// skipped since the document configures a DHCPv4 server. The classes
// are referenced by name so the document is self-contained.
func synthesizeSubnet(config *dbmodel.PrefixConfig) (*keaconfig.Subnet4, error) {
	_, network, err := net.ParseCIDR(config.Prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid prefix %s in prefix config %d", config.Prefix, config.ID)
	}
	if network.IP.To4() == nil {
		return nil, nil
	}

	subnet := &keaconfig.Subnet4{
		Subnet:           config.Prefix,
		ValidLifetime:    config.ValidLifetime,
		MaxValidLifetime: config.MaxLifetime,
	}

	if config.Pool {
		first, last := cidr.AddressRange(network)
		ones, bits := network.Mask.Size()
		if bits-ones > 1 {
			// Skip the network and broadcast addresses.
			first = cidr.Inc(first)
			last = cidr.Dec(last)
		}
		subnet.Pools = []keaconfig.Pool{
			{Pool: first.String() + " - " + last.String()},
		}
	}

	for _, option := range sortOptionData(config.OptionData) {
		subnet.OptionData = append(subnet.OptionData, keaconfig.CreateSingleOptionData(option))
	}
	router, err := config.GetRouterAddress()
	if err != nil {
		return nil, err
	}
	if router != "" {
		subnet.OptionData = append(subnet.OptionData, &keaconfig.SingleOptionData{
			Space:     keaconfig.DHCPv4OptionSpace,
			Name:      "routers",
			Code:      3,
			CSVFormat: true,
			Data:      router,
		})
	}

	for _, class := range config.ClientClasses {
		subnet.RequireClientClasses = append(subnet.RequireClientClasses, class.Name)
	}

	return subnet, nil
}

// Builds the HA hook parameters for one peer's document. The peer list
// and the mode are identical across all peers of the relationship,
// only this-server-name identifies the host the document is for.
func synthesizeHAConfig(relationship *dbmodel.HARelationship, thisServerName string) keaconfig.HA {
	haConfig := keaconfig.HA{
		ThisServerName:          thisServerName,
		Mode:                    relationship.Mode,
		HeartbeatDelay:          relationship.HeartbeatDelay,
		MaxResponseDelay:        relationship.MaxResponseDelay,
		MaxAckDelay:             relationship.MaxAckDelay,
		MaxUnackedClients:       relationship.MaxUnackedClients,
		MaxRejectedLeaseUpdates: relationship.MaxRejectedLeaseUpdates,
	}
	if relationship.MultiThreading {
		haConfig.MultiThreading = &keaconfig.HAMultiThreading{
			EnableMultiThreading:  true,
			HTTPDedicatedListener: relationship.HTTPDedicatedListener,
			HTTPListenerThreads:   relationship.HTTPListenerThreads,
			HTTPClientThreads:     relationship.HTTPClientThreads,
		}
	}
	for _, peer := range relationship.Peers {
		url := peer.URL
		if url == "" && peer.DHCPServer != nil {
			url = peer.DHCPServer.GetURL()
		}
		name := ""
		if peer.DHCPServer != nil {
			name = peer.DHCPServer.Name
		}
		haConfig.Peers = append(haConfig.Peers, keaconfig.Peer{
			Name:         name,
			URL:          url,
			Role:         peer.Role,
			AutoFailover: peer.AutoFailover,
		})
	}
	return haConfig
}

// Returns the vendor option spaces used by the options with the given
// delivery type, each space once, ordered by name.
func vendorSpacesByDelivery(options []*dbmodel.OptionData, deliveryType string) []*dbmodel.VendorOptionSpace {
	var spaces []*dbmodel.VendorOptionSpace
	seen := make(map[int64]bool)
	for _, option := range options {
		if option.DeliveryType != deliveryType || option.VendorOptionSpace == nil {
			continue
		}
		if !seen[option.VendorOptionSpace.ID] {
			seen[option.VendorOptionSpace.ID] = true
			spaces = append(spaces, option.VendorOptionSpace)
		}
	}
	sort.SliceStable(spaces, func(i, j int) bool { return spaces[i].Name < spaces[j].Name })
	return spaces
}

// Returns the options sorted by the definition code, then by the
// option data name, without mutating the input slice.
func sortOptionData(options []*dbmodel.OptionData) []*dbmodel.OptionData {
	sorted := make([]*dbmodel.OptionData, len(options))
	copy(sorted, options)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].GetCode() != sorted[j].GetCode() {
			return sorted[i].GetCode() < sorted[j].GetCode()
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}
