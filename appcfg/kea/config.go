package keaconfig

import (
	"encoding/json"

	"github.com/pkg/errors"
	"muzzammil.xyz/jsonc"
)

// Paths of the hook libraries referenced by the generated
// configurations.
const (
	LeaseCmdsHookLibraryPath = "/usr/lib/kea/hooks/libdhcp_lease_cmds.so"
	HAHookLibraryPath        = "/usr/lib/kea/hooks/libdhcp_ha.so"
)

// Global lease lifetimes applied when a subnet doesn't override them.
const (
	DefaultValidLifetime    int64 = 3600
	DefaultMaxValidLifetime int64 = 7200
)

// Represents the root of a Kea DHCPv4 configuration file.
type Config struct {
	Dhcp4 *Dhcp4Config `json:"Dhcp4"`
}

// Represents the interfaces-config map of the DHCPv4 server.
type InterfacesConfig struct {
	Interfaces []string `json:"interfaces"`
}

// Represents one item of the hooks-libraries list.
type HookLibrary struct {
	Library    string          `json:"library"`
	Parameters *HookParameters `json:"parameters,omitempty"`
}

// Represents the parameters map of a hook library. Only the HA hook
// parameters are generated.
type HookParameters struct {
	HighAvailability []HA `json:"high-availability,omitempty"`
}

// Represents the Dhcp4 map of a Kea configuration.
type Dhcp4Config struct {
	InterfacesConfig *InterfacesConfig   `json:"interfaces-config,omitempty"`
	ValidLifetime    int64               `json:"valid-lifetime,omitempty"`
	MaxValidLifetime int64               `json:"max-valid-lifetime,omitempty"`
	OptionData       []*SingleOptionData `json:"option-data,omitempty"`
	OptionDef        []*OptionDef        `json:"option-def,omitempty"`
	ClientClasses    []*ClientClass      `json:"client-classes,omitempty"`
	Subnet4          []*Subnet4          `json:"subnet4,omitempty"`
	HooksLibraries   []HookLibrary       `json:"hooks-libraries,omitempty"`
}

// Returns the HA parameters of the first libdhcp_ha hook library entry
// or nil when the configuration carries none.
func (c *Dhcp4Config) GetHAConfig() *HA {
	for _, hook := range c.HooksLibraries {
		if hook.Library != HAHookLibraryPath || hook.Parameters == nil {
			continue
		}
		if len(hook.Parameters.HighAvailability) > 0 {
			return &hook.Parameters.HighAvailability[0]
		}
	}
	return nil
}

// Identifies a server in the relay configuration returned to network
// automation tooling.
type RelayServer struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Carries the helper addresses to configure on the layer 3 devices
// fronting a subnet. In HA setups the targets cover all peers of the
// serving relationship.
type RelayConfig struct {
	Server       RelayServer `json:"server"`
	RelayTargets []string    `json:"relay_targets"`
}

// Serializes the configuration to the indented JSON form accepted by
// Kea.
func (c *Config) Marshal() ([]byte, error) {
	output, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return nil, errors.Wrapf(err, "problem serializing the configuration")
	}
	return output, nil
}

// Parses a configuration which may contain the comments accepted by
// Kea but invalid in plain JSON.
func FromJSON(raw []byte) (*Config, error) {
	var config Config
	if err := jsonc.Unmarshal(raw, &config); err != nil {
		return nil, errors.Wrapf(err, "problem parsing the configuration")
	}
	return &config, nil
}
