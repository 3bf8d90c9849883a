package keaconfig

// Represents an address pool of a subnet in the Kea configuration.
type Pool struct {
	Pool string `json:"pool"`
}

// Represents an IPv4 subnet in the Kea configuration, i.e. an item of
// the subnet4 list.
type Subnet4 struct {
	ID                   int64               `json:"id,omitempty"`
	Subnet               string              `json:"subnet"`
	Pools                []Pool              `json:"pools,omitempty"`
	ValidLifetime        int64               `json:"valid-lifetime,omitempty"`
	MaxValidLifetime     int64               `json:"max-valid-lifetime,omitempty"`
	OptionData           []*SingleOptionData `json:"option-data,omitempty"`
	RequireClientClasses []string            `json:"require-client-classes,omitempty"`
}
