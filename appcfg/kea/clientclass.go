package keaconfig

// Represents a client class in the Kea configuration, i.e. an item of
// the client-classes list. A class carrying only local option
// definitions has no test expression and no option data.
type ClientClass struct {
	Name           string              `json:"name"`
	Test           string              `json:"test,omitempty"`
	OptionDef      []*OptionDef        `json:"option-def,omitempty"`
	OptionData     []*SingleOptionData `json:"option-data,omitempty"`
	NextServer     string              `json:"next-server,omitempty"`
	ServerHostname string              `json:"server-hostname,omitempty"`
	BootFileName   string              `json:"boot-file-name,omitempty"`
}
