package keaconfig

// An interface to a DHCP option definition. Database model
// representing DHCP option definitions implements this interface.
type OptionDefinitionAccessor interface {
	// Returns option name.
	GetName() string
	// Returns option code.
	GetCode() uint16
	// Returns option type.
	GetType() string
	// Returns option space.
	GetSpace() string
	// Returns a boolean flag indicating if the option carries an
	// array of values.
	IsArray() bool
	// Returns encapsulated option space name.
	GetEncapsulate() string
	// Returns a comma separated list of record field types when the
	// option type is a record.
	GetRecordTypes() string
	// Returns a boolean flag indicating if the definition is already
	// known to Kea and must not be re-declared.
	IsStandard() bool
}

// Represents a DHCP option definition in the format used by Kea, i.e.
// an item of the option-def list.
type OptionDef struct {
	Array       bool   `json:"array,omitempty"`
	Code        uint16 `json:"code"`
	Encapsulate string `json:"encapsulate,omitempty"`
	Name        string `json:"name"`
	RecordTypes string `json:"record-types,omitempty"`
	Space       string `json:"space"`
	Type        string `json:"type"`
}

// Creates an OptionDef instance from the DHCP option definition model
// used by the configuration database.
func CreateOptionDef(definition OptionDefinitionAccessor) *OptionDef {
	return &OptionDef{
		Array:       definition.IsArray(),
		Code:        definition.GetCode(),
		Encapsulate: definition.GetEncapsulate(),
		Name:        definition.GetName(),
		RecordTypes: definition.GetRecordTypes(),
		Space:       definition.GetSpace(),
		Type:        definition.GetType(),
	}
}
