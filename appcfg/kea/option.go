package keaconfig

// Top level DHCP option spaces.
const (
	DHCPv4OptionSpace = "dhcp4"
	DHCPv6OptionSpace = "dhcp6"
)

// An interface to a DHCP option. Database model representing DHCP
// options implements this interface.
type OptionAccessor interface {
	// Returns option name.
	GetName() string
	// Returns option code.
	GetCode() uint16
	// Returns option space.
	GetSpace() string
	// Returns the option value in the textual or hex form.
	GetValue() string
	// Returns a boolean flag indicating if the option should be
	// always returned, regardless whether it is requested or not.
	IsAlwaysSend() bool
	// Returns a boolean flag indicating if the option value is a
	// comma separated list of field values rather than a hex dump.
	IsCSVFormat() bool
}

// Represents a DHCP option in the format used by Kea, i.e. an item of
// the option-data list.
type SingleOptionData struct {
	AlwaysSend bool   `json:"always-send,omitempty"`
	Code       uint16 `json:"code,omitempty"`
	CSVFormat  bool   `json:"csv-format,omitempty"`
	Data       string `json:"data,omitempty"`
	Name       string `json:"name,omitempty"`
	Space      string `json:"space,omitempty"`
}

// Creates a SingleOptionData instance from the DHCP option model used
// by the configuration database.
func CreateSingleOptionData(option OptionAccessor) *SingleOptionData {
	return &SingleOptionData{
		AlwaysSend: option.IsAlwaysSend(),
		Code:       option.GetCode(),
		CSVFormat:  option.IsCSVFormat(),
		Data:       option.GetValue(),
		Name:       option.GetName(),
		Space:      option.GetSpace(),
	}
}
