package roost

// Specifies the Roost version.
const Version = "0.4.0"

// Specifies the Roost build date. Set during the building process.
var BuildDate = "unset" //nolint:gochecknoglobals
