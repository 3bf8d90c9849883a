package keaconfig

// Supported high availability modes.
const (
	HAModeHotStandby    = "hot-standby"
	HAModeLoadBalancing = "load-balancing"
	HAModePassiveBackup = "passive-backup"
)

// Roles of the peers in a high availability relationship.
const (
	HAPeerRolePrimary   = "primary"
	HAPeerRoleSecondary = "secondary"
	HAPeerRoleStandby   = "standby"
	HAPeerRoleBackup    = "backup"
)

// A structure reflecting an array of high availability configurations
// for a Kea server. It is a top level HA library configuration.
type HALibraryParams struct {
	HA []HA `json:"high-availability"`
}

// A structure representing a single high availability configuration
// for a Kea server. It defines relations between several connected
// peers (e.g., primary, standby and a backup).
type HA struct {
	ThisServerName          string            `json:"this-server-name"`
	Mode                    string            `json:"mode"`
	HeartbeatDelay          int64             `json:"heartbeat-delay,omitempty"`
	MaxResponseDelay        int64             `json:"max-response-delay,omitempty"`
	MaxAckDelay             int64             `json:"max-ack-delay,omitempty"`
	MaxUnackedClients       int64             `json:"max-unacked-clients"`
	MaxRejectedLeaseUpdates int64             `json:"max-rejected-lease-updates,omitempty"`
	Peers                   []Peer            `json:"peers"`
	MultiThreading          *HAMultiThreading `json:"multi-threading,omitempty"`
}

// A structure representing the multi-threading configuration in the
// high availability hook library.
type HAMultiThreading struct {
	EnableMultiThreading  bool  `json:"enable-multi-threading"`
	HTTPDedicatedListener bool  `json:"http-dedicated-listener"`
	HTTPListenerThreads   int64 `json:"http-listener-threads"`
	HTTPClientThreads     int64 `json:"http-client-threads"`
}

// A structure representing one of the peers in the high availability
// configuration (e.g., a standby server).
type Peer struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Role         string `json:"role"`
	AutoFailover bool   `json:"auto-failover"`
}

// Checks that the peer roles satisfy the mode of the relationship.
// Hot-standby requires one primary and one standby, load-balancing
// one primary and one secondary, and passive-backup at least one
// primary. Backup peers are allowed in any mode.
func (c HA) IsValid() bool {
	var primaryCount, secondaryCount, standbyCount int
	for _, p := range c.Peers {
		switch p.Role {
		case HAPeerRolePrimary:
			primaryCount++
		case HAPeerRoleSecondary:
			secondaryCount++
		case HAPeerRoleStandby:
			standbyCount++
		}
	}
	switch c.Mode {
	case HAModeHotStandby:
		return primaryCount == 1 && standbyCount == 1
	case HAModeLoadBalancing:
		return primaryCount == 1 && secondaryCount == 1
	case HAModePassiveBackup:
		return primaryCount >= 1
	default:
		return false
	}
}
