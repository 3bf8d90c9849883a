package dbops

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Check the conversion of the database settings to the go-pg
// connection parameters for TCP connections.
func TestPgParamsTCP(t *testing.T) {
	settings := &DatabaseSettings{
		DBName:   "roost",
		User:     "admin",
		Password: "secret",
		Host:     "db.example.org",
		Port:     5433,
	}
	params := settings.PgParams()
	require.Equal(t, "roost", params.Database)
	require.Equal(t, "admin", params.User)
	require.Equal(t, "secret", params.Password)
	require.Equal(t, "tcp", params.Network)
	require.Equal(t, "db.example.org:5433", params.Addr)
}

// Check that a host starting with a slash selects the socket
// connection.
func TestPgParamsSocket(t *testing.T) {
	settings := &DatabaseSettings{
		DBName: "roost",
		User:   "roost",
		Host:   "/var/run/postgresql",
		Port:   5432,
	}
	params := settings.PgParams()
	require.Equal(t, "unix", params.Network)
	require.Equal(t, "/var/run/postgresql/.s.PGSQL.5432", params.Addr)
}

// Check reading the password from the environment variable.
func TestPasswordFromEnvironment(t *testing.T) {
	t.Setenv("ROOST_DATABASE_PASSWORD", "secret")

	settings := &DatabaseSettings{}
	err := Password(settings)
	require.NoError(t, err)
	require.Equal(t, "secret", settings.Password)

	// an explicitly provided password takes precedence
	settings.Password = "explicit"
	err = Password(settings)
	require.NoError(t, err)
	require.Equal(t, "explicit", settings.Password)
}
