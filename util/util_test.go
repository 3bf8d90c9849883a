package roostutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Check the URL of a host with a port.
func TestHostWithPortURL(t *testing.T) {
	require.Equal(t, "http://10.0.0.1:8000/", HostWithPortURL("10.0.0.1", 8000))
	require.Equal(t, "http://localhost:8080/", HostWithPortURL("localhost", 8080))
}

// Check the conversion of an address to the CIDR notation.
func TestMakeCIDR(t *testing.T) {
	cidr, err := MakeCIDR("192.0.2.123")
	require.NoError(t, err)
	require.Equal(t, "192.0.2.123/32", cidr)

	cidr, err = MakeCIDR("192.0.2.0/24")
	require.NoError(t, err)
	require.Equal(t, "192.0.2.0/24", cidr)

	cidr, err = MakeCIDR("2001:db8:1::1")
	require.NoError(t, err)
	require.Equal(t, "2001:db8:1::1/128", cidr)

	_, err = MakeCIDR("not-an-address")
	require.Error(t, err)
}

// Check the recognition and canonicalization of addresses and
// prefixes.
func TestParseIP(t *testing.T) {
	parsed, prefix, ok := ParseIP("192.0.2.0/24")
	require.True(t, ok)
	require.True(t, prefix)
	require.Equal(t, "192.0.2.0/24", parsed)

	// host bits are zeroed
	parsed, prefix, ok = ParseIP("192.0.2.42/24")
	require.True(t, ok)
	require.True(t, prefix)
	require.Equal(t, "192.0.2.0/24", parsed)

	// a full length mask is an address, not a prefix
	parsed, prefix, ok = ParseIP("192.0.2.2/32")
	require.True(t, ok)
	require.False(t, prefix)
	require.Equal(t, "192.0.2.2", parsed)

	parsed, prefix, ok = ParseIP("2001:db8:1::/48")
	require.True(t, ok)
	require.True(t, prefix)
	require.Equal(t, "2001:db8:1::/48", parsed)

	_, _, ok = ParseIP("192.0.2.1")
	require.False(t, ok)
}

// Check the generation of random base64 encoded strings.
func TestBase64Random(t *testing.T) {
	first, err := Base64Random(24)
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := Base64Random(24)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
