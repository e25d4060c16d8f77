package driver

import (
	"testing"

	current "github.com/containernetworking/cni/pkg/types/100"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spin-stack/vrouter-vif/internal/vif"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.0.0.5", "10.0.0.5/32"},
		{"10.0.0.5/24", "10.0.0.5/24"},
		{"fe80::1", "fe80::1/128"},
		{"2001:db8::5/64", "2001:db8::5/64"},
		{"0.0.0.0", ""},
		{"", ""},
		{"bogus", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseAddress(tt.in)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestBuildResultDefaultAddress(t *testing.T) {
	names := vif.DeviceNames{Local: "vethabcdef12", Remote: "nsabcdef12", Renamed: "eth1"}
	params := vif.ResolveParameters(vif.Instance{}, vif.Network{ID: "n"})

	r := buildResult(names, "02:42:ac:11:00:02", "c1", params)
	assert.Equal(t, current.ImplementedSpecVersion, r.CNIVersion)
	require.Len(t, r.Interfaces, 2)
	assert.Equal(t, "02:42:ac:11:00:02", r.Interfaces[1].Mac)
	assert.Empty(t, r.IPs, "unassigned 0.0.0.0 is not reported")
}
