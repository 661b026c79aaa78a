package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitImageArg(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		host    string
		image   string
		glob    string
		wantErr bool
	}{
		{
			name:  "image without glob",
			arg:   "registry.example.org/foo/bar",
			host:  "registry.example.org",
			image: "foo/bar",
			glob:  "*",
		},
		{
			name:  "image with glob",
			arg:   "registry.example.org/foo:l*",
			host:  "registry.example.org",
			image: "foo",
			glob:  "l*",
		},
		{
			name:  "nested namespace with glob",
			arg:   "registry.example.org/team/app:*-production",
			host:  "registry.example.org",
			image: "team/app",
			glob:  "*-production",
		},
		{name: "no slash", arg: "registry.example.org", wantErr: true},
		{name: "empty name", arg: "registry.example.org/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, name, glob, err := splitImageArg(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.image, name)
			assert.Equal(t, tt.glob, glob)
		})
	}
}
