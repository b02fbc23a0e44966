package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relkit/relkit/pkg/semrel"
)

func TestParseBumpArg(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    semrel.Bump
		wantErr bool
	}{
		{name: "no argument means auto", args: nil, want: semrel.BumpNone},
		{name: "explicit auto", args: []string{"auto"}, want: semrel.BumpNone},
		{name: "patch", args: []string{"patch"}, want: semrel.BumpPatch},
		{name: "minor", args: []string{"minor"}, want: semrel.BumpMinor},
		{name: "major", args: []string{"major"}, want: semrel.BumpMajor},
		{name: "unknown level", args: []string{"huge"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBumpArg(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAcceptsRelease(t *testing.T) {
	assert.True(t, acceptsRelease("y"))
	assert.True(t, acceptsRelease("Yes"))
	assert.False(t, acceptsRelease("n"))
	assert.False(t, acceptsRelease(""), "no input (non-interactive without --yes) must cancel")
	assert.False(t, acceptsRelease("anything"))
}

func TestReleaseFlagLayer(t *testing.T) {
	cmd := releaseCmd
	require.NoError(t, cmd.Flags().Set("skip-tests", "true"))
	require.NoError(t, cmd.Flags().Set("coverage-threshold", "75.5"))

	layer := releaseFlagLayer(cmd)

	require.NotNil(t, layer.Testing.Enabled)
	assert.False(t, *layer.Testing.Enabled)
	require.NotNil(t, layer.Testing.CoverageThreshold)
	assert.Equal(t, 75.5, *layer.Testing.CoverageThreshold)
	assert.Nil(t, layer.Release.AutoPublish)
}
