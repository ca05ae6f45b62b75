package runner

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagSetValues(t *testing.T) {
	cmd := &cobra.Command{}
	f := cmd.Flags()
	f.String("owner", "", "")
	f.Int("days", 180, "")
	f.Bool("json", false, "")
	f.StringSlice("urls", nil, "")
	f.Duration("timeout", time.Second, "")

	require.NoError(t, f.Set("owner", "owner-1"))
	require.NoError(t, f.Set("days", "90"))
	require.NoError(t, f.Set("json", "true"))
	require.NoError(t, f.Set("urls", "a,b,c"))
	require.NoError(t, f.Set("timeout", "15s"))

	flags := Flags(cmd)
	assert.Equal(t, "owner-1", flags.String("owner"))
	assert.Equal(t, 90, flags.Int("days"))
	assert.True(t, flags.Bool("json"))
	assert.Equal(t, []string{"a", "b", "c"}, flags.StringSlice("urls"))
	assert.Equal(t, 15*time.Second, flags.Duration("timeout"))
	assert.NoError(t, flags.Err())
	assert.False(t, flags.HasErrors())
}

func TestFlagSetChanged(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("changed", "default", "")
	cmd.Flags().String("unchanged", "default", "")
	require.NoError(t, cmd.Flags().Set("changed", "new"))

	flags := Flags(cmd)
	assert.True(t, flags.Changed("changed"))
	assert.False(t, flags.Changed("unchanged"))
}

func TestFlagSetErrorAccumulation(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("valid", "default", "")

	flags := Flags(cmd)
	_ = flags.String("missing")
	_ = flags.Int("valid") // wrong type
	assert.Equal(t, "default", flags.String("valid"))

	assert.True(t, flags.HasErrors())
	err := flags.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag missing")
	assert.Contains(t, err.Error(), "flag valid")
}
