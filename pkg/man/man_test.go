package man

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManCmd(t *testing.T) {
	root := &cobra.Command{Use: "smartlists", Short: "Smart playlists for Spotify"}
	root.AddCommand(&cobra.Command{Use: "sync", Short: "Sync smart playlists", Run: func(*cobra.Command, []string) {}})
	root.AddCommand(NewManCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"man"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), ".TH")
	assert.Contains(t, out.String(), "smartlists")
}
