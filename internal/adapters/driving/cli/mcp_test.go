package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPCmd_Structure(t *testing.T) {
	assert.Equal(t, "mcp", mcpCmd.Use)
	assert.True(t, mcpCmd.HasSubCommands())

	found := false
	for _, c := range mcpCmd.Commands() {
		if c.Name() == "serve" {
			found = true
		}
	}
	assert.True(t, found, "mcp serve should be registered")
}

func TestMCPServeCmd_PortFlag(t *testing.T) {
	flag := mcpServeCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "p", flag.Shorthand)
	assert.Equal(t, "0", flag.DefValue)
}

func TestMCPServeCmd_RequiresSearchService(t *testing.T) {
	searchService = nil
	settingsService = nil
	defer func() { searchService = nil }()

	// A nil search service is rejected before any transport starts.
	err := runMCPServe(mcpServeCmd, nil)
	assert.Error(t, err)
}
