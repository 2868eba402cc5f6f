package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Tree(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "canteen", root.Use)
	assert.Contains(t, root.Long, "atomically")

	commands := [][]string{
		{"serve"}, {"seed"}, {"menu", "list"}, {"menu", "stock"}, {"menu", "delete"},
		{"reserve"}, {"status"}, {"bulk-status"}, {"history"},
		{"topup", "submit"}, {"topup", "decide"}, {"topup", "pending"},
		{"wallet"}, {"alerts"}, {"reconcile"}, {"token"}, {"test"},
	}
	for _, path := range commands {
		sub, _, err := root.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestRootCommand_Flags(t *testing.T) {
	root := NewRootCommand()

	tests := []struct {
		path      []string
		flag      string
		shorthand string
		def       string
	}{
		{nil, "verbose", "v", "false"},
		{nil, "format", "", "text"},
		{nil, "db", "", ""},
		{nil, "config", "", ""},
		{[]string{"reserve"}, "user", "", ""},
		{[]string{"reserve"}, "slot", "", ""},
		{[]string{"reserve"}, "note", "", ""},
		{[]string{"topup", "submit"}, "provider", "", "gcash"},
		{[]string{"token"}, "role", "", "student"},
		{[]string{"token"}, "ttl", "", "1h0m0s"},
		{[]string{"test"}, "update", "", "false"},
		{[]string{"test"}, "fail-fast", "", "false"},
		{[]string{"status"}, "as", "", defaultAdmin},
		{[]string{"bulk-status"}, "as", "", defaultAdmin},
		{[]string{"history"}, "as", "", defaultAdmin},
		{[]string{"topup", "decide"}, "as", "", defaultAdmin},
		{[]string{"menu", "stock"}, "as", "", defaultAdmin},
		{[]string{"seed"}, "as", "", defaultAdmin},
	}

	for _, tt := range tests {
		cmd := root
		if tt.path != nil {
			var err error
			cmd, _, err = root.Find(tt.path)
			require.NoError(t, err)
		}
		f := cmd.Flags().Lookup(tt.flag)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(tt.flag)
		}
		require.NotNil(t, f, "%v --%s", tt.path, tt.flag)
		assert.Equal(t, tt.shorthand, f.Shorthand, "%v --%s", tt.path, tt.flag)
		assert.Equal(t, tt.def, f.DefValue, "%v --%s", tt.path, tt.flag)
	}
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	for _, format := range []string{"xml", "", "TEXT"} {
		assert.False(t, isValidFormat(format), format)
	}

	root := NewRootCommand()
	root.SetArgs([]string{"--format", "yaml", "wallet", "stu-001"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SilenceErrors = true

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
