package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeRoot runs the full command tree with an isolated HOME so no user
// config is picked up.
func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "bgproces", cmd.Use)
	assert.Contains(t, cmd.Long, "bevoegd gezag")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "export", "timeline", "codes", "edit", "history", "watch"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "store"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Empty(t, flag.DefValue)
	}
}

func TestExportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	exportCmd, _, err := cmd.Find([]string{"export"})
	require.NoError(t, err)

	outputFlag := exportCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
	assert.NotNil(t, exportCmd.Flags().Lookup("session"))
}

func TestRootInvalidFormat(t *testing.T) {
	_, _, err := executeRoot(t, "--format", "xml", "validate", testdata("scenario.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootRunsSubcommand(t *testing.T) {
	out, _, err := executeRoot(t, "validate", testdata("scenario.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "scenario.json valid")
}

func TestRootMissingConfigFile(t *testing.T) {
	_, _, err := executeRoot(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "validate", testdata("scenario.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "load config")
}

func TestRootStoreFromConfig(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store:\n  path: "+dbPath+"\n"), 0o644))

	_, _, err := executeRoot(t, "--config", cfgPath, "export", testdata("scenario.json"), "--session", "s1")
	require.NoError(t, err)

	out, _, err := executeRoot(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "s1  1 export(s)")
}

func TestRootStoreFlag(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	_, _, err := executeRoot(t, "--store", dbPath, "export", testdata("scenario.json"), "--session", "s2")
	require.NoError(t, err)

	out, _, err := executeRoot(t, "--store", dbPath, "--format", "json", "history")
	require.NoError(t, err)
	var sessions []SessionView
	decodeResponse(t, out, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s2", sessions[0].ID)
}

func TestRootVerboseLogsToStderr(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: warn\n"), 0o644))

	out, errOut, err := executeRoot(t, "--config", cfgPath, "--verbose", "--format", "json", "validate", testdata("scenario.json"))
	require.NoError(t, err)

	decodeResponse(t, out, nil)
	assert.Contains(t, errOut, "config loaded")
	assert.Contains(t, errOut, "Loaded")
}
