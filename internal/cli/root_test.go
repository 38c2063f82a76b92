package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout, stderr and
// the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
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
	assert.Equal(t, "guardian", cmd.Use)
	assert.Contains(t, cmd.Long, "linearizability")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"stress", "test", "check", "config"}

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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestStressCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	stressCmd, _, err := cmd.Find([]string{"stress"})
	require.NoError(t, err)

	for _, name := range []string{"backend", "workers", "ops", "stock", "journal"} {
		assert.NotNil(t, stressCmd.Flags().Lookup(name), "--%s", name)
	}
	assert.ElementsMatch(t, []string{"counter", "inventory", "cache"}, stressCmd.ValidArgs)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("golden"))
}

func TestCheckCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	checkCmd, _, err := cmd.Find([]string{"check"})
	require.NoError(t, err)

	journalFlag := checkCmd.Flags().Lookup("journal")
	require.NotNil(t, journalFlag)
	assert.Equal(t, "", journalFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, _, err := execute(t, "--format", "invalid", "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigCommand_Defaults(t *testing.T) {
	out, _, err := execute(t, "config")
	require.NoError(t, err)

	assert.Contains(t, out, "source=defaults\n")
	assert.Contains(t, out, "backend=mutex\n")
	assert.Contains(t, out, "acquire_timeout=0s\n")
	assert.Contains(t, out, "stress.workers=8\n")
}

func TestConfigCommand_FileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: "mailbox"
acquire_timeout: "250ms"
stress: workers: 3
`), 0o644))

	out, _, err := execute(t, "--config", path, "--format", "json", "config")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Source         string `json:"source"`
			Backend        string `json:"backend"`
			AcquireTimeout string `json:"acquire_timeout"`
			Stress         struct {
				Workers int `json:"workers"`
				Ops     int `json:"ops"`
			} `json:"stress"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, path, resp.Data.Source)
	assert.Equal(t, "mailbox", resp.Data.Backend)
	assert.Equal(t, "250ms", resp.Data.AcquireTimeout)
	assert.Equal(t, 3, resp.Data.Stress.Workers)
	assert.Equal(t, 100, resp.Data.Stress.Ops)
}

func TestConfigCommand_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian.cue")
	require.NoError(t, os.WriteFile(path, []byte(`backend: "spinlock"`), 0o644))

	_, _, err := execute(t, "--config", path, "config")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestVerboseLogsGoToStderr(t *testing.T) {
	out, errOut, err := execute(t, "-v", "--format", "json",
		"stress", "counter", "--workers", "2", "--ops", "5")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "stdout must be pure JSON")
	assert.Contains(t, errOut, "stress run finished")
}
