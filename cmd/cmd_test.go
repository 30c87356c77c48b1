package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// prepareTempConfigDir points HOME at a temp dir and returns its .datagate config dir.
func prepareTempConfigDir(t *testing.T) string {
	_, err := os.Stat("/etc/datagate/config.yaml")
	require.ErrorIs(t, err, os.ErrNotExist, "Config file at /etc/datagate/config.yaml would disturb test result.")

	homedir := t.TempDir()
	t.Setenv("HOME", homedir)

	confdir := filepath.Join(homedir, ".datagate")
	require.NoError(t, os.Mkdir(confdir, 0750))

	return confdir
}

func prepareTempConfigFile(t *testing.T, config string) {
	confdir := prepareTempConfigDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(confdir, "config.yaml"), []byte(config), 0600))
}

// execute runs sub under a fresh root command and returns its stdout.
func execute(t *testing.T, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(viper.Reset)

	root := NewRootCommand()
	root.AddCommand(sub)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{sub.Name()}, args...))

	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	prepareTempConfigDir(t)

	out, err := execute(t, NewVersionCommand())
	require.NoError(t, err)
	require.Contains(t, out, "datagate version")
	require.Contains(t, out, "commit id")
}

func TestVersionCommandRejectsArgs(t *testing.T) {
	prepareTempConfigDir(t)

	_, err := execute(t, NewVersionCommand(), "extra")
	require.Error(t, err)
}

func TestEnvName(t *testing.T) {
	require.Equal(t, "DATAGATE_DATASTORE_URI", envName("datastore-uri"))
	require.Equal(t, "DATAGATE_RUN_CACHE_TTL", envName("run-cache-ttl"))
}
