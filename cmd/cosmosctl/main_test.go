package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/polisai/cosmosclient/pkg/emulator"
)

const testConnectionString = "AccountEndpoint=https://localhost:8081/;AccountKey=" + emulator.WellKnownKey + ";"

var cosmosEnv = []string{
	"COSMOS_ENDPOINT", "COSMOS_KEY", "COSMOS_CONNECTION_STRING",
	"COSMOS_CONNECTION_MODE", "COSMOS_REQUEST_TIMEOUT", "COSMOS_GATEWAY_MAX_CONNECTIONS",
	"COSMOS_APPLICATION_REGION", "COSMOS_APPLICATION_NAME", "COSMOS_API_TYPE",
	"COSMOS_MAX_RETRY_ATTEMPTS", "COSMOS_MAX_RETRY_WAIT",
	"COSMOS_LOG_LEVEL", "COSMOS_OTLP_ENDPOINT", "COSMOS_OTLP_INSECURE",
}

// unsetEnv removes the COSMOS_* variables for the duration of the test.
func unsetEnv(t *testing.T) {
	t.Helper()
	for _, name := range cosmosEnv {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestResolve_JSON(t *testing.T) {
	unsetEnv(t)

	out, err := execute(t, "resolve",
		"--connection-string", testConnectionString,
		"--mode", "gateway",
		"--max-connections", "9001",
		"--region", "West Central US",
		"--app-name", "testSuffix",
		"--max-retry-wait", "6h",
		"-o", "json",
	)
	require.NoError(t, err)

	var view policyView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "https://localhost:8081/", view.Endpoint)
	assert.Equal(t, "Gateway", view.ConnectionMode)
	assert.Equal(t, "Https", view.Protocol)
	assert.Equal(t, 9001, view.MaxConnectionLimit)
	assert.Equal(t, []string{"West Central US"}, view.PreferredLocations)
	assert.True(t, view.UseMultipleWriteLocations)
	assert.True(t, strings.HasSuffix(view.UserAgentSuffix, "testSuffix"))
	assert.Equal(t, 21600, view.MaxRetryWaitTimeInSeconds)
	assert.NotContains(t, out, emulator.WellKnownKey)
}

func TestResolve_YAMLFromConfigFile(t *testing.T) {
	unsetEnv(t)

	path := filepath.Join(t.TempDir(), "cosmos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account:
  endpoint: "https://localhost:8081/"
  key: "secret=="
application:
  region: "East US"
`), 0o600))

	out, err := execute(t, "--config", path, "resolve")
	require.NoError(t, err)

	var view policyView
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, "Direct", view.ConnectionMode)
	assert.Equal(t, "Tcp", view.Protocol)
	assert.Equal(t, []string{"East US"}, view.PreferredLocations)
	assert.Equal(t, 9, view.MaxRetryAttemptsOnThrottledRequests)
}

func TestResolve_FlagsOverrideOnlyWhatTheySet(t *testing.T) {
	unsetEnv(t)

	path := filepath.Join(t.TempDir(), "cosmos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account:
  endpoint: "https://localhost:8081/"
  key: "secret=="
connection:
  mode: gateway
  gateway_max_connection_limit: 20
retry:
  max_attempts: 3
`), 0o600))

	out, err := execute(t, "--config", path, "resolve", "--max-connections", "100", "--max-retry-wait", "10s", "-o", "json")
	require.NoError(t, err)

	var view policyView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "Gateway", view.ConnectionMode)
	assert.Equal(t, 100, view.MaxConnectionLimit)
	assert.Equal(t, 3, view.MaxRetryAttemptsOnThrottledRequests)
	assert.Equal(t, 10, view.MaxRetryWaitTimeInSeconds)

	out, err = execute(t, "--config", path, "resolve", "--max-retry-attempts", "5", "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "Gateway", view.ConnectionMode)
	assert.Equal(t, 20, view.MaxConnectionLimit)
	assert.Equal(t, 5, view.MaxRetryAttemptsOnThrottledRequests)
	assert.Equal(t, 30, view.MaxRetryWaitTimeInSeconds)
}

func TestResolve_EnvFile(t *testing.T) {
	unsetEnv(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("COSMOS_CONNECTION_STRING="+testConnectionString+"\n"), 0o600))

	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", envFile, "resolve", "-o", "json"})
	require.NoError(t, cmd.Execute())

	var view policyView
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &view))
	assert.Equal(t, "https://localhost:8081/", view.Endpoint)
}

func TestResolve_Errors(t *testing.T) {
	unsetEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no account", args: []string{"resolve"}, want: "Endpoint"},
		{name: "bad output", args: []string{"resolve", "--connection-string", testConnectionString, "-o", "xml"}, want: "unsupported output format"},
		{name: "bad mode", args: []string{"resolve", "--connection-string", testConnectionString, "--mode", "carrier-pigeon"}, want: "ConnectionMode"},
		{name: "bad gateway limit", args: []string{"resolve", "--connection-string", testConnectionString, "--mode", "gateway", "--max-connections", "0"}, want: "GatewayModeMaxConnectionLimit"},
		{name: "malformed connection string", args: []string{"resolve", "--connection-string", "garbage"}, want: "ConnectionString"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestUsersDemo(t *testing.T) {
	unsetEnv(t)

	out, err := execute(t, "users", "demo", "--throttle", "2")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"create database demo: 201",
		"create user demo-user: 201",
		"replace user demo-user -> demo-user-renamed: 200",
		"read user demo-user-renamed: 200",
		"delete user demo-user-renamed: 204",
		"requests sent: 7",
	}, strings.Split(strings.TrimSpace(out), "\n"))
}

func TestWatch_RequiresConfig(t *testing.T) {
	unsetEnv(t)

	_, err := execute(t, "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--config")
}

func TestVersion(t *testing.T) {
	unsetEnv(t)

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cosmos-go-sdk/1.0.0|"), out)
}

func TestUsersDemo_RequestRate(t *testing.T) {
	unsetEnv(t)

	out, err := execute(t, "users", "demo", "--request-rate", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "delete user demo-user-renamed: 204")
}
