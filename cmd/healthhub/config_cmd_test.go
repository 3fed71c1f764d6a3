// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runConfig(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"config"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "healthhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigSchema(t *testing.T) {
	out, err := runConfig(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"database"`)
	assert.Contains(t, out, `"session"`)
}

func TestConfigValidate_Valid(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: memory\nlog:\n  format: text\n")

	out, err := runConfig(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestConfigValidate_SchemaViolation(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: oracle\n")

	_, err := runConfig(t, "validate", path)
	require.Error(t, err)
}

func TestConfigValidate_SemanticViolation(t *testing.T) {
	// Schema-valid but postgres without a URL.
	t.Setenv("DATABASE_URL", "")
	path := writeConfig(t, "database:\n  driver: postgres\n")

	_, err := runConfig(t, "validate", path)
	require.Error(t, err)
}

func TestConfigValidate_MissingFile(t *testing.T) {
	_, err := runConfig(t, "validate", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	path := writeConfig(t, "database:\n  driver: postgres\n  url: postgres://hh:hunter2@db/hh\nredis:\n  password: sesame\n")

	out, err := runConfig(t, "show", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "sesame")

	var shown map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "postgres://hh:REDACTED@db/hh", shown["database"]["url"])
	assert.Equal(t, "24h0m0s", shown["session"]["ttl"])
}
