package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "librarian.yaml")
	content := "database:\n  path: " + filepath.Join(dir, "library.db") + "\n" +
		"log:\n  level: error\n  format: text\n" +
		"worker:\n  shutdown_timeout: 5s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&cli{})
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestMigrateCommand(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "is up to date")

	// Applying twice is a no-op.
	_, err = execute(t, "--config", path, "migrate")
	require.NoError(t, err)
}

func TestTriggerCommandPrintsEnvelope(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "trigger", "overdue")
	require.NoError(t, err)
	assert.Contains(t, out, `"success": true`)
	assert.Contains(t, out, "Overdue: no recipients")
	assert.Contains(t, out, `"details": []`)

	out, err = execute(t, "--config", path, "trigger", "all")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalSent": 0`)
}

func TestTriggerCommandRejectsUnknownCategory(t *testing.T) {
	path := writeConfig(t)

	_, err := execute(t, "--config", path, "trigger", "weekly")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown trigger "weekly"`)
}

func TestPreviewCommand(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "preview")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 0`)
}

func TestLoanBorrowReportsMissingUser(t *testing.T) {
	path := writeConfig(t)

	_, err := execute(t, "--config", path, "loan", "borrow", "--user", "ghost", "--book", "b-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user")
}

func TestInvalidConfigFailsBeforeRunning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loans:\n  period_days: 0\n"), 0o600))

	_, err := execute(t, "--config", path, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loans.period_days")
}
