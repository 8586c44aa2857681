package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentalpipeline/basiccleaning/internal/config"
)

const sampleCSV = `id,name,price,minimum_nights,last_review,longitude,latitude
2539,Clean & quiet apt home by the park,149,1,2018-10-19,-73.97237,40.64749
2595,Skylit Midtown Castle,225,1,2019-05-21,-73.98377,40.75362
3647,THE VILLAGE OF HARLEM,150,3,,-73.94190,40.80902
3831,Cozy Entire Floor of Brownstone,89,1,2019-07-05,-73.95976,40.68514
5022,Entire Apt: Spacious Studio,80,10,2018-11-19,-73.94399,40.79851
5099,Large Cozy 1 BR Apartment,200,3,not-a-date,-73.96000,40.74767
5121,BlissArtsSpace!,60,45,2017-10-05,-73.95596,40.68688
5178,Large Furnished Room Near B'way,10000,2,2019-06-24,-73.98493,40.76489
5203,Cozy Clean Guest Room,79,2,2017-07-21,-75.00000,40.80178
5238,Cute & Cozy Lower East Side,NaN,1,2019-06-09,-73.99037,40.71344
`

// workspace points the settings at a temp directory and returns it.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	settings := fmt.Sprintf(`project: test
workDir: %[1]s/work
store:
  backend: local
  root: %[1]s/blobs
  registry: %[1]s/registry.db
  cacheDir: %[1]s/cache
log:
  level: error
  format: json
durability:
  timeout: 5s
  pollInterval: 10ms
`, filepath.ToSlash(dir))
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(settings), 0o600))
	t.Setenv(config.EnvConfigPath, path)
	return dir
}

// runCLI runs the CLI in-process and returns stdout, stderr, and exit code
func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	exitCode = execute(context.Background(), args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), exitCode
}

func stageArgs(input, outputType string) []string {
	return []string{
		"--input_artifact", input,
		"--output_artifact", "clean_sample.csv",
		"--output_type", outputType,
		"--output_description", "Data with outliers and null values removed",
		"--min_price", "10",
		"--max_price", "350",
	}
}

func seed(t *testing.T, dir string) {
	t.Helper()
	raw := filepath.Join(dir, "sample.csv")
	require.NoError(t, os.WriteFile(raw, []byte(sampleCSV), 0o600))
	stdout, stderr, code := runCLI(t, "artifact", "put", "sample.csv", raw, "--description", "Raw listings")
	require.Equal(t, ExitSuccess, code, "artifact put stderr: %s", stderr)
	assert.Contains(t, stdout, "sample.csv:v1")
}

func assertNoRegistry(t *testing.T, dir string) {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, "registry.db"))
	assert.True(t, os.IsNotExist(err), "store was opened before arguments were validated")
}

func TestCLI_Version(t *testing.T) {
	stdout, _, code := runCLI(t, "version")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Version: dev")
}

func TestCLI_Help(t *testing.T) {
	stdout, _, code := runCLI(t, "--help")
	require.Equal(t, ExitSuccess, code)
	for _, want := range []string{"basic-cleaning", "--input_artifact", "--max_price", "artifact", "version"} {
		assert.Contains(t, stdout, want)
	}
}

func TestCLI_MissingFlag(t *testing.T) {
	dir := workspace(t)
	args := stageArgs("sample.csv:latest", "clean_sample")
	_, stderr, code := runCLI(t, args[:len(args)-2]...)
	require.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "max_price")
	assertNoRegistry(t, dir)
}

func TestCLI_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"empty output type", stageArgs("sample.csv:latest", ""), "output_type"},
		{"bad version", stageArgs("sample.csv:v0", "clean_sample"), "input_artifact"},
		{"non-numeric price", append(stageArgs("sample.csv:latest", "clean_sample"), "--min_price", "cheap"), "min_price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := workspace(t)
			_, stderr, code := runCLI(t, tt.args...)
			require.Equal(t, ExitFailure, code)
			assert.Contains(t, stderr, tt.want)
			assertNoRegistry(t, dir)
		})
	}
}

func TestCLI_CleanAndPublish(t *testing.T) {
	dir := workspace(t)
	seed(t, dir)

	stdout, stderr, code := runCLI(t, stageArgs("sample.csv:latest", "clean_sample")...)
	require.Equal(t, ExitSuccess, code, "stderr: %s", stderr)
	for _, want := range []string{"Cleaning run completed", "Records in: 10", "Records out: 7", "Artifact: clean_sample.csv:v1"} {
		assert.Contains(t, stdout, want)
	}

	stdout, stderr, code = runCLI(t, "artifact", "show", "clean_sample.csv")
	require.Equal(t, ExitSuccess, code, "artifact show stderr: %s", stderr)
	for _, want := range []string{"clean_sample.csv:v1", "Type: clean_sample", "File: clean.csv"} {
		assert.Contains(t, stdout, want)
	}

	written, err := os.ReadFile(filepath.Join(dir, "work", "clean.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(written)), "\n")
	// Header plus the seven rows within price and coordinates bounds.
	require.Len(t, lines, 8, "clean.csv:\n%s", written)
	assert.Equal(t, "id,name,price,minimum_nights,last_review,longitude,latitude", lines[0])
	for _, dropped := range []string{"5178", "5203", "5238"} {
		assert.NotContains(t, string(written), dropped+",", "row %s should have been dropped", dropped)
	}
	assert.Contains(t, string(written), "5099,Large Cozy 1 BR Apartment,200,3,,", "unparsable last_review was not cleared")

	// A second run creates a new version of the same data.
	_, stderr, code = runCLI(t, stageArgs("sample.csv:v1", "clean_sample")...)
	require.Equal(t, ExitSuccess, code, "second run stderr: %s", stderr)
	stdout, _, _ = runCLI(t, "artifact", "show", "clean_sample.csv:latest")
	assert.Contains(t, stdout, "clean_sample.csv:v2")
}

func TestCLI_QuietRunPrintsNothing(t *testing.T) {
	dir := workspace(t)
	seed(t, dir)

	stdout, stderr, code := runCLI(t, append(stageArgs("sample.csv:latest", "clean_sample"), "--quiet")...)
	require.Equal(t, ExitSuccess, code, "stderr: %s", stderr)
	assert.Empty(t, stdout)
}

func TestCLI_MissingInputArtifact(t *testing.T) {
	workspace(t)

	_, stderr, code := runCLI(t, stageArgs("nothing.csv:latest", "clean_sample")...)
	require.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "Cleaning run failed")
	assert.Contains(t, stderr, "Module: input")
	assert.Contains(t, stderr, "nothing.csv:latest")

	_, stderr, code = runCLI(t, "artifact", "show", "clean_sample.csv")
	require.Equal(t, ExitFailure, code, "output artifact exists after failed run")
	assert.Contains(t, stderr, "not found")
}

func TestCLI_ConfigCheck(t *testing.T) {
	fixture := func(name string) string {
		return filepath.Join("..", "..", "internal", "config", "testdata", name)
	}

	t.Run("valid", func(t *testing.T) {
		path := fixture("valid-settings.yaml")
		stdout, stderr, code := runCLI(t, "config", "check", path)
		require.Equal(t, ExitSuccess, code, "stderr: %s", stderr)
		assert.Contains(t, stdout, "Settings file is valid: "+path+" (yaml)")
		assert.Empty(t, stderr)
	})

	t.Run("schema violation", func(t *testing.T) {
		path := fixture("invalid-backend.yaml")
		stdout, stderr, code := runCLI(t, "config", "check", path)
		require.Equal(t, ExitFailure, code)
		assert.Empty(t, stdout)
		assert.Contains(t, stderr, "does not match the settings schema")
		assert.Contains(t, stderr, "/store/backend:")
		assert.Contains(t, stderr, "--verbose")
	})

	t.Run("schema violation verbose", func(t *testing.T) {
		_, stderr, code := runCLI(t, "config", "check", "--verbose", fixture("invalid-backend.yaml"))
		require.Equal(t, ExitFailure, code)
		assert.Contains(t, stderr, "/store/backend:")
		assert.Contains(t, stderr, "kind: ")
		assert.NotContains(t, stderr, "Re-run with --verbose")
	})

	t.Run("syntax error", func(t *testing.T) {
		path := fixture("invalid-yaml.yaml")
		_, stderr, code := runCLI(t, "config", "check", path)
		require.Equal(t, ExitFailure, code)
		assert.Contains(t, stderr, "could not be parsed")
		assert.Contains(t, stderr, path+":")
	})
}
