package configutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/titanous/json5"
)

type sample struct {
	Name    string `json:"name"`
	Retries int    `json:"retries"`
	Nested  struct {
		Url string `json:"url"`
	} `json:"nested"`
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// comments are allowed
		name: "base",
		retries: 3,
		nested: { url: "https://example.com" },
	}`), 0600)
	require.Nil(t, err)
	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{ retries: 5 }`), 0600)
	require.Nil(t, err)

	cfg, err := ReadConfig[sample](filepath.Join(dir, "config.json5"))
	require.Nil(t, err)
	require.Equal(t, "base", cfg.Name)
	require.Equal(t, 5, cfg.Retries)
	require.Equal(t, "https://example.com", cfg.Nested.Url)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[sample](filepath.Join(t.TempDir(), "nothing.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadConfigLocalOnly(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{ name: "local" }`), 0600)
	require.Nil(t, err)

	cfg, err := ReadConfig[sample](filepath.Join(dir, "config.json5"))
	require.Nil(t, err)
	require.Equal(t, "local", cfg.Name)
}

func TestReadConfigParseError(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{ name: `), 0600)
	require.Nil(t, err)

	_, err = ReadConfig[sample](filepath.Join(dir, "config.json5"))
	require.NotNil(t, err)
	require.False(t, os.IsNotExist(err))
	require.Contains(t, err.Error(), "config.json5")
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.Nil(t, os.MkdirAll(nested, 0700))
	err := os.WriteFile(filepath.Join(root, "telemetry.json5"), []byte(`{ name: "found" }`), 0600)
	require.Nil(t, err)
	wd, err := os.Getwd()
	require.Nil(t, err)
	require.Nil(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := ReadRecursively[sample]("telemetry.json5")
	require.Nil(t, err)
	require.Equal(t, "found", cfg.Name)

	_, err = ReadRecursively[sample]("definitely-absent.json5")
	require.True(t, os.IsNotExist(err))
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("FISCONFORME_CONFIG", "")
	require.Equal(t, "config.json5", PathFromEnv("FISCONFORME_CONFIG", "config.json5"))
	t.Setenv("FISCONFORME_CONFIG", "/etc/fisconforme/config.json5")
	require.Equal(t, "/etc/fisconforme/config.json5", PathFromEnv("FISCONFORME_CONFIG", "config.json5"))
}

func TestEnvPrefix(t *testing.T) {
	t.Setenv("FISCONFORME_TEST_SECRET", "abc")
	env := NewEnv("fisconforme")
	require.Equal(t, "abc", env.String("test_secret", ""))
	require.Equal(t, "fallback", env.String("missing_secret", "fallback"))
}

func TestDuration(t *testing.T) {
	var out struct {
		Backoff Duration `json:"backoff"`
		Timeout Duration `json:"timeout"`
		Unset   Duration `json:"unset"`
	}
	err := json5.Unmarshal([]byte(`{backoff: "1.5s", timeout: 250, unset: null}`), &out)
	require.Nil(t, err)
	require.Equal(t, 1500*time.Millisecond, out.Backoff.Std())
	require.Equal(t, 250*time.Millisecond, out.Timeout.Std())
	require.Equal(t, time.Duration(0), out.Unset.Std())

	encoded, err := Duration(2 * time.Second).MarshalJSON()
	require.Nil(t, err)
	require.Equal(t, `"2s"`, string(encoded))

	require.NotNil(t, json5.Unmarshal([]byte(`{backoff: "soon"}`), &out))
}
