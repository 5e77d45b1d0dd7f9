package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(Options{EnvFiles: []string{}})
	require.NoError(t, err)

	assert.Equal(t, "data/education_data_20250331.csv", cfg.Data.API)
	assert.Equal(t, "data/kess_stats_20250331.csv", cfg.Data.KESS)
	assert.Equal(t, "data/school_digital_infra.csv", cfg.Data.Infra)
	assert.Equal(t, "data/integrated_education_data.csv", cfg.Output.CSV)
	assert.Equal(t, "school_code", cfg.Key.Column)
	assert.Equal(t, []string{"schoolCode", "학교코드"}, cfg.Key.Aliases)
	assert.Equal(t, ":5006", cfg.Server.Addr)
	assert.Equal(t, 1000, cfg.LLM.MaxTokens)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "eduops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data:
  api: in/api.csv
  kess: in/kess.csv
output:
  xlsx: out/integrated.xlsx
key:
  aliases: [schoolCode, 학교코드, SCHUL_CODE]
server:
  addr: ":8080"
llm:
  temperature: 0.2
log:
  level: debug
`), 0o644))

	t.Setenv("EDUOPS_DATA_KESS", "env/kess.csv")
	t.Setenv("EDUOPS_SERVER_ORIGINS", "http://a.example http://b.example")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(Options{ConfigFile: path, EnvFiles: []string{}})
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "in/api.csv", cfg.Data.API)
	assert.Equal(t, "env/kess.csv", cfg.Data.KESS, "environment beats the file")
	assert.Equal(t, "data/school_digital_infra.csv", cfg.Data.Infra)
	assert.Equal(t, "out/integrated.xlsx", cfg.Output.XLSX)
	assert.Equal(t, []string{"schoolCode", "학교코드", "SCHUL_CODE"}, cfg.Key.Aliases)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.Origins)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml"), EnvFiles: []string{}})
	assert.ErrorContains(t, err, "read config")
}

func TestLoadEnvFile(t *testing.T) {
	isolate(t)
	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("EDUOPS_LLM_API_KEY=from-dotenv\nEDUOPS_CHARTS_YEAR=2022\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("EDUOPS_LLM_API_KEY")
		os.Unsetenv("EDUOPS_CHARTS_YEAR")
	})

	cfg, err := Load(Options{EnvFiles: []string{env}})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.APIKey)
	assert.Equal(t, "2022", cfg.Charts.Year)
}
