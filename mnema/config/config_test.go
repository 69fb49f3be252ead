package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	tempDir, err := os.MkdirTemp("", "mnema-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), "libsql", cfg.Core.Database.Type)
	assert.Equal(suite.T(), "local-small", cfg.Core.DefaultModel)
	assert.Equal(suite.T(), 5, cfg.Retrieval.K)
	assert.Equal(suite.T(), 4, cfg.Retrieval.OverfetchMult)
	assert.InDelta(suite.T(), 60.0, cfg.Retrieval.RRFK, 1e-9)
	assert.InDelta(suite.T(), 0.80, cfg.Context.CompressAt, 1e-9)
	assert.Equal(suite.T(), 4, cfg.Context.MinKeep)
	assert.Equal(suite.T(), 6, cfg.Context.DriftWindow)
	assert.Equal(suite.T(), "hash", cfg.Embedding.Provider)
	assert.Equal(suite.T(), 384, cfg.Embedding.Dims)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
core:
  default_model: "gpt-lite"
  database:
    dsn: "test.db"
    type: "libsql"
retrieval:
  k: 12
  lexical_index: "fts5"
context:
  compress_at: 0.75
models:
  profiles:
    gpt-lite:
      provider: "openai"
      context_window: 100000
      chars_per_token: 4.0
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configFile, []byte(configContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), "gpt-lite", cfg.Core.DefaultModel)
	assert.Equal(suite.T(), "test.db", cfg.Core.Database.DSN)
	assert.Equal(suite.T(), 12, cfg.Retrieval.K)
	assert.Equal(suite.T(), "fts5", cfg.Retrieval.LexicalIndex)
	assert.InDelta(suite.T(), 0.75, cfg.Context.CompressAt, 1e-9)

	profile, ok := cfg.Models.Profiles["gpt-lite"]
	require.True(suite.T(), ok)
	assert.Equal(suite.T(), "openai", profile.Provider)
	assert.Equal(suite.T(), 100000, profile.ContextWindow)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
core:
  default_model: "x"
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	err := os.WriteFile(configFile, []byte(malformedContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestAppConfigGlobal() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), cfg.Core.DefaultModel, AppConfig.Core.DefaultModel)
}

func TestConfigTypes(t *testing.T) {
	config := Config{}

	assert.IsType(t, CoreConfig{}, config.Core)
	assert.IsType(t, RetrievalConfig{}, config.Retrieval)
	assert.IsType(t, ContextConfig{}, config.Context)

	dbConfig := DatabaseConfig{}
	assert.IsType(t, "", dbConfig.DSN)
	assert.IsType(t, "", dbConfig.Type)
}
