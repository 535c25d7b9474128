package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		validate func(*testing.T, *Config)
	}{
		{
			name: "empty file gets defaults",
			yaml: ``,
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, DriverEmbedded, c.Store.Driver)
				assert.Equal(t, "./data", c.Store.Path)
				assert.Equal(t, GeneratorClock, c.IDs.Generator)
				assert.Equal(t, slog.LevelInfo, c.Log.SlogLevel())
			},
		},
		{
			name: "embedded store",
			yaml: `
store:
  driver: embedded
  path: /var/lib/zoo
  no_sync: true
log:
  level: debug
`,
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "/var/lib/zoo", c.Store.Path)
				assert.True(t, c.Store.NoSync)
				assert.Equal(t, slog.LevelDebug, c.Log.SlogLevel())
			},
		},
		{
			name: "neo4j with redis ids",
			yaml: `
store:
  driver: neo4j
  neo4j:
    uri: bolt://localhost:7687
    username: neo4j
    password: secret
    database: zoo
    max_connection_pool_size: 10
    connection_timeout: 5s
ids:
  generator: redis
  redis:
    url: redis://localhost:6379/1
    key: zoo:ids
    floor: 5000
`,
			validate: func(t *testing.T, c *Config) {
				require.NotNil(t, c.Store.Neo4j)
				assert.Equal(t, DriverNeo4j, c.Store.Driver)
				assert.Empty(t, c.Store.Path)
				assert.Equal(t, "bolt://localhost:7687", c.Store.Neo4j.URI)
				assert.Equal(t, "zoo", c.Store.Neo4j.Database)
				assert.Equal(t, 10, c.Store.Neo4j.GetMaxConnectionPoolSize())
				assert.Equal(t, 5*time.Second, c.Store.Neo4j.GetConnectionTimeout())
				assert.Equal(t, 30*time.Second, c.Store.Neo4j.GetMaxTransactionRetryTime())
				require.NotNil(t, c.IDs.Redis)
				assert.Equal(t, "zoo:ids", c.IDs.Redis.Key)
				assert.Equal(t, int64(5000), c.IDs.Redis.Floor)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "graphmap.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			cfg, err := Load(path)
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "graphmap.yml"), []byte("store:\n  path: /tmp/g\n"), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/g", cfg.Store.Path)

	_, err = Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("GRAPHMAP_TEST_PASSWORD", "hunter2")

	cfg, err := Parse([]byte(`
store:
  driver: neo4j
  neo4j:
    uri: neo4j://db:7687
    password: ${GRAPHMAP_TEST_PASSWORD}
`))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Store.Neo4j.Password)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"malformed", "store: [", "failed to parse"},
		{"unknown driver", "store:\n  driver: sqlite\n", "store.driver"},
		{"neo4j without uri", "store:\n  driver: neo4j\n", "store.neo4j.uri"},
		{"unknown generator", "ids:\n  generator: uuid\n", "ids.generator"},
		{"redis without url", "ids:\n  generator: redis\n", "ids.redis.url"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Store: StoreConfig{Driver: "sqlite"},
		IDs:   IDConfig{Generator: "uuid"},
		Log:   LogConfig{Level: "info"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "ids.generator")
}

func TestNeo4jConfig_Defaults(t *testing.T) {
	var n *Neo4jConfig
	assert.Equal(t, 50, n.GetMaxConnectionPoolSize())
	assert.Equal(t, 30*time.Second, n.GetConnectionTimeout())

	n = &Neo4jConfig{ConnectionTimeout: "soon", MaxTransactionRetryTime: "-1s"}
	assert.Equal(t, 30*time.Second, n.GetConnectionTimeout())
	assert.Equal(t, 30*time.Second, n.GetMaxTransactionRetryTime())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverEmbedded, cfg.Store.Driver)
}

func TestValidate_RedisFloor(t *testing.T) {
	cfg := Default()
	cfg.IDs.Generator = GeneratorRedis
	cfg.IDs.Redis = &RedisConfig{URL: "redis://localhost:6379", Floor: -1}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ids.redis.floor")

	cfg.IDs.Redis.Floor = 0
	assert.NoError(t, cfg.Validate())
}
