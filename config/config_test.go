package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padraicbc/trms/paths"
)

// clearEnv unsets every variable Load looks at for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	names := []string{EnvName}
	for _, name := range envOverrides {
		names = append(names, name)
	}
	for _, k := range names {
		if old, ok := os.LookupEnv(k); ok {
			require.NoError(t, os.Unsetenv(k))
			t.Cleanup(func() { _ = os.Setenv(k, old) })
		}
	}
	dockerEnvFile = filepath.Join(t.TempDir(), "no-dockerenv")
	t.Cleanup(func() { dockerEnvFile = "/.dockerenv" })
}

func writeConfig(t *testing.T, p paths.Paths, env, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(p.ConfigDir(), 0o755))
	require.NoError(t, os.WriteFile(p.ConfigFile(env), []byte(body), 0o644))
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	p := paths.Paths{Base: t.TempDir()}

	cfg, err := Load(p, "")
	require.NoError(t, err)

	assert.Equal(t, DefaultEnvironment, cfg.Environment)
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.LocalHost)
	assert.Equal(t, 3306, cfg.Database.LocalPort)
	assert.Equal(t, "trms_db", cfg.Database.Database)
	assert.True(t, cfg.Database.AutoFailover)
	assert.False(t, cfg.Database.UseCloud)
	assert.Equal(t, "0.0.0.0:8000", cfg.Web.Addr())
	assert.Equal(t, "trms-db", cfg.Docker.DBService)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadSelectsEnvironmentFile(t *testing.T) {
	clearEnv(t)
	p := paths.Paths{Base: t.TempDir()}
	writeConfig(t, p, "production", `
database:
  local_host: db.internal
  cloud_host: cloud.example.com
  cloud_port: 3307
  use_cloud: true
  user: racer
web:
  port: 9000
logging:
  level: debug
`)
	t.Setenv(EnvName, "production")

	cfg, err := Load(p, "")
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "db.internal", cfg.Database.LocalHost)
	assert.Equal(t, "cloud.example.com", cfg.Database.CloudHost)
	assert.Equal(t, 3307, cfg.Database.CloudPort)
	assert.Equal(t, "racer", cfg.Database.User)
	assert.True(t, cfg.Database.UseCloud)
	assert.Equal(t, "cloud.example.com", cfg.Database.ActiveHost())
	assert.Equal(t, 9000, cfg.Web.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 3306, cfg.Database.LocalPort)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	p := paths.Paths{Base: t.TempDir()}
	writeConfig(t, p, "staging", `
database:
  local_host: from-file
  use_cloud: true
  cloud_host: cloud-from-file
`)
	t.Setenv("DB_HOST", "env-local")
	t.Setenv("CLOUD_DB_HOST", "env-cloud")
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("USE_CLOUD_DB", "FALSE")
	t.Setenv("JWT_SECRET", "signing-key")

	cfg, err := Load(p, "staging")
	require.NoError(t, err)

	assert.Equal(t, "env-local", cfg.Database.LocalHost)
	assert.Equal(t, "env-cloud", cfg.Database.CloudHost)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.False(t, cfg.Database.UseCloud)
	assert.Equal(t, "env-local", cfg.Database.ActiveHost())
	assert.Equal(t, []byte("signing-key"), cfg.Web.JWTKey())
}

func TestOverridesAreBoundThroughViper(t *testing.T) {
	clearEnv(t)
	for key, name := range envOverrides {
		t.Setenv(name, "from-"+name)
		assert.Equal(t, "from-"+name, newViper().GetString(key), key)
	}
}

func TestLoadUseCloudOnlyAcceptsTrue(t *testing.T) {
	clearEnv(t)
	p := paths.Paths{Base: t.TempDir()}

	t.Setenv("USE_CLOUD_DB", "True")
	cfg, err := Load(p, "")
	require.NoError(t, err)
	assert.True(t, cfg.Database.UseCloud)

	t.Setenv("USE_CLOUD_DB", "yes")
	cfg, err = Load(p, "")
	require.NoError(t, err)
	assert.False(t, cfg.Database.UseCloud)
}

func TestLoadDockerReplacesLocalhost(t *testing.T) {
	clearEnv(t)
	marker := filepath.Join(t.TempDir(), ".dockerenv")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))
	dockerEnvFile = marker

	cfg, err := Load(paths.Paths{Base: t.TempDir()}, "")
	require.NoError(t, err)
	assert.Equal(t, "trms-db", cfg.Database.LocalHost)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	clearEnv(t)
	p := paths.Paths{Base: t.TempDir()}
	writeConfig(t, p, "development", "database:\n  driver: oracle\n")

	_, err := Load(p, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	clearEnv(t)
	p := paths.Paths{Base: t.TempDir()}
	writeConfig(t, p, "development", "database: [unterminated\n")

	_, err := Load(p, "")
	require.Error(t, err)
}

func TestSaveThenReload(t *testing.T) {
	clearEnv(t)
	p := paths.Paths{Base: t.TempDir()}

	cfg, err := Load(p, "testing")
	require.NoError(t, err)

	cfg.Database.CloudHost = "saved.example.com"
	cfg.Database.UseCloud = true
	cfg.Web.Port = 8123
	require.NoError(t, cfg.Save(""))
	assert.FileExists(t, p.ConfigFile("testing"))

	reloaded, err := cfg.Reload()
	require.NoError(t, err)
	assert.Equal(t, "saved.example.com", reloaded.Database.CloudHost)
	assert.True(t, reloaded.Database.UseCloud)
	assert.Equal(t, 8123, reloaded.Web.Port)
	assert.Equal(t, p, reloaded.Paths())
}

func TestSaveUnderOtherEnvironment(t *testing.T) {
	clearEnv(t)
	p := paths.Paths{Base: t.TempDir()}

	cfg, err := Load(p, "development")
	require.NoError(t, err)
	require.NoError(t, cfg.Save("production"))

	prod, err := Load(p, "production")
	require.NoError(t, err)
	assert.Equal(t, "production", prod.Environment)
	assert.Equal(t, "development", cfg.Environment)
}
