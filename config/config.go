// Package config loads the layered TRMS configuration from a per-environment
// YAML file and then applies environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/padraicbc/trms/paths"
)

// EnvName selects the environment file when Load is called with an empty name.
const EnvName = "TRMS_ENV"

// DefaultEnvironment is used when neither an argument nor TRMS_ENV is given.
const DefaultEnvironment = "development"

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// envOverrides maps configuration keys to the environment variables that
// override them.
var envOverrides = map[string]string{
	"database.local_host": "DB_HOST",
	"database.cloud_host": "CLOUD_DB_HOST",
	"database.password":   "DB_PASSWORD",
	"database.use_cloud":  "USE_CLOUD_DB",
	"web.jwt_secret":      "JWT_SECRET",
}

// dockerEnvFile exists inside Docker containers.
var dockerEnvFile = "/.dockerenv"

// Config holds all application configuration.
type Config struct {
	Environment string   `mapstructure:"environment" yaml:"environment"`
	Version     string   `mapstructure:"version" yaml:"version"`
	Database    Database `mapstructure:"database" yaml:"database"`
	Web         Web      `mapstructure:"web" yaml:"web"`
	Docker      Docker   `mapstructure:"docker" yaml:"docker"`
	Logging     Logging  `mapstructure:"logging" yaml:"logging"`

	paths paths.Paths
}

// Database describes the local and cloud endpoints and the failover switches.
type Database struct {
	Driver string `mapstructure:"driver" yaml:"driver"`

	LocalHost string `mapstructure:"local_host" yaml:"local_host"`
	LocalPort int    `mapstructure:"local_port" yaml:"local_port"`

	CloudHost string `mapstructure:"cloud_host" yaml:"cloud_host"`
	CloudPort int    `mapstructure:"cloud_port" yaml:"cloud_port"`

	Database string `mapstructure:"database" yaml:"database"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	// SSLMode only applies to the postgres driver.
	SSLMode string `mapstructure:"ssl_mode" yaml:"ssl_mode"`

	UseCloud     bool `mapstructure:"use_cloud" yaml:"use_cloud"`
	AutoFailover bool `mapstructure:"auto_failover" yaml:"auto_failover"`
}

// Web holds the bind address of the web API.
type Web struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	Debug      bool   `mapstructure:"debug" yaml:"debug"`
	DockerHost string `mapstructure:"docker_host" yaml:"docker_host"`
	DockerPort int    `mapstructure:"docker_port" yaml:"docker_port"`
	TersAPIURL string `mapstructure:"ters_api_url" yaml:"ters_api_url"`
	JWTSecret  string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// Docker names the compose services used by deployments.
type Docker struct {
	ComposeFile  string `mapstructure:"compose_file" yaml:"compose_file"`
	NetworkName  string `mapstructure:"network_name" yaml:"network_name"`
	DBService    string `mapstructure:"db_service" yaml:"db_service"`
	WebService   string `mapstructure:"web_service" yaml:"web_service"`
	NginxService string `mapstructure:"nginx_service" yaml:"nginx_service"`
	UseVolumes   bool   `mapstructure:"use_volumes" yaml:"use_volumes"`
}

// Logging selects the zap level and encoding.
type Logging struct {
	Level    string `mapstructure:"level" yaml:"level"`
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
}

// Load reads <base>/config/<env>.yaml (if present) on top of the defaults and
// then applies the DB_HOST, CLOUD_DB_HOST, DB_PASSWORD and USE_CLOUD_DB
// overrides. An empty env falls back to $TRMS_ENV, then "development".
func Load(p paths.Paths, env string) (*Config, error) {
	if env == "" {
		env = os.Getenv(EnvName)
	}
	if env == "" {
		env = DefaultEnvironment
	}

	v := newViper()
	setDefaults(v, env)

	file := p.ConfigFile(env)
	if _, err := os.Stat(file); err == nil {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: stat %s: %w", file, err)
	}

	// USE_CLOUD_DB switches the cloud on only when it spells "true"
	v.Set("database.use_cloud", strings.EqualFold(strings.TrimSpace(v.GetString("database.use_cloud")), "true"))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", file, err)
	}
	cfg.Environment = env
	cfg.paths = p

	cfg.applyDocker()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Reload re-reads the file of the loaded environment.
func (c *Config) Reload() (*Config, error) {
	return Load(c.paths, c.Environment)
}

// Save writes the configuration to the file of env, or of the loaded
// environment when env is empty.
func (c *Config) Save(env string) error {
	if env == "" {
		env = c.Environment
	}
	file := c.paths.ConfigFile(env)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", filepath.Dir(file), err)
	}

	out := *c
	out.Environment = env
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(file, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", file, err)
	}
	return nil
}

// Paths returns the directories the configuration was resolved against.
func (c *Config) Paths() paths.Paths {
	return c.paths
}

// ActiveHost is the host a connection would target given UseCloud.
func (d Database) ActiveHost() string {
	if d.UseCloud && d.CloudHost != "" {
		return d.CloudHost
	}
	return d.LocalHost
}

// Addr returns the host:port the web API listens on.
func (w Web) Addr() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
}

// JWTKey returns the JWT signing key as a byte slice.
func (w Web) JWTKey() []byte {
	return []byte(w.JWTSecret)
}

// applyDocker points the local host at the database service when running in
// a container, where "localhost" is the container itself.
func (c *Config) applyDocker() {
	if c.Database.LocalHost == "localhost" && inDocker() && c.Docker.DBService != "" {
		c.Database.LocalHost = c.Docker.DBService
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.LocalHost == "" {
		return errors.New("config: database.local_host must be set")
	}
	if c.Database.LocalPort <= 0 || c.Database.CloudPort <= 0 {
		return errors.New("config: database ports must be positive")
	}
	if c.Database.Database == "" {
		return errors.New("config: database.database must be set")
	}
	return nil
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("environment", env)
	v.SetDefault("version", "1.0.0")

	v.SetDefault("database.driver", DriverMySQL)
	v.SetDefault("database.local_host", "localhost")
	v.SetDefault("database.local_port", 3306)
	v.SetDefault("database.cloud_host", "")
	v.SetDefault("database.cloud_port", 3306)
	v.SetDefault("database.database", "trms_db")
	v.SetDefault("database.user", "trms")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.use_cloud", false)
	v.SetDefault("database.auto_failover", true)

	v.SetDefault("web.host", "0.0.0.0")
	v.SetDefault("web.port", 8000)
	v.SetDefault("web.debug", false)
	v.SetDefault("web.docker_host", "trws-web")
	v.SetDefault("web.docker_port", 8000)
	v.SetDefault("web.ters_api_url", "/api/ters")
	v.SetDefault("web.jwt_secret", "")

	v.SetDefault("docker.compose_file", "docker-compose.yml")
	v.SetDefault("docker.network_name", "trms-network")
	v.SetDefault("docker.db_service", "trms-db")
	v.SetDefault("docker.web_service", "trms-web")
	v.SetDefault("docker.nginx_service", "trms-nginx")
	v.SetDefault("docker.use_volumes", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")
}

func newViper() *viper.Viper {
	// Silently load .env – OK if the file doesn't exist (production uses real env vars).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Println("config: could not read .env:", err)
	}

	v := viper.New()
	for key, name := range envOverrides {
		if err := v.BindEnv(key, name); err != nil {
			log.Printf("config: bind %s: %v", name, err)
		}
	}
	return v
}

func inDocker() bool {
	_, err := os.Stat(dockerEnvFile)
	return err == nil
}
