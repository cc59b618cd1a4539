package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv  string `mapstructure:"APP_ENV"`
	AppName string `mapstructure:"APP_NAME"`
	NodeID  int64  `mapstructure:"NODE_ID"`
	TLS     struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		DSN            string `mapstructure:"DSN"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	SSH     SSHConfig     `mapstructure:"SSH"`
	Cluster ClusterConfig `mapstructure:"CLUSTER"`
	Local   struct {
		ArtifactDirectory string `mapstructure:"ARTIFACT_DIRECTORY"`
		UploadDirectory   string `mapstructure:"UPLOAD_DIRECTORY"`
	} `mapstructure:"LOCAL"`
	Mail struct {
		Host     string `mapstructure:"HOST"`
		Port     int    `mapstructure:"PORT"`
		Username string `mapstructure:"USERNAME"`
		Password string `mapstructure:"PASSWORD"`
		From     string `mapstructure:"FROM"`
		Operator string `mapstructure:"OPERATOR"`
		SiteURL  string `mapstructure:"SITE_URL"`
	} `mapstructure:"MAIL"`
	Updater struct {
		Schedule        string        `mapstructure:"SCHEDULE"`
		CleanupSchedule string        `mapstructure:"CLEANUP_SCHEDULE"`
		KeepDays        int           `mapstructure:"KEEP_DAYS"`
		LeaseTTL        time.Duration `mapstructure:"LEASE_TTL"`
	} `mapstructure:"UPDATER"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
}

// SSHConfig describes how to reach the cluster front node.
type SSHConfig struct {
	Host           string        `mapstructure:"HOST"`
	Port           int           `mapstructure:"PORT"`
	Username       string        `mapstructure:"USERNAME"`
	Password       string        `mapstructure:"PASSWORD"`
	IdentityFile   string        `mapstructure:"IDENTITY_FILE"`
	KnownHostsFile string        `mapstructure:"KNOWN_HOSTS_FILE"`
	Timeout        time.Duration `mapstructure:"TIMEOUT"`
}

// ClusterConfig locates the ContaMiner installation on the cluster.
type ClusterConfig struct {
	ContaminerLocation string `mapstructure:"CONTAMINER_LOCATION"`
	WorkDirectory      string `mapstructure:"WORK_DIRECTORY"`
}

// LoadConfig reads config.yaml from the working directory or /etc/contaminer
// and overlays environment variables (SSH.HOST -> SSH_HOST).
func LoadConfig() (*Config, error) {
	return Load(viper.New(), ".", "/etc/contaminer")
}

// Load reads the configuration with v. A missing config file is not an error,
// environment variables and defaults are enough to run.
func Load(v *viper.Viper, paths ...string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "contaminer")
	v.SetDefault("NODE_ID", 1)

	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "sqlite")
	v.SetDefault("DATABASE.DSN", "contaminer.db")

	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)

	v.SetDefault("SSH.PORT", 22)
	v.SetDefault("SSH.TIMEOUT", 2*time.Minute)

	v.SetDefault("LOCAL.ARTIFACT_DIRECTORY", "media")
	v.SetDefault("LOCAL.UPLOAD_DIRECTORY", "uploads")

	v.SetDefault("MAIL.PORT", 587)
	v.SetDefault("MAIL.FROM", "contaminer@localhost")

	v.SetDefault("UPDATER.SCHEDULE", "*/5 * * * *")
	v.SetDefault("UPDATER.CLEANUP_SCHEDULE", "0 3 * * *")
	v.SetDefault("UPDATER.KEEP_DAYS", 30)
	v.SetDefault("UPDATER.LEASE_TTL", 10*time.Minute)

	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("TLS.ENABLE", false)
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("MINIO.SECURE", false)

	// keys without a meaningful default still need registering so that
	// AutomaticEnv picks them up on Unmarshal
	for _, key := range []string{
		"TLS.CERT_PATH", "TLS.KEY_PATH",
		"OTEL.ADDR", "PYROSCOPE.ADDR", "REDIS.PASSWORD",
		"SSH.HOST", "SSH.USERNAME", "SSH.PASSWORD", "SSH.IDENTITY_FILE", "SSH.KNOWN_HOSTS_FILE",
		"CLUSTER.CONTAMINER_LOCATION", "CLUSTER.WORK_DIRECTORY",
		"MAIL.HOST", "MAIL.USERNAME", "MAIL.PASSWORD", "MAIL.OPERATOR", "MAIL.SITE_URL",
		"MINIO.ENDPOINT", "MINIO.ACCESS_KEY", "MINIO.SECRET_KEY", "MINIO.BUCKET_NAME",
	} {
		if !v.IsSet(key) {
			v.SetDefault(key, "")
		}
	}
}

// ValidateCluster checks the settings needed by anything that talks to the
// cluster.
func (c *Config) ValidateCluster() error {
	var missing []string
	if c.SSH.Host == "" {
		missing = append(missing, "SSH.HOST")
	}
	if c.SSH.Username == "" {
		missing = append(missing, "SSH.USERNAME")
	}
	if c.Cluster.WorkDirectory == "" {
		missing = append(missing, "CLUSTER.WORK_DIRECTORY")
	}
	if c.Cluster.ContaminerLocation == "" {
		missing = append(missing, "CLUSTER.CONTAMINER_LOCATION")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing cluster configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
