package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Device   DeviceConfig   `mapstructure:"device"`
	Control  ControlConfig  `mapstructure:"control"`
	Poll     PollConfig     `mapstructure:"poll"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Events   EventsConfig   `mapstructure:"events"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SimulateEnable bool          `mapstructure:"simulate_enable"`
	SimulateConfig string        `mapstructure:"simulate_config"`
}

// DeviceConfig 被管交换机配置
type DeviceConfig struct {
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Protocol string `mapstructure:"protocol"` // telnet | ssh
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Keyring 密码为空时从系统钥匙串读取
	Keyring KeyringConfig `mapstructure:"keyring"`

	UserPrompt      string            `mapstructure:"user_prompt"`
	PasswordPrompt  string            `mapstructure:"password_prompt"`
	LoginSuccess    string            `mapstructure:"login_success"`
	EscalateCommand string            `mapstructure:"escalate_command"`
	EscalatedSuffix string            `mapstructure:"escalated_suffix"`
	PageAdvance     string            `mapstructure:"page_advance"`
	Terminators     TerminatorsConfig `mapstructure:"terminators"`
	Charset         string            `mapstructure:"charset"`

	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	ControlTimeout    time.Duration `mapstructure:"control_timeout"`
	StatisticsTimeout time.Duration `mapstructure:"statistics_timeout"`
	// Settle 匹配到终止符后的静默窗口
	Settle    time.Duration `mapstructure:"settle"`
	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

// KeyringConfig 系统钥匙串定位
type KeyringConfig struct {
	Service string `mapstructure:"service"`
	User    string `mapstructure:"user"`
}

// TerminatorsConfig 终止符覆盖，留空使用内置集合
type TerminatorsConfig struct {
	Success []string `mapstructure:"success"`
	Error   []string `mapstructure:"error"`
}

// ControlConfig 控制状态机配置
type ControlConfig struct {
	Cooldown          time.Duration `mapstructure:"cooldown"`
	ReloadRecovery    time.Duration `mapstructure:"reload_recovery"`
	ReloadGracePeriod time.Duration `mapstructure:"reload_grace_period"`
}

// PollConfig 定时轮询配置
type PollConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Path            string        `mapstructure:"path"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig 原始回显归档配置
type StorageConfig struct {
	// Backend none | local | minio
	Backend string             `mapstructure:"backend"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
	Minio   MinioConfig        `mapstructure:"minio"`
}

// LocalStorageConfig 本地存储配置
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// EventsConfig 事件发布配置
type EventsConfig struct {
	NATS NATSConfig `mapstructure:"nats"`
}

// NATSConfig NATS 连接配置
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// AuthConfig 控制接口鉴权
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

var globalConfig *Config

// Load 加载配置文件；configPath 为空时按默认目录查找
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("SWITCHCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = replaceEnvVars(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &config
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.simulate_enable", false)
	v.SetDefault("server.simulate_config", "simulate/simulate.yaml")

	v.SetDefault("device.name", "switch")
	v.SetDefault("device.protocol", "telnet")
	v.SetDefault("device.user_prompt", "User:")
	v.SetDefault("device.password_prompt", "Password:")
	v.SetDefault("device.login_success", ">")
	v.SetDefault("device.escalate_command", "en")
	v.SetDefault("device.escalated_suffix", "#")
	v.SetDefault("device.page_advance", "-")
	v.SetDefault("device.charset", "auto")
	v.SetDefault("device.dial_timeout", 5*time.Second)
	v.SetDefault("device.control_timeout", 3*time.Second)
	v.SetDefault("device.statistics_timeout", 30*time.Second)
	v.SetDefault("device.settle", 100*time.Millisecond)

	v.SetDefault("control.cooldown", 3*time.Second)
	v.SetDefault("control.reload_recovery", 3*time.Minute)
	v.SetDefault("control.reload_grace_period", 3*time.Minute)

	v.SetDefault("poll.enabled", true)
	v.SetDefault("poll.interval", 60*time.Second)

	v.SetDefault("database.sqlite.enabled", true)
	v.SetDefault("database.sqlite.path", "./data/switchctl.db")
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "captures")
	v.SetDefault("storage.local.base_dir", "./data/captures")
	v.SetDefault("storage.minio.bucket", "switchctl")

	v.SetDefault("events.nats.enabled", false)
	v.SetDefault("events.nats.subject_prefix", "switchctl")

	v.SetDefault("auth.issuer", "switchctl")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/switchctl.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// Validate 检查必填项
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Device.Host) == "" {
		return fmt.Errorf("device.host is required")
	}
	switch c.Device.Protocol {
	case "telnet", "ssh":
	default:
		return fmt.Errorf("unsupported device.protocol %q", c.Device.Protocol)
	}
	switch c.Storage.Backend {
	case "", "none", "local", "minio":
	default:
		return fmt.Errorf("unsupported storage.backend %q", c.Storage.Backend)
	}
	if c.Poll.Enabled && c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	return nil
}

// replaceEnvVars 替换 ${VAR} 形式的敏感配置
func replaceEnvVars(config Config) Config {
	config.Device.Password = expandEnv(config.Device.Password)
	config.Auth.JWTSecret = expandEnv(config.Auth.JWTSecret)
	config.Storage.Minio.SecretKey = expandEnv(config.Storage.Minio.SecretKey)
	return config
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
	}
	return s
}

// ResolvePassword 返回设备密码；配置为空时查询系统钥匙串
func (d DeviceConfig) ResolvePassword() (string, error) {
	if d.Password != "" || d.Keyring.Service == "" {
		return d.Password, nil
	}
	user := d.Keyring.User
	if user == "" {
		user = d.Username
	}
	secret, err := keyring.Get(d.Keyring.Service, user)
	if err != nil {
		return "", fmt.Errorf("failed to read password from keyring %s/%s: %w", d.Keyring.Service, user, err)
	}
	return secret, nil
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
