package simulate

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config simulate.yaml 配置结构
type Config struct {
	Host string `mapstructure:"host"`
	// TelnetPort 0 表示随机端口
	TelnetPort int `mapstructure:"telnet_port"`
	// SSHPort 小于 0 表示不启用 SSH
	SSHPort     int           `mapstructure:"ssh_port"`
	HostKeyPath string        `mapstructure:"host_key_path"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Hostname    string        `mapstructure:"hostname"`
	PageLines   int           `mapstructure:"page_lines"`
	IdleSeconds int           `mapstructure:"idle_seconds"`
	MaxConn     int           `mapstructure:"max_conn"`
	RebootDelay time.Duration `mapstructure:"reboot_delay"`
	Fixtures    string        `mapstructure:"fixtures"`
}

// DefaultConfig 内置默认值
func DefaultConfig() Config {
	return Config{
		Host:        "127.0.0.1",
		TelnetPort:  2323,
		SSHPort:     -1,
		Username:    "admin",
		Password:    "password",
		Hostname:    "M4250",
		PageLines:   20,
		MaxConn:     4,
		RebootDelay: 30 * time.Second,
	}
}

// LoadConfig 读取 simulate/simulate.yaml
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	d := DefaultConfig()
	v.SetDefault("host", d.Host)
	v.SetDefault("telnet_port", d.TelnetPort)
	v.SetDefault("ssh_port", d.SSHPort)
	v.SetDefault("username", d.Username)
	v.SetDefault("password", d.Password)
	v.SetDefault("hostname", d.Hostname)
	v.SetDefault("page_lines", d.PageLines)
	v.SetDefault("max_conn", d.MaxConn)
	v.SetDefault("reboot_delay", d.RebootDelay)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read simulate config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulate config: %w", err)
	}
	return &cfg, nil
}

// PortFixture 端口初始状态与计数
type PortFixture struct {
	ID          string `yaml:"id"`
	Up          bool   `yaml:"up"`
	Transmitted uint64 `yaml:"tx"`
	Received    uint64 `yaml:"rx"`
}

// Fixtures 设备回显素材
type Fixtures struct {
	// Outputs 固定回显，键为命令
	Outputs map[string]string `yaml:"outputs"`
	Ports   []PortFixture     `yaml:"ports"`
	// Unsaved 启动时是否带有未保存的配置
	Unsaved bool `yaml:"unsaved"`
}

//go:embed fixtures.yaml
var defaultFixtures []byte

// DefaultFixtures 内置的 M4250 素材
func DefaultFixtures() (*Fixtures, error) {
	return ParseFixtures(defaultFixtures)
}

// LoadFixtures 读取素材文件；path 为空时使用内置素材
func LoadFixtures(path string) (*Fixtures, error) {
	if path == "" {
		return DefaultFixtures()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures 解析 YAML 素材
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	if len(f.Ports) == 0 {
		return nil, fmt.Errorf("fixtures define no ports")
	}
	return &f, nil
}
