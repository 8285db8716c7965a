package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Terminal TerminalConfig `mapstructure:"terminal"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	History  HistoryConfig  `mapstructure:"history"`
	Log      LogConfig      `mapstructure:"log"`
}

// DeviceConfig 设备发现配置
type DeviceConfig struct {
	Patterns    []string      `mapstructure:"patterns"`     // USB串口设备通配模式
	Probe       bool          `mapstructure:"probe"`        // 连接前探测设备是否可打开
	WaitTimeout time.Duration `mapstructure:"wait_timeout"` // 等待模式超时，0为无限等待
}

// TerminalConfig 终端会话配置
type TerminalConfig struct {
	Program     string        `mapstructure:"program"`      // 外部终端程序，"builtin"使用内置控制台
	BaudRate    int           `mapstructure:"baud_rate"`    // 波特率
	DataBits    int           `mapstructure:"data_bits"`    // 数据位（内置控制台）
	StopBits    int           `mapstructure:"stop_bits"`    // 停止位（内置控制台）
	Parity      string        `mapstructure:"parity"`       // 校验位（内置控制台）
	ReadTimeout time.Duration `mapstructure:"read_timeout"` // 内置控制台读超时
}

// BridgeConfig WebSocket桥接配置
type BridgeConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Path         string        `mapstructure:"path"`
	Secret       string        `mapstructure:"secret"`       // JWT签名密钥，空则不启用认证
	TokenExpire  time.Duration `mapstructure:"token_expire"` // 令牌有效期
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// HistoryConfig 会话历史配置
type HistoryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"` // sqlite/mysql/postgres
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	KeepDays        int           `mapstructure:"keep_days"` // 记录保留天数，0为永久保留
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("SERIAL_CONNECT")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 配置文件不存在时使用默认配置，零配置运行走默认行为
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				err = nil
			} else {
				return
			}
		}

		// 解析配置到结构体
		cfg = &Config{}
		err = v.Unmarshal(cfg)
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 设备发现默认配置
	v.SetDefault("device.patterns", []string{
		"/dev/ttyUSB*",
		"/dev/ttyACM*",
		"/dev/cu.usbserial*",
		"/dev/cu.usbmodem*",
		"/dev/tty.usbmodem*",
	})
	v.SetDefault("device.probe", false)
	v.SetDefault("device.wait_timeout", "0s")

	// 终端会话默认配置
	v.SetDefault("terminal.program", "screen")
	v.SetDefault("terminal.baud_rate", 57600)
	v.SetDefault("terminal.data_bits", 8)
	v.SetDefault("terminal.stop_bits", 1)
	v.SetDefault("terminal.parity", "N")
	v.SetDefault("terminal.read_timeout", "100ms")

	// 桥接默认配置
	v.SetDefault("bridge.host", "0.0.0.0")
	v.SetDefault("bridge.port", 8765)
	v.SetDefault("bridge.path", "/serial")
	v.SetDefault("bridge.secret", "")
	v.SetDefault("bridge.token_expire", "24h")
	v.SetDefault("bridge.write_timeout", "10s")
	v.SetDefault("bridge.ping_interval", "30s")

	// 会话历史默认配置
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.dsn", "./data/serial-connect.db")
	v.SetDefault("history.max_idle_conns", 2)
	v.SetDefault("history.max_open_conns", 4)
	v.SetDefault("history.conn_max_lifetime", "1h")
	v.SetDefault("history.log_level", "silent")
	v.SetDefault("history.keep_days", 90)

	// 日志默认配置：只写文件，保持控制终端干净
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "file")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "serial-connect.log")
	v.SetDefault("log.file.max_size", 50)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt 获取整数配置
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool 获取布尔配置
func GetBool(key string) bool {
	return v.GetBool(key)
}
