package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服务端配置（大厅、对局进程与文档存储共用）
type Config struct {
	Lobby   LobbyConfig   `yaml:"lobby"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Game    GameConfig    `yaml:"game"`
	Log     LogConfig     `yaml:"log"`
}

// LobbyConfig 大厅服务器配置
type LobbyConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`        // 帧协议 TCP 端口
	HTTPPort   int    `yaml:"http_port"`   // WebSocket / health / statsviz，0 表示关闭
	GameHost   string `yaml:"game_host"`   // 下发给客户端的对局服务器地址
	GameBinary string `yaml:"game_binary"` // 对局进程可执行文件
	PortMin    int    `yaml:"port_min"`
	PortMax    int    `yaml:"port_max"`

	MaxConnPerSecond int `yaml:"max_conn_per_second"` // 单 IP 每秒最大建连数
	MaxConnPerMinute int `yaml:"max_conn_per_minute"` // 单 IP 每分钟最大建连数
	BanSeconds       int `yaml:"ban_seconds"`
	MaxMsgPerSecond  int `yaml:"max_msg_per_second"` // 单连接每秒最大消息数
	StatsInterval    int `yaml:"stats_interval"`     // 状态日志间隔（秒）

	AllowedOrigins []string `yaml:"allowed_origins"` // /ws 允许的来源，"*" 表示全部
}

// StorageConfig 文档存储配置
type StorageConfig struct {
	Backend      string `yaml:"backend"` // tcp | memory | redis | mongo
	Addr         string `yaml:"addr"`    // tcp 后端地址 / docstore 监听地址
	Timeout      int    `yaml:"timeout"` // 单次请求超时（毫秒）
	SnapshotPath string `yaml:"snapshot_path"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URL         string `yaml:"url"`
	Database    string `yaml:"database"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	MinPoolSize int    `yaml:"min_pool_size"`
	MaxPoolSize int    `yaml:"max_pool_size"`
}

// GameConfig 对局配置
type GameConfig struct {
	DropMs      int `yaml:"drop_ms"`       // 重力下落间隔（毫秒）
	SnapshotMs  int `yaml:"snapshot_ms"`   // 快照广播间隔（毫秒）
	PollMs      int `yaml:"poll_ms"`       // 输入轮询间隔（毫秒）
	DurationSec int `yaml:"duration_sec"`  // 对局时长（秒）
	QueueDepth  int `yaml:"queue_depth"`   // 预览队列深度
	JoinTimeout int `yaml:"join_timeout"`  // 等待双方连入的超时（秒）
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"`
}

// DropInterval 返回重力下落间隔
func (c *GameConfig) DropInterval() time.Duration {
	return time.Duration(c.DropMs) * time.Millisecond
}

// SnapshotInterval 返回快照广播间隔
func (c *GameConfig) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotMs) * time.Millisecond
}

// PollInterval 返回输入轮询间隔
func (c *GameConfig) PollInterval() time.Duration {
	return time.Duration(c.PollMs) * time.Millisecond
}

// MatchDuration 返回对局时长
func (c *GameConfig) MatchDuration() time.Duration {
	return time.Duration(c.DurationSec) * time.Second
}

// JoinTimeoutDuration 返回等待玩家连入的超时时长
func (c *GameConfig) JoinTimeoutDuration() time.Duration {
	return time.Duration(c.JoinTimeout) * time.Second
}

// RequestTimeout 返回存储请求超时时长
func (c *StorageConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// BanDuration 返回限流封禁时长
func (c *LobbyConfig) BanDuration() time.Duration {
	return time.Duration(c.BanSeconds) * time.Second
}

// StatsIntervalDuration 返回状态日志间隔
func (c *LobbyConfig) StatsIntervalDuration() time.Duration {
	return time.Duration(c.StatsInterval) * time.Second
}

// Load 加载配置文件，path 为空时返回默认配置
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖配置文件中的值
func (c *Config) applyEnv() {
	if v := os.Getenv("LOBBY_HOST"); v != "" {
		c.Lobby.Host = v
	}
	if v, err := strconv.Atoi(os.Getenv("LOBBY_PORT")); err == nil && v > 0 {
		c.Lobby.Port = v
	}
	if v := os.Getenv("LOBBY_GAME_HOST"); v != "" {
		c.Lobby.GameHost = v
	}
	if v := os.Getenv("LOBBY_GAME_BINARY"); v != "" {
		c.Lobby.GameBinary = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("STORAGE_ADDR"); v != "" {
		c.Storage.Addr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("MONGO_URL"); v != "" {
		c.Mongo.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// applyDefaults 为零值字段设置默认值
func (c *Config) applyDefaults() {
	d := Default()

	if c.Lobby.Host == "" {
		c.Lobby.Host = d.Lobby.Host
	}
	if c.Lobby.Port == 0 {
		c.Lobby.Port = d.Lobby.Port
	}
	if c.Lobby.GameHost == "" {
		c.Lobby.GameHost = d.Lobby.GameHost
	}
	if c.Lobby.GameBinary == "" {
		c.Lobby.GameBinary = d.Lobby.GameBinary
	}
	if c.Lobby.PortMin == 0 {
		c.Lobby.PortMin = d.Lobby.PortMin
	}
	if c.Lobby.PortMax == 0 {
		c.Lobby.PortMax = d.Lobby.PortMax
	}
	if c.Lobby.MaxConnPerSecond == 0 {
		c.Lobby.MaxConnPerSecond = d.Lobby.MaxConnPerSecond
	}
	if c.Lobby.MaxConnPerMinute == 0 {
		c.Lobby.MaxConnPerMinute = d.Lobby.MaxConnPerMinute
	}
	if c.Lobby.BanSeconds == 0 {
		c.Lobby.BanSeconds = d.Lobby.BanSeconds
	}
	if c.Lobby.MaxMsgPerSecond == 0 {
		c.Lobby.MaxMsgPerSecond = d.Lobby.MaxMsgPerSecond
	}
	if c.Lobby.StatsInterval == 0 {
		c.Lobby.StatsInterval = d.Lobby.StatsInterval
	}
	if len(c.Lobby.AllowedOrigins) == 0 {
		c.Lobby.AllowedOrigins = d.Lobby.AllowedOrigins
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Addr == "" {
		c.Storage.Addr = d.Storage.Addr
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = d.Storage.Timeout
	}
	if c.Storage.SnapshotPath == "" {
		c.Storage.SnapshotPath = d.Storage.SnapshotPath
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = d.Redis.Addr
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = d.Redis.Prefix
	}
	if c.Mongo.URL == "" {
		c.Mongo.URL = d.Mongo.URL
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = d.Mongo.Database
	}

	if c.Game.DropMs == 0 {
		c.Game.DropMs = d.Game.DropMs
	}
	if c.Game.SnapshotMs == 0 {
		c.Game.SnapshotMs = d.Game.SnapshotMs
	}
	if c.Game.PollMs == 0 {
		c.Game.PollMs = d.Game.PollMs
	}
	if c.Game.DurationSec == 0 {
		c.Game.DurationSec = d.Game.DurationSec
	}
	if c.Game.QueueDepth == 0 {
		c.Game.QueueDepth = d.Game.QueueDepth
	}
	if c.Game.JoinTimeout == 0 {
		c.Game.JoinTimeout = d.Game.JoinTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Validate 检查配置的合法性
func (c *Config) Validate() error {
	if c.Lobby.PortMin <= 0 || c.Lobby.PortMax > 65535 || c.Lobby.PortMin > c.Lobby.PortMax {
		return fmt.Errorf("invalid game port range [%d, %d]", c.Lobby.PortMin, c.Lobby.PortMax)
	}
	switch c.Storage.Backend {
	case "tcp", "memory", "redis", "mongo":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Game.QueueDepth < 1 {
		return errors.New("game.queue_depth must be positive")
	}
	return nil
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Lobby: LobbyConfig{
			Host:             "0.0.0.0",
			Port:             13000,
			GameHost:         "127.0.0.1",
			GameBinary:       "gameserver",
			PortMin:          20000,
			PortMax:          30000,
			MaxConnPerSecond: 10,
			MaxConnPerMinute: 120,
			BanSeconds:       60,
			MaxMsgPerSecond:  50,
			StatsInterval:    60,
			AllowedOrigins:   []string{"*"},
		},
		Storage: StorageConfig{
			Backend:      "tcp",
			Addr:         "127.0.0.1:12000",
			Timeout:      3000,
			SnapshotPath: "db.json",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "tetris",
		},
		Mongo: MongoConfig{
			URL:      "mongodb://localhost:27017",
			Database: "tetris",
		},
		Game: GameConfig{
			DropMs:      500,
			SnapshotMs:  150,
			PollMs:      5,
			DurationSec: 90,
			QueueDepth:  5,
			JoinTimeout: 120,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
