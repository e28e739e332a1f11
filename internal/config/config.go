package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// MailboxConfig 定义邮箱分配与过期的业务配置
type MailboxConfig struct {
	Domains    []string      // 可分配的域名列表，必填
	SessionTTL time.Duration // 邮箱会话有效期，默认 20 分钟
	MessageTTL time.Duration // 单封邮件保留时间，默认 15 分钟
}

// SMTPConfig 定义入站 SMTP 服务器的配置
type SMTPConfig struct {
	BindAddr string // SMTP 服务监听地址，格式 "host:port"，默认 ":25"
	Hostname string // HELO/EHLO 响应中使用的主机名
	MaxConns int    // 最大并发连接数，默认 100
	MaxRate  int    // 每秒最大新建连接数，默认 20
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到标准输出
}

// StoreConfig 定义记录存储后端选择
type StoreConfig struct {
	Backend       string        // "memory" 或 "redis"
	SweepInterval time.Duration // 过期清扫周期，默认 30 秒
}

// BlobConfig 定义正文对象存储后端选择
type BlobConfig struct {
	Backend string // "memory"、"filesystem" 或 "s3"
	Dir     string // filesystem 后端的根目录

	// s3 后端参数
	Region    string
	Bucket    string
	Endpoint  string // 非空时走自定义端点（MinIO 等）
	AccessKey string
	SecretKey string
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义会话令牌配置
type JWTConfig struct {
	Secret string // 签名密钥，必须至少 32 字符
	Issuer string // 签发者标识，默认 "driftmail"
}

// RateLimitConfig 定义 HTTP 限流配置
type RateLimitConfig struct {
	AllocatePerSecond float64 // 单 IP 每秒分配请求数，默认 1
	AllocateBurst     int     // 突发额度，默认 5
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig    // HTTP 服务器配置
	Mailbox   MailboxConfig   // 邮箱业务配置
	SMTP      SMTPConfig      // SMTP 服务配置
	CORS      CORSConfig      // 跨域配置
	Log       LogConfig       // 日志配置
	Store     StoreConfig     // 记录存储配置
	Blob      BlobConfig      // 正文对象存储配置
	Redis     RedisConfig     // Redis 配置
	JWT       JWTConfig       // 会话令牌配置
	RateLimit RateLimitConfig // HTTP 限流配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: DRIFTMAIL_
// 例如: DRIFTMAIL_SERVER_PORT, DRIFTMAIL_JWT_SECRET
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("driftmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("mailbox.domains", "")
	viper.SetDefault("mailbox.session_ttl", "20m")
	viper.SetDefault("mailbox.message_ttl", "15m")
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.hostname", "")
	viper.SetDefault("smtp.max_conns", 100)
	viper.SetDefault("smtp.max_rate", 20)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.sweep_interval", "30s")
	viper.SetDefault("blob.backend", "memory")
	viper.SetDefault("blob.dir", "data/blobs")
	viper.SetDefault("blob.region", "us-east-1")
	viper.SetDefault("blob.bucket", "")
	viper.SetDefault("blob.endpoint", "")
	viper.SetDefault("blob.access_key", "")
	viper.SetDefault("blob.secret_key", "")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("jwt.issuer", "driftmail")
	viper.SetDefault("ratelimit.allocate_per_second", 1.0)
	viper.SetDefault("ratelimit.allocate_burst", 5)

	domains := parseDomains(viper.GetString("mailbox.domains"))
	if len(domains) == 0 {
		return nil, fmt.Errorf("mailbox.domains must not be empty, set DRIFTMAIL_MAILBOX_DOMAINS")
	}

	sessionTTL, err := time.ParseDuration(viper.GetString("mailbox.session_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.session_ttl: %w", err)
	}
	messageTTL, err := time.ParseDuration(viper.GetString("mailbox.message_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.message_ttl: %w", err)
	}

	sweepInterval, err := time.ParseDuration(viper.GetString("store.sweep_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid store.sweep_interval: %w", err)
	}

	storeBackend := viper.GetString("store.backend")
	switch storeBackend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("invalid store.backend %q, want memory or redis", storeBackend)
	}

	blobBackend := viper.GetString("blob.backend")
	switch blobBackend {
	case "memory", "filesystem":
	case "s3":
		if viper.GetString("blob.bucket") == "" {
			return nil, fmt.Errorf("blob.bucket is required for the s3 backend")
		}
	default:
		return nil, fmt.Errorf("invalid blob.backend %q, want memory, filesystem or s3", blobBackend)
	}

	jwtSecret := viper.GetString("jwt.secret")
	if jwtSecret == "" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret is required, set DRIFTMAIL_JWT_SECRET")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	hostname := viper.GetString("smtp.hostname")
	if hostname == "" {
		hostname = domains[0]
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Mailbox: MailboxConfig{
			Domains:    domains,
			SessionTTL: sessionTTL,
			MessageTTL: messageTTL,
		},
		SMTP: SMTPConfig{
			BindAddr: viper.GetString("smtp.bind_addr"),
			Hostname: hostname,
			MaxConns: viper.GetInt("smtp.max_conns"),
			MaxRate:  viper.GetInt("smtp.max_rate"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Store: StoreConfig{
			Backend:       storeBackend,
			SweepInterval: sweepInterval,
		},
		Blob: BlobConfig{
			Backend:   blobBackend,
			Dir:       viper.GetString("blob.dir"),
			Region:    viper.GetString("blob.region"),
			Bucket:    viper.GetString("blob.bucket"),
			Endpoint:  viper.GetString("blob.endpoint"),
			AccessKey: viper.GetString("blob.access_key"),
			SecretKey: viper.GetString("blob.secret_key"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
			Issuer: viper.GetString("jwt.issuer"),
		},
		RateLimit: RateLimitConfig{
			AllocatePerSecond: viper.GetFloat64("ratelimit.allocate_per_second"),
			AllocateBurst:     viper.GetInt("ratelimit.allocate_burst"),
		},
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件，不存在时静默跳过。
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
