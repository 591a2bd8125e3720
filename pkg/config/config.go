package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"

	"github.com/zoeyai/pyrmatch/internal/logger"
	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

// 环境变量名
const (
	EnvLevels          = "PYRMATCH_LEVELS"
	EnvCoarseThreshold = "PYRMATCH_COARSE_THRESHOLD"
	EnvFinalThreshold  = "PYRMATCH_FINAL_THRESHOLD"
	EnvWorkers         = "PYRMATCH_WORKERS"
	EnvMaxResults      = "PYRMATCH_MAX_RESULTS"
	EnvRegionPadding   = "PYRMATCH_REGION_PADDING"
	EnvLogLevel        = "PYRMATCH_LOG_LEVEL"
	EnvListenAddr      = "PYRMATCH_LISTEN_ADDR"
	EnvRateLimit       = "PYRMATCH_RATE_LIMIT"
)

// MatchConfig 匹配与服务配置
type MatchConfig struct {
	Levels          int     `json:"levels"`
	CoarseThreshold float64 `json:"coarse_threshold"`
	FinalThreshold  float64 `json:"final_threshold"`
	Workers         int     `json:"workers"`
	MaxResults      int     `json:"max_results"`
	RegionPadding   int     `json:"region_padding"`
	LogLevel        string  `json:"log_level"`
	// ListenAddr gRPC 服务监听地址
	ListenAddr string `json:"listen_addr"`
	// RateLimit 每秒允许的匹配请求数，0 表示不限制
	RateLimit float64 `json:"rate_limit"`
}

// DefaultMatchConfig 默认配置
func DefaultMatchConfig() *MatchConfig {
	return &MatchConfig{
		Levels:          cv.DefaultLevels,
		CoarseThreshold: cv.DefaultCoarseThreshold,
		FinalThreshold:  cv.DefaultFinalThreshold,
		Workers:         0,
		MaxResults:      0,
		RegionPadding:   cv.DefaultRegionPadding,
		LogLevel:        "INFO",
		ListenAddr:      "localhost:50051",
		RateLimit:       0,
	}
}

// Validate 校验配置
func (c *MatchConfig) Validate() error {
	if err := c.MatchOptions().Validate(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("协程数不能为负数: %d", c.Workers)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("限流速率不能为负数: %g", c.RateLimit)
	}
	return nil
}

// MatchOptions 转换为金字塔匹配选项
func (c *MatchConfig) MatchOptions() cv.Options {
	return cv.Options{
		Levels:          c.Levels,
		CoarseThreshold: c.CoarseThreshold,
		FinalThreshold:  c.FinalThreshold,
		Workers:         c.Workers,
		MaxResults:      c.MaxResults,
		RegionPadding:   c.RegionPadding,
	}
}

// ApplyEnv 用环境变量覆盖配置，env 为 nil 时读取进程环境
func (c *MatchConfig) ApplyEnv(env map[string]string) error {
	lookup := func(key string) (string, bool) {
		if env != nil {
			v, ok := env[key]
			return v, ok
		}
		return os.LookupEnv(key)
	}

	var errs []error
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	setInt(EnvLevels, &c.Levels)
	setFloat(EnvCoarseThreshold, &c.CoarseThreshold)
	setFloat(EnvFinalThreshold, &c.FinalThreshold)
	setInt(EnvWorkers, &c.Workers)
	setInt(EnvMaxResults, &c.MaxResults)
	setInt(EnvRegionPadding, &c.RegionPadding)
	setString(EnvLogLevel, &c.LogLevel)
	setString(EnvListenAddr, &c.ListenAddr)
	setFloat(EnvRateLimit, &c.RateLimit)

	if len(errs) > 0 {
		return fmt.Errorf("解析环境变量失败: %w", errors.Join(errs...))
	}
	return nil
}

// ApplyDotEnv 读取 .env 文件并覆盖配置，文件不存在时忽略
func (c *MatchConfig) ApplyDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	return c.ApplyEnv(env)
}

// Manager 配置管理器
type Manager struct {
	configDir  string
	configFile string
	mu         sync.RWMutex
}

// NewManager 创建配置管理器
func NewManager() *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return NewManagerWithDir(filepath.Join(homeDir, ".pyrmatch"))
}

// NewManagerWithDir 使用指定目录创建配置管理器
func NewManagerWithDir(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "config.json"),
	}
}

// ensureDir 确保配置目录存在
func (m *Manager) ensureDir() error {
	return os.MkdirAll(m.configDir, 0755)
}

// Load 加载配置，文件不存在时返回默认配置
// 文件中缺少的字段保留默认值
func (m *Manager) Load() (*MatchConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return DefaultMatchConfig(), nil
	}

	data, err := os.ReadFile(m.configFile)
	if err != nil {
		return DefaultMatchConfig(), fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := DefaultMatchConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return DefaultMatchConfig(), fmt.Errorf("解析配置文件失败: %w", err)
	}

	return config, nil
}

// Save 保存配置
func (m *Manager) Save(config *MatchConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureDir(); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(m.configFile, data, 0600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// Clear 清除配置
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return nil
	}

	return os.Remove(m.configFile)
}

// GetConfigDir 获取配置目录
func (m *Manager) GetConfigDir() string {
	return m.configDir
}

// GetConfigFile 获取配置文件路径
func (m *Manager) GetConfigFile() string {
	return m.configFile
}

// Exists 检查配置文件是否存在
func (m *Manager) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.configFile)
	return err == nil
}

// Resolve 依次合并 配置文件 -> .env -> 进程环境变量，并校验结果
// dotenvPath 为空时跳过 .env
func (m *Manager) Resolve(dotenvPath string) (*MatchConfig, error) {
	config, err := m.Load()
	if err != nil {
		return nil, err
	}
	if dotenvPath != "" {
		if err := config.ApplyDotEnv(dotenvPath); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(nil); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}
	logger.Debug("配置: %+v", *config)
	return config, nil
}

// 全局配置管理器
var defaultManager = NewManager()

// GetDefaultManager 获取默认配置管理器
func GetDefaultManager() *Manager {
	return defaultManager
}

// Load 使用默认管理器加载配置
func Load() (*MatchConfig, error) {
	return defaultManager.Load()
}

// Save 使用默认管理器保存配置
func Save(config *MatchConfig) error {
	return defaultManager.Save(config)
}

// Clear 使用默认管理器清除配置
func Clear() error {
	return defaultManager.Clear()
}
