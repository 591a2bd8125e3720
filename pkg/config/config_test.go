package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

func TestDefaultMatchConfig(t *testing.T) {
	config := DefaultMatchConfig()

	if config.Levels != 5 {
		t.Errorf("默认 Levels 应为 5, 实际为 %d", config.Levels)
	}
	if config.CoarseThreshold != 0.94 || config.FinalThreshold != 0.9 {
		t.Errorf("默认阈值错误: coarse=%.2f final=%.2f", config.CoarseThreshold, config.FinalThreshold)
	}
	if config.ListenAddr != "localhost:50051" {
		t.Errorf("默认 ListenAddr 应为 localhost:50051, 实际为 %s", config.ListenAddr)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("默认配置应有效: %v", err)
	}
}

func TestValidate(t *testing.T) {
	config := DefaultMatchConfig()
	config.CoarseThreshold = 1
	if err := config.Validate(); !errors.Is(err, cv.ErrInvalidThreshold) {
		t.Errorf("阈值为 1 应返回 ErrInvalidThreshold, 实际为 %v", err)
	}

	config = DefaultMatchConfig()
	config.Levels = -2
	if err := config.Validate(); !errors.Is(err, cv.ErrInvalidLevelCount) {
		t.Errorf("负层数应返回 ErrInvalidLevelCount, 实际为 %v", err)
	}

	config = DefaultMatchConfig()
	config.RateLimit = -1
	if err := config.Validate(); err == nil {
		t.Error("负限流速率应返回错误")
	}
}

func TestManagerSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	manager := NewManagerWithDir(tempDir)

	if manager.Exists() {
		t.Error("初始时配置文件不应存在")
	}

	config := DefaultMatchConfig()
	config.Levels = 3
	config.FinalThreshold = 0.95
	config.ListenAddr = "0.0.0.0:9000"

	if err := manager.Save(config); err != nil {
		t.Fatalf("保存配置失败: %v", err)
	}
	if !manager.Exists() {
		t.Error("保存后配置文件应存在")
	}

	loaded, err := manager.Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if *loaded != *config {
		t.Errorf("配置不匹配: 期望 %+v, 实际 %+v", config, loaded)
	}
}

func TestManagerLoadPartialFile(t *testing.T) {
	tempDir := t.TempDir()
	manager := NewManagerWithDir(tempDir)

	if err := os.WriteFile(manager.GetConfigFile(), []byte(`{"levels": 2}`), 0600); err != nil {
		t.Fatalf("创建测试文件失败: %v", err)
	}

	config, err := manager.Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if config.Levels != 2 {
		t.Errorf("Levels 应为 2, 实际为 %d", config.Levels)
	}
	// 缺少的字段保留默认值
	if config.CoarseThreshold != 0.94 {
		t.Errorf("CoarseThreshold 应保留默认值, 实际为 %.2f", config.CoarseThreshold)
	}
}

func TestManagerClear(t *testing.T) {
	tempDir := t.TempDir()
	manager := NewManagerWithDir(tempDir)

	if err := manager.Save(DefaultMatchConfig()); err != nil {
		t.Fatalf("保存配置失败: %v", err)
	}
	if err := manager.Clear(); err != nil {
		t.Fatalf("清除配置失败: %v", err)
	}
	if manager.Exists() {
		t.Error("清除后配置文件不应存在")
	}

	// 清除不存在的文件不应报错
	if err := manager.Clear(); err != nil {
		t.Errorf("清除不存在的配置不应报错: %v", err)
	}
}

func TestManagerLoadCorruptedFile(t *testing.T) {
	tempDir := t.TempDir()
	manager := NewManagerWithDir(tempDir)

	configFile := filepath.Join(tempDir, "config.json")
	if err := os.WriteFile(configFile, []byte("not valid json"), 0600); err != nil {
		t.Fatalf("创建测试文件失败: %v", err)
	}

	config, err := manager.Load()
	if err == nil {
		t.Error("加载损坏的配置应返回错误")
	}
	if config == nil || config.Levels != 5 {
		t.Error("即使出错也应返回默认配置")
	}
}

func TestApplyEnv(t *testing.T) {
	config := DefaultMatchConfig()
	err := config.ApplyEnv(map[string]string{
		EnvLevels:         "4",
		EnvFinalThreshold: "0.97",
		EnvLogLevel:       "DEBUG",
		EnvRateLimit:      "2.5",
	})
	if err != nil {
		t.Fatalf("ApplyEnv 失败: %v", err)
	}
	if config.Levels != 4 || config.FinalThreshold != 0.97 {
		t.Errorf("环境变量未生效: %+v", config)
	}
	if config.LogLevel != "DEBUG" || config.RateLimit != 2.5 {
		t.Errorf("环境变量未生效: %+v", config)
	}
	if config.CoarseThreshold != 0.94 {
		t.Errorf("未设置的字段不应改变: %.2f", config.CoarseThreshold)
	}

	err = config.ApplyEnv(map[string]string{EnvWorkers: "many"})
	if err == nil {
		t.Error("无效的整数应返回错误")
	}
}

func TestApplyDotEnv(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, ".env")
	content := "# 匹配参数\nPYRMATCH_LEVELS=2\nPYRMATCH_COARSE_THRESHOLD=0.8\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("创建 .env 失败: %v", err)
	}

	config := DefaultMatchConfig()
	if err := config.ApplyDotEnv(path); err != nil {
		t.Fatalf("ApplyDotEnv 失败: %v", err)
	}
	if config.Levels != 2 || config.CoarseThreshold != 0.8 {
		t.Errorf(".env 未生效: %+v", config)
	}

	// 文件不存在时忽略
	if err := config.ApplyDotEnv(filepath.Join(tempDir, "missing.env")); err != nil {
		t.Errorf("不存在的 .env 不应报错: %v", err)
	}
}

func TestResolve(t *testing.T) {
	tempDir := t.TempDir()
	manager := NewManagerWithDir(tempDir)

	saved := DefaultMatchConfig()
	saved.Levels = 3
	saved.Workers = 2
	if err := manager.Save(saved); err != nil {
		t.Fatalf("保存配置失败: %v", err)
	}

	envPath := filepath.Join(tempDir, ".env")
	if err := os.WriteFile(envPath, []byte("PYRMATCH_LEVELS=4\nPYRMATCH_MAX_RESULTS=7\n"), 0600); err != nil {
		t.Fatalf("创建 .env 失败: %v", err)
	}
	// 进程环境变量优先级最高
	t.Setenv(EnvLevels, "1")

	config, err := manager.Resolve(envPath)
	if err != nil {
		t.Fatalf("Resolve 失败: %v", err)
	}
	if config.Levels != 1 {
		t.Errorf("Levels 应为 1, 实际为 %d", config.Levels)
	}
	if config.MaxResults != 7 {
		t.Errorf("MaxResults 应为 7, 实际为 %d", config.MaxResults)
	}
	if config.Workers != 2 {
		t.Errorf("Workers 应为 2, 实际为 %d", config.Workers)
	}

	t.Setenv(EnvFinalThreshold, "2")
	if _, err := manager.Resolve(""); err == nil {
		t.Error("无效阈值应导致 Resolve 失败")
	}
}

func TestMatchOptions(t *testing.T) {
	config := DefaultMatchConfig()
	config.RegionPadding = 4

	opts := config.MatchOptions()
	if opts.Levels != config.Levels || opts.RegionPadding != 4 {
		t.Errorf("MatchOptions 转换错误: %+v", opts)
	}
}

func TestDefaultManager(t *testing.T) {
	manager := GetDefaultManager()
	if manager == nil {
		t.Fatal("GetDefaultManager 返回 nil")
	}

	homeDir, _ := os.UserHomeDir()
	expectedDir := filepath.Join(homeDir, ".pyrmatch")
	if manager.GetConfigDir() != expectedDir {
		t.Errorf("默认配置目录应为 %s, 实际为 %s", expectedDir, manager.GetConfigDir())
	}
}

func TestConfigFilePermissions(t *testing.T) {
	manager := NewManagerWithDir(t.TempDir())
	if err := manager.Save(DefaultMatchConfig()); err != nil {
		t.Fatalf("保存配置失败: %v", err)
	}

	info, err := os.Stat(manager.GetConfigFile())
	if err != nil {
		t.Fatalf("获取文件信息失败: %v", err)
	}
	t.Logf("配置文件权限: %o", info.Mode().Perm())
}

// BenchmarkSaveLoad 基准测试
func BenchmarkSaveLoad(b *testing.B) {
	manager := NewManagerWithDir(b.TempDir())
	config := DefaultMatchConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		manager.Save(config)
		manager.Load()
	}
}
