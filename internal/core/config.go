package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/NexoBot/internal/crawlers"
	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Output   OutputConfig   `mapstructure:"output"`
	Airtable AirtableConfig `mapstructure:"airtable"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Resource ResourceConfig `mapstructure:"resource"`
	Headers  HeadersConfig  `mapstructure:"headers"`
}

// ScrapeConfig 抓取配置
type ScrapeConfig struct {
	URLs              []string `mapstructure:"urls"`               // 种子URL列表(按配置顺序处理)
	SitemapURL        string   `mapstructure:"sitemap_url"`        // 显式指定的sitemap地址
	OutputFormat      string   `mapstructure:"output_format"`      // json/txt/md/airtable
	Timeout           int      `mapstructure:"timeout"`            // 请求超时(秒)
	Delay             float64  `mapstructure:"delay"`              // 同域名请求间隔(秒)
	MaxArticles       int      `mapstructure:"max_articles"`       // 每个sitemap最多抓取数(0=不限制)
	MinDepth          int      `mapstructure:"min_depth"`          // 文章URL最小路径深度
	SkipValidation    bool     `mapstructure:"skip_validation"`    // 跳过URL形态校验
	PreventDuplicates bool     `mapstructure:"prevent_duplicates"` // 历史去重
	WorkerMode        bool     `mapstructure:"worker_mode"`        // 常驻循环模式
	CycleDelay        int      `mapstructure:"cycle_delay"`        // 循环间隔(秒)
	HistoryFile       string   `mapstructure:"history_file"`       // 历史记录文件路径
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// AirtableConfig Airtable接入配置
type AirtableConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseID  string `mapstructure:"base_id"`
	TableID string `mapstructure:"table_id"`
}

// IsConfigured 三项凭据是否齐全
func (a AirtableConfig) IsConfigured() bool {
	return a.APIKey != "" && a.BaseID != "" && a.TableID != ""
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// ResourceConfig 资源监控配置
type ResourceConfig struct {
	MonitorInterval  int `mapstructure:"monitor_interval"`   // 采样间隔(秒)
	SafetyReserveMB  int `mapstructure:"safety_reserve_mb"`  // 安全保留内存(MB)
	CPULoadThreshold int `mapstructure:"cpu_load_threshold"` // CPU负载阈值(%)
	MaxWorkers       int `mapstructure:"max_workers"`        // 绝对最大工作器数(0=不限制)
	WorkerMemoryMB   int `mapstructure:"worker_memory_mb"`   // 单工作器内存估算(MB)
}

// HeadersConfig HTTP头部配置引用
// 头部本身在独立的headers.yaml里维护,这里只记录文件位置
type HeadersConfig struct {
	ConfigFile string `mapstructure:"config_file"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件
	if configPath != "" {
		// 使用指定的配置文件
		v.SetConfigFile(configPath)
	} else {
		// 搜索默认位置
		v.SetConfigName("nexobot")
		v.SetConfigType("yaml")

		// 添加配置搜索路径
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		// 用户主目录
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".nexobot"))
		}
	}

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &models.ConfigError{
				FilePath: configPath,
				Cause:    fmt.Errorf("读取配置文件失败: %w", err),
			}
		}
		// 配置文件不存在,使用默认值
	}

	// 解析配置
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{
			FilePath: v.ConfigFileUsed(),
			Cause:    fmt.Errorf("解析配置文件失败: %w", err),
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 抓取配置默认值
	v.SetDefault("scrape.output_format", "json")
	v.SetDefault("scrape.timeout", 60)
	v.SetDefault("scrape.delay", 1.0)
	v.SetDefault("scrape.max_articles", 0)
	v.SetDefault("scrape.min_depth", 3)
	v.SetDefault("scrape.skip_validation", false)
	v.SetDefault("scrape.prevent_duplicates", true)
	v.SetDefault("scrape.worker_mode", false)
	v.SetDefault("scrape.cycle_delay", 3600)
	v.SetDefault("scrape.history_file", models.DefaultHistoryFile)

	// 输出配置默认值
	v.SetDefault("output.dir", "output")

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 资源监控默认值
	v.SetDefault("resource.monitor_interval", 30)
	v.SetDefault("resource.safety_reserve_mb", 500)
	v.SetDefault("resource.cpu_load_threshold", 80)
	v.SetDefault("resource.max_workers", 0)
	v.SetDefault("resource.worker_memory_mb", 32)
}

// Validate 检查配置值的合法性
// 配置错误在启动时直接失败,比运行到一半再报错好排查
func (c *Config) Validate() error {
	if c.Scrape.Timeout <= 0 {
		return &models.ConfigError{Cause: fmt.Errorf("scrape.timeout 必须大于0, 当前值: %d", c.Scrape.Timeout)}
	}
	if c.Scrape.Delay < 0 {
		return &models.ConfigError{Cause: fmt.Errorf("scrape.delay 不能为负数, 当前值: %.2f", c.Scrape.Delay)}
	}
	if c.Scrape.MaxArticles < 0 {
		return &models.ConfigError{Cause: fmt.Errorf("scrape.max_articles 不能为负数, 当前值: %d", c.Scrape.MaxArticles)}
	}
	if c.Scrape.MinDepth < 1 {
		return &models.ConfigError{Cause: fmt.Errorf("scrape.min_depth 必须大于等于1, 当前值: %d", c.Scrape.MinDepth)}
	}
	if c.Scrape.WorkerMode && c.Scrape.CycleDelay <= 0 {
		return &models.ConfigError{Cause: fmt.Errorf("worker_mode下 scrape.cycle_delay 必须大于0, 当前值: %d", c.Scrape.CycleDelay)}
	}
	return nil
}

// GetLogConfig 从配置中提取日志配置
func (c *Config) GetLogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// GetResourceMonitorConfig 从配置中提取资源监控配置
func (c *Config) GetResourceMonitorConfig() crawlers.ResourceMonitorConfig {
	const mb = 1024 * 1024
	return crawlers.ResourceMonitorConfig{
		SafetyReserveMemory: int64(c.Resource.SafetyReserveMB) * mb,
		SafetyThreshold:     int64(c.Resource.SafetyReserveMB) * mb / 2,
		CPULoadThreshold:    c.Resource.CPULoadThreshold,
		MaxWorkersLimit:     c.Resource.MaxWorkers,
		WorkerMemoryUsage:   int64(c.Resource.WorkerMemoryMB) * mb,
	}
}

// EffectiveMaxArticles 把配置里的max_articles换算为sitemap解析器的限制值
// 配置里0表示不限制,解析器里用NoLimit表示
func (c *Config) EffectiveMaxArticles() int {
	if c.Scrape.MaxArticles <= 0 {
		return crawlers.NoLimit
	}
	return c.Scrape.MaxArticles
}
