package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/NexoBot/internal/core"
	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/storage"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件

	// 抓取参数
	targetURL      string
	sitemapMode    bool
	sitemapURL     string
	urlsFile       string
	maxArticles    int
	delay          float64
	outputDir      string
	minDepth       int
	skipValidation bool
	outputFormat   string
	noReport       bool
)

var rootCmd = &cobra.Command{
	Use:   "nexobot",
	Short: "文章抓取与内容提取工具",
	Long: `NexoBot - 文章抓取与结构化内容提取工具 (Go版本)

这是一个面向博客和新闻站点的文章采集工具,支持:
  • sitemap自动发现和递归解析
  • Elementor/WordPress/通用三层提取策略
  • 标题、作者、分类、标签、段落结构化提取
  • 历史去重,失败URL下一轮自动重试
  • 按域名并发,支持常驻worker循环模式
  • json/txt/md/Airtable四种输出格式
  • 自定义HTTP请求头

使用示例:
  # 抓取单篇文章
  nexobot -u https://example.com/blog/my-post

  # 从sitemap批量抓取,最多20篇
  nexobot -s -u https://example.com/sitemap.xml -m 20

  # 根域名自动发现sitemap
  nexobot -u https://example.com

  # 配置文件驱动(worker模式在配置里开启)
  nexobot -c configs/nexobot.yaml

  # 验证HTTP头部配置
  nexobot --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 初始化日志系统
		logConfig := config.GetLogConfig()

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// 信号处理(Ctrl+C优雅退出): 取消context后工作器收尾再退出
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		appConfig, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		if cmd.Flags().Changed("max") {
			appConfig.Scrape.MaxArticles = maxArticles
		}
		if cmd.Flags().Changed("delay") {
			appConfig.Scrape.Delay = delay
		}
		if cmd.Flags().Changed("output") {
			appConfig.Output.Dir = outputDir
		}
		if cmd.Flags().Changed("min-depth") {
			appConfig.Scrape.MinDepth = minDepth
		}
		if cmd.Flags().Changed("skip-validation") {
			appConfig.Scrape.SkipValidation = skipValidation
		}
		if cmd.Flags().Changed("format") {
			appConfig.Scrape.OutputFormat = outputFormat
		}

		// 创建HTTP头部管理器
		headerManager, err := core.NewHeaderManager(appConfig.Headers.ConfigFile, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		// 如果用户请求验证配置
		if validateConfig {
			utils.Info("🔍 验证HTTP头部配置...")
			if err := headerManager.LoadConfig(); err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			if err := headerManager.Validate(); err != nil {
				return fmt.Errorf("配置验证失败: %w", err)
			}

			// 显示合并后的头部(脱敏)
			safeHeaders := headerManager.GetSafeHeaders()
			utils.Info("✅ 配置验证通过!")
			utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
			for name, value := range safeHeaders {
				utils.Infof("  %s: %s", name, value)
			}
			return nil
		}

		// 如果没有提供任何目标,显示帮助信息
		if targetURL == "" && sitemapURL == "" && urlsFile == "" && len(appConfig.Scrape.URLs) == 0 {
			return cmd.Help()
		}

		// 验证参数
		if err := ValidateFlags(targetURL, sitemapURL, outputFormat, delay, maxArticles, minDepth, sitemapMode); err != nil {
			return err
		}

		// 构建输出端
		sink, err := buildSink(appConfig)
		if err != nil {
			return fmt.Errorf("创建输出端失败: %w", err)
		}

		// 按参数选择运行模式
		var report *models.RunReport
		switch {
		case urlsFile != "":
			// URL文件模式: 读文件后按域名分组并发处理
			urls, err := utils.ReadURLsFromFile(urlsFile)
			if err != nil {
				return fmt.Errorf("读取URL文件失败: %w", err)
			}
			appConfig.Scrape.URLs = urls
			report, err = core.NewWorkerPool(appConfig, headerManager, sink).Run(ctx)
			if err != nil {
				return err
			}

		case sitemapMode || sitemapURL != "":
			// sitemap批量模式
			target := sitemapURL
			if target == "" {
				target = targetURL
			}
			target, err = NormalizeURL(target)
			if err != nil {
				return fmt.Errorf("无效的sitemap URL: %w", err)
			}
			report, err = runSitemapBatch(ctx, appConfig, headerManager, sink, target)
			if err != nil {
				return err
			}

		case targetURL != "":
			// 单URL模式(根域名自动升级为sitemap发现)
			target, err := NormalizeURL(targetURL)
			if err != nil {
				return fmt.Errorf("无效的目标URL: %w", err)
			}
			report, err = runSingle(ctx, appConfig, headerManager, sink, target)
			if err != nil {
				return err
			}

		default:
			// 配置文件模式: 种子列表来自配置,worker模式由配置决定
			report, err = core.NewWorkerPool(appConfig, headerManager, sink).Run(ctx)
			if err != nil {
				return err
			}
		}

		// 输出报告和摘要
		reporter := utils.NewReporter(appConfig.Output.Dir)
		if !noReport {
			if err := reporter.WriteReport(report); err != nil {
				utils.Warnf("⚠️ 写入报告失败: %v", err)
			}
		}
		reporter.PrintSummary(report)

		// 一次性模式下一篇都没抓到按失败处理
		if !report.WorkerMode && report.TotalEmitted() == 0 {
			return fmt.Errorf("没有成功抓取任何文章")
		}

		utils.Info("✨ 抓取任务完成!")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("NexoBot %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Println("Go实现版本 - 文章抓取与内容提取工具")
	},
}

var clearHistoryCmd = &cobra.Command{
	Use:   "clear-history",
	Short: "清空抓取历史",
	Long:  "清空已抓取URL的历史记录, 下次运行会重新抓取所有URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		appConfig, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		history := core.NewHistoryManager(appConfig.Scrape.HistoryFile)
		return history.Clear()
	},
}

// newScraper 按配置构建抓取流水线(单URL和sitemap模式用)
func newScraper(cfg *core.Config, headerManager *core.HeaderManager) *core.Scraper {
	return core.NewScraper(core.ScraperOptions{
		Timeout:        cfg.Scrape.Timeout,
		Delay:          cfg.Scrape.Delay,
		MinDepth:       cfg.Scrape.MinDepth,
		SkipValidation: cfg.Scrape.SkipValidation,
		Headers:        headerManager,
		ShowProgress:   true,
	})
}

// buildSink 根据配置构建文章输出端
func buildSink(cfg *core.Config) (models.ArticleSink, error) {
	var airtable *storage.AirtableClient
	if cfg.Airtable.IsConfigured() {
		airtable = storage.NewAirtableClient(cfg.Airtable.APIKey, cfg.Airtable.BaseID, cfg.Airtable.TableID)
	} else if cfg.Scrape.OutputFormat == storage.FormatAirtable {
		utils.Warn("⚠️ 输出格式为airtable但凭据不完整, 文章入库会失败")
	}

	return storage.NewArticleStorage(cfg.Output.Dir, cfg.Scrape.OutputFormat, airtable)
}

// emitTo 构造批量抓取的回调: 文章交给输出端,成功的记入报告
func emitTo(ctx context.Context, sink models.ArticleSink, report *models.RunReport) func(*models.Article) error {
	return func(article *models.Article) error {
		info, err := sink.Emit(ctx, article)
		if err != nil {
			return err
		}
		if info != nil {
			report.SavedFiles = append(report.SavedFiles, *info)
		}
		return nil
	}
}

// runSitemapBatch 显式sitemap批量抓取
func runSitemapBatch(ctx context.Context, cfg *core.Config, headerManager *core.HeaderManager, sink models.ArticleSink, target string) (*models.RunReport, error) {
	scraper := newScraper(cfg, headerManager)
	report := models.NewRunReport(false, cfg.Scrape.OutputFormat, cfg.Output.Dir)

	result, err := scraper.ScrapeSitemap(ctx, target, cfg.EffectiveMaxArticles(), emitTo(ctx, sink, report))
	if err != nil {
		return nil, err
	}

	report.Domains = append(report.Domains, result.Stats)
	report.FailedURLs = append(report.FailedURLs, result.Failed...)
	report.Finish()
	return report, nil
}

// runSingle 单URL抓取
// 目标是根域名时自动转入sitemap发现, 发现失败再退回直接抓取根页面
func runSingle(ctx context.Context, cfg *core.Config, headerManager *core.HeaderManager, sink models.ArticleSink, target string) (*models.RunReport, error) {
	scraper := newScraper(cfg, headerManager)
	report := models.NewRunReport(false, cfg.Scrape.OutputFormat, cfg.Output.Dir)

	validate := !cfg.Scrape.SkipValidation
	if scraper.IsRootDomain(target) {
		utils.Infof("🔍 目标是根域名, 自动转入sitemap发现: %s", target)
		result, err := scraper.DiscoverAndScrape(ctx, target, cfg.EffectiveMaxArticles(), emitTo(ctx, sink, report))
		if err == nil {
			report.Domains = append(report.Domains, result.Stats)
			report.FailedURLs = append(report.FailedURLs, result.Failed...)
			report.Finish()
			return report, nil
		}

		utils.Warnf("⚠️ sitemap发现失败, 尝试直接抓取根页面: %v", err)
		validate = false
	}

	stats := models.DomainStats{Domain: models.ExtractDomain(target)}
	article, err := scraper.ScrapeOne(ctx, target, validate)
	if err != nil {
		return nil, err
	}

	info, err := sink.Emit(ctx, article)
	if err != nil {
		return nil, err
	}

	stats.Emitted = 1
	report.Domains = append(report.Domains, stats)
	if info != nil {
		report.SavedFiles = append(report.SavedFiles, *info)
	}
	report.Finish()
	return report, nil
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 抓取参数
	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "目标URL (文章页、sitemap或根域名)")
	rootCmd.Flags().BoolVarP(&sitemapMode, "sitemap", "s", false, "把--url按sitemap处理,批量抓取")
	rootCmd.Flags().StringVar(&sitemapURL, "sitemap-url", "", "显式指定sitemap地址")
	rootCmd.Flags().StringVar(&urlsFile, "urls-file", "", "包含URL列表的文件路径 (每行一个,#开头为注释)")
	rootCmd.Flags().IntVarP(&maxArticles, "max", "m", 0, "最多抓取文章数 (0表示不限制)")
	rootCmd.Flags().Float64VarP(&delay, "delay", "d", 1.0, "同域名请求间隔(秒)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "输出目录")
	rootCmd.Flags().IntVar(&minDepth, "min-depth", 3, "文章URL最小路径深度")
	rootCmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "跳过URL形态校验")
	rootCmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "输出格式 (json|txt|md|airtable)")
	rootCmd.Flags().BoolVar(&noReport, "no-report", false, "不生成运行报告文件")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(clearHistoryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
