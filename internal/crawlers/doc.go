// Package crawlers 提供页面抓取、URL分类和sitemap解析功能
//
// # 概述
//
// crawlers包是抓取流水线的网络层,负责把URL变成可供提取的HTML文档。
// 核心特性包括:基于Colly的同步抓取、压缩响应解压、URL形态分类、
// 嵌套sitemap索引的递归展开、系统资源监控。
//
// # 核心组件
//
// ## Fetcher
//
// 基于Colly框架的同步抓取器,每个域名工作器持有独立实例,
// 请求间隔互相独立。支持gzip/deflate/brotli解压和自定义HTTP头部。
//
//	fetcher := NewFetcher(FetcherConfig{Timeout: 60, Delay: 1.0, HeaderProvider: hm})
//	body, err := fetcher.Fetch(ctx, "https://example.com/post/hello")
//	doc, err := fetcher.FetchDocument(ctx, "https://example.com/post/hello")
//	status, err := fetcher.Head(ctx, "https://example.com/sitemap.xml")
//
// ## Classifier
//
// 按URL形态区分文章页、归档页和sitemap引用。
// 判定顺序:.xml后缀 > 根域名 > 归档形态(分页/分类/标签/feed) >
// 路径深度和末段slug。形态不明时可选地发起一次轻量探测,
// 以og:type或<article>元素为文章信号。
//
//	classifier := NewClassifier(3, false, fetcher)
//	kind := classifier.Classify(ctx, "https://example.com/2024/08/hello-world")
//	ok, reason := classifier.ValidateArticleURL("https://example.com/page/2/")
//
// ## SitemapResolver
//
// 把根域名或sitemap地址展开为文章候选URL列表。
// 支持嵌套sitemap索引(递归深度上限3层),收集总量受上限约束
// (限定max时为max*3,否则5000),循环引用自动跳过。
// 索引中优先选择post类子sitemap,跳过分类/标签/作者类。
//
//	resolver := NewSitemapResolver(fetcher)
//	sitemapURL, err := resolver.Discover(ctx, "https://example.com")
//	entries, err := resolver.Resolve(ctx, sitemapURL, 50)
//
// ## ResourceMonitor (资源监控器)
//
// daemon模式下周期采样内存和CPU,评估压力等级并输出诊断日志,
// 为调度器提供工作器并发数建议。
// 压力等级:
//   - 可用内存 < 500MB: warning (警告日志)
//   - 可用内存 < 300MB: critical (错误日志)
//   - 可用内存 < 200MB: emergency (错误日志)
//
// 使用示例:
//
//	config := ResourceMonitorConfig{
//	    SafetyReserveMemory: 512 * 1024 * 1024,  // 512MB
//	    SafetyThreshold:     300 * 1024 * 1024,  // 300MB
//	    CPULoadThreshold:    80,
//	    MaxWorkersLimit:     16,
//	}
//	monitor := NewResourceMonitor(config)
//	monitor.StartMonitoring(30 * time.Second)
//	defer monitor.StopMonitoring()
//
//	workers := monitor.RecommendedWorkers()
//	canRun, reason := monitor.CheckResourceAvailability()
//
// # 配置参数
//
// ## 抓取配置 (configs/nexobot.yaml)
//
//	scrape:
//	  timeout: 60        # 单次请求超时(秒)
//	  delay: 1.0         # 同域名请求间隔(秒)
//	  min_depth: 3       # 文章URL最小路径深度
//
//	resource:
//	  monitor_interval: 30     # 采样间隔(秒)
//	  safety_reserve_mb: 500   # 系统预留内存(MB)
//	  cpu_load_threshold: 80   # CPU负载阈值(%)
//	  max_workers: 16          # 绝对最大工作器数
//
// # 并发安全
//
// Fetcher实例不是并发安全的,按每工作器一个实例使用;
// Classifier和SitemapResolver无共享可变状态,可并发调用;
// ResourceMonitor内部用sync.RWMutex保护,可跨goroutine使用。
//
// # 错误处理
//
//   - 网络失败/超时/非2xx状态码: Fetch返回*models.FetchError
//   - sitemap抓取或解析失败: Resolve返回*models.SitemapError
//   - 子sitemap失败: 记录警告后继续,不中断整体解析
//   - 探测失败: Classify降级为归档页判定,不返回错误
package crawlers
