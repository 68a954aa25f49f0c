package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/schollz/progressbar/v3"
)

// ReportFilename 运行报告文件名
const ReportFilename = "nexobot_report.json"

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{
		outputDir: outputDir,
	}
}

// WriteReport 将运行报告写入输出目录
func (r *Reporter) WriteReport(report *models.RunReport) error {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	if err := r.saveJSONReport(r.outputDir, ReportFilename, report); err != nil {
		return err
	}

	Infof("✅ 报告已生成: %s", filepath.Join(r.outputDir, ReportFilename))
	return nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(dir string, filename string, data interface{}) error {
	filepath := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(filepath, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", filepath)
	return nil
}

// PrintSummary 在控制台输出运行摘要
func (r *Reporter) PrintSummary(report *models.RunReport) {
	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println("📊 抓取结果摘要")
	fmt.Println("============================================================")
	fmt.Printf("  耗时:       %.1f 秒\n", report.Duration)
	fmt.Printf("  输出格式:   %s\n", report.OutputFormat)
	fmt.Printf("  域名数:     %d\n", len(report.Domains))
	fmt.Printf("  成功入库:   %d 篇\n", report.TotalEmitted())
	fmt.Printf("  跳过:       %d 个URL\n", report.TotalSkipped())
	fmt.Printf("  失败:       %d 个URL\n", report.TotalFailed())
	fmt.Println("------------------------------------------------------------")

	for _, d := range report.Domains {
		fmt.Printf("  🌐 %s: 入库 %d, 跳过 %d, 失败 %d",
			d.Domain, d.Emitted, d.SkippedSeen+d.SkippedInvalid,
			d.FetchFailures+d.ExtractFailures+d.SinkFailures)
		if d.SitemapURLs > 0 {
			fmt.Printf(" (sitemap发现 %d 个URL)", d.SitemapURLs)
		}
		fmt.Println()
	}
	fmt.Println("============================================================")
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
