package models

import (
	"encoding/json"
	"time"
)

// DomainStats 单个域名工作器的统计
type DomainStats struct {
	Domain          string `json:"domain"`           // 域名
	Cycles          int    `json:"cycles"`           // 完成的循环轮数
	Emitted         int    `json:"emitted"`          // 成功入库的文章数
	SkippedSeen     int    `json:"skipped_seen"`     // 因历史重复跳过数
	SkippedInvalid  int    `json:"skipped_invalid"`  // 因URL形态不符跳过数
	FetchFailures   int    `json:"fetch_failures"`   // 抓取失败数
	ExtractFailures int    `json:"extract_failures"` // 提取失败数
	SinkFailures    int    `json:"sink_failures"`    // 入库失败数
	SitemapURLs     int    `json:"sitemap_urls"`     // sitemap解析出的URL数
}

// SavedFileInfo 已保存文章的文件信息
type SavedFileInfo struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	FilePath string    `json:"file_path"`
	Format   string    `json:"format"`
	SavedAt  time.Time `json:"saved_at"`
}

// FailedURLInfo 失败URL信息
type FailedURLInfo struct {
	URL       string `json:"url"`
	ErrorType string `json:"error_type"` // fetch, extract, sink, sitemap
	ErrorMsg  string `json:"error_msg"`
}

// RunReport 运行报告
type RunReport struct {
	// 运行信息
	RunID        string `json:"run_id"`
	WorkerMode   bool   `json:"worker_mode"`
	OutputFormat string `json:"output_format"`
	OutputDir    string `json:"output_dir"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Domains []DomainStats `json:"domains"`

	// 明细列表
	SavedFiles []SavedFileInfo `json:"saved_files"` // 成功保存的文章
	FailedURLs []FailedURLInfo `json:"failed_urls"` // 失败URL
}

// NewRunReport 创建运行报告骨架
func NewRunReport(workerMode bool, outputFormat, outputDir string) *RunReport {
	return &RunReport{
		RunID:        generateID(),
		WorkerMode:   workerMode,
		OutputFormat: outputFormat,
		OutputDir:    outputDir,
		StartTime:    time.Now(),
	}
}

// Finish 记录结束时间并计算总耗时
func (r *RunReport) Finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime).Seconds()
}

// TotalEmitted 所有域名成功入库的文章总数
func (r *RunReport) TotalEmitted() int {
	total := 0
	for _, d := range r.Domains {
		total += d.Emitted
	}
	return total
}

// TotalFailed 所有域名的失败总数(抓取+提取+入库)
func (r *RunReport) TotalFailed() int {
	total := 0
	for _, d := range r.Domains {
		total += d.FetchFailures + d.ExtractFailures + d.SinkFailures
	}
	return total
}

// TotalSkipped 所有域名的跳过总数
func (r *RunReport) TotalSkipped() int {
	total := 0
	for _, d := range r.Domains {
		total += d.SkippedSeen + d.SkippedInvalid
	}
	return total
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
