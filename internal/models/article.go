package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// MinContentLength 有效文章的最小正文长度(字符)
	MinContentLength = 100

	// UnknownField 作者/日期/分类缺失时的占位值
	UnknownField = "Unknown"
)

// ContentSection 文章正文的一个小节
// 正文按h2标题切分,首个h2之前的内容构成引言小节
type ContentSection struct {
	Heading string `json:"heading,omitempty"` // 小节标题 (引言为空)
	Content string `json:"content"`           // 小节正文(纯文本)
	Level   int    `json:"level"`             // 层级 (0=引言, 2=h2小节)
}

// Article 抓取到的结构化文章
// 每个成功处理的URL恰好产出一篇,构造后不再修改
type Article struct {
	// 标识信息
	ID  string `json:"id"`  // 文章唯一ID (UUID)
	URL string `json:"url"` // 文章URL (唯一键)

	// 内容信息
	Title           string `json:"title"`            // 标题
	Author          string `json:"author"`           // 作者
	PublishDate     string `json:"publish_date"`     // 发布日期
	Category        string `json:"category"`         // 分类
	MetaDescription string `json:"meta_description"` // 页面描述

	// 正文
	Content  string           `json:"content"`  // 清洗后的正文HTML (仅白名单标签)
	Sections []ContentSection `json:"sections"` // 按h2切分的正文小节
	Tags     []string         `json:"tags"`     // 标签列表(去重)

	// 时间戳
	ScrapedAt time.Time `json:"scraped_at"` // 抓取时间
}

// NewArticle 创建文章骨架,元数据字段填充占位值
func NewArticle(articleURL string) *Article {
	return &Article{
		ID:          generateID(),
		URL:         articleURL,
		Author:      UnknownField,
		PublishDate: UnknownField,
		Category:    UnknownField,
		ScrapedAt:   time.Now(),
	}
}

// ContentLength 返回正文总长度
// 正文HTML为空时回退统计各小节文本长度
func (a *Article) ContentLength() int {
	if len(a.Content) > 0 {
		return len(a.Content)
	}
	total := 0
	for _, s := range a.Sections {
		total += len(s.Content)
	}
	return total
}

// Validate 验证文章是否可入库
func (a *Article) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("文章标题为空")
	}
	if n := a.ContentLength(); n < MinContentLength {
		return fmt.Errorf("正文过短: %d < %d", n, MinContentLength)
	}
	return nil
}

// ToJSON 序列化为JSON
func (a *Article) ToJSON() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// FromJSON 从JSON反序列化
func (a *Article) FromJSON(data []byte) error {
	return json.Unmarshal(data, a)
}

// ToText 渲染为纯文本格式
func (a *Article) ToText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	fmt.Fprintf(&b, "URL: %s\n", a.URL)
	fmt.Fprintf(&b, "Author: %s\n", a.Author)
	fmt.Fprintf(&b, "Date: %s\n", a.PublishDate)
	fmt.Fprintf(&b, "Category: %s\n", a.Category)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n")

	for _, s := range a.Sections {
		if s.Heading != "" {
			fmt.Fprintf(&b, "\n## %s\n\n", s.Heading)
		}
		b.WriteString(s.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// ToMarkdown 渲染为Markdown格式(基于小节文本)
// 存储层的md输出优先走HTML转换管线,此方法用于HTML为空时的回退
func (a *Article) ToMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", a.Title)
	fmt.Fprintf(&b, "**URL:** %s\n", a.URL)
	fmt.Fprintf(&b, "**Author:** %s\n", a.Author)
	fmt.Fprintf(&b, "**Date:** %s\n", a.PublishDate)
	fmt.Fprintf(&b, "**Category:** %s\n", a.Category)
	b.WriteString("\n---\n")

	for _, s := range a.Sections {
		if s.Heading != "" {
			prefix := strings.Repeat("#", s.Level+1)
			fmt.Fprintf(&b, "\n%s %s\n\n", prefix, s.Heading)
		}
		b.WriteString(s.Content)
		b.WriteString("\n")
	}
	return b.String()
}
