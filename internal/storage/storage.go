// Package storage 提供文章的持久化能力
//
// 支持四种输出格式: json / txt / md 文件和Airtable表。
// 文件按"净化标题_时间戳.扩展名"命名写入输出目录,一篇文章一个文件;
// md格式优先把正文HTML转换为Markdown,转换不可用时回退小节渲染。
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
)

// 输出格式
const (
	FormatJSON     = "json"
	FormatText     = "txt"
	FormatMarkdown = "md"
	FormatAirtable = "airtable"
)

// maxFilenameTitleLen 文件名中标题部分的最大长度(字符)
const maxFilenameTitleLen = 50

// ArticleStorage 文章存储器,实现models.ArticleSink
// 按配置的输出格式分发到文件写入或Airtable
type ArticleStorage struct {
	outputDir string
	format    string

	// airtable格式时使用,其它格式为nil
	airtable *AirtableClient
}

// NewArticleStorage 创建文章存储器并确保输出目录存在
func NewArticleStorage(outputDir, format string, airtable *AirtableClient) (*ArticleStorage, error) {
	if outputDir == "" {
		outputDir = "output"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败 [%s]: %w", outputDir, err)
	}

	return &ArticleStorage{
		outputDir: outputDir,
		format:    format,
		airtable:  airtable,
	}, nil
}

// Name sink名称(即输出格式)
func (s *ArticleStorage) Name() string {
	return s.format
}

// Emit 按配置的格式持久化一篇文章
// 未知格式记录警告后按json处理,失败返回*models.SinkError
func (s *ArticleStorage) Emit(ctx context.Context, article *models.Article) (*models.SavedFileInfo, error) {
	var info *models.SavedFileInfo
	var err error

	switch s.format {
	case FormatAirtable:
		info, err = s.emitAirtable(ctx, article)
	case FormatJSON:
		info, err = s.saveFile(article, FormatJSON)
	case FormatText:
		info, err = s.saveFile(article, FormatText)
	case FormatMarkdown:
		info, err = s.saveFile(article, FormatMarkdown)
	default:
		utils.Warnf("未知的输出格式: %s, 改用json", s.format)
		info, err = s.saveFile(article, FormatJSON)
	}

	if err != nil {
		return nil, &models.SinkError{Sink: s.Name(), URL: article.URL, Cause: err}
	}
	return info, nil
}

// emitAirtable 把文章发送到Airtable
func (s *ArticleStorage) emitAirtable(ctx context.Context, article *models.Article) (*models.SavedFileInfo, error) {
	if s.airtable == nil {
		return nil, fmt.Errorf("Airtable未配置")
	}

	recordID, err := s.airtable.CreateRecord(ctx, article)
	if err != nil {
		return nil, err
	}

	return &models.SavedFileInfo{
		URL:      article.URL,
		Title:    article.Title,
		FilePath: recordID,
		Format:   FormatAirtable,
		SavedAt:  time.Now(),
	}, nil
}

// saveFile 把文章渲染为指定格式写入文件
func (s *ArticleStorage) saveFile(article *models.Article, format string) (*models.SavedFileInfo, error) {
	var data []byte

	switch format {
	case FormatJSON:
		jsonData, err := article.ToJSON()
		if err != nil {
			return nil, fmt.Errorf("序列化文章失败: %w", err)
		}
		data = jsonData
	case FormatText:
		data = []byte(article.ToText())
	case FormatMarkdown:
		data = []byte(renderMarkdown(article))
	}

	filename := generateFilename(article.Title, format)
	path := filepath.Join(s.outputDir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("写入文件失败 [%s]: %w", path, err)
	}

	utils.Infof("💾 已保存: %s", path)
	return &models.SavedFileInfo{
		URL:      article.URL,
		Title:    article.Title,
		FilePath: path,
		Format:   format,
		SavedAt:  time.Now(),
	}, nil
}

// renderMarkdown 渲染文章为Markdown
// 正文HTML经html-to-markdown转换,HTML为空或转换失败时回退小节渲染
func renderMarkdown(article *models.Article) string {
	if strings.TrimSpace(article.Content) == "" {
		return article.ToMarkdown()
	}

	body, err := htmltomarkdown.ConvertString(article.Content)
	if err != nil {
		utils.Warnf("HTML转Markdown失败,回退小节渲染: %v", err)
		return article.ToMarkdown()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", article.Title)
	fmt.Fprintf(&b, "**URL:** %s\n", article.URL)
	fmt.Fprintf(&b, "**Author:** %s\n", article.Author)
	fmt.Fprintf(&b, "**Date:** %s\n", article.PublishDate)
	fmt.Fprintf(&b, "**Category:** %s\n", article.Category)
	b.WriteString("\n---\n\n")
	b.WriteString(body)
	b.WriteString("\n")
	return b.String()
}

// generateFilename 按文章标题生成唯一文件名
// 只保留字母数字和空格、连字符、下划线,空格换成下划线,
// 标题部分截断到50个字符,末尾追加时间戳保证唯一
func generateFilename(title, ext string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune(r)
		}
	}

	safe := strings.ReplaceAll(b.String(), " ", "_")
	if safe == "" {
		safe = "article"
	}
	runes := []rune(safe)
	if len(runes) > maxFilenameTitleLen {
		runes = runes[:maxFilenameTitleLen]
	}

	timestamp := time.Now().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", string(runes), timestamp, ext)
}
