// Package extractors 把HTML文档提取为结构化文章
//
// 提取按策略链进行:站点专属策略(Elementor、WordPress)在前,
// 通用启发式策略兜底。策略的预检只做廉价的结构检查,
// 不命中的策略快速跳过,不做完整提取。
package extractors

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
)

// Strategy 内容提取策略
type Strategy interface {
	// Name 策略名称,用于日志
	Name() string

	// Matches 判断文档是否符合该策略的结构特征
	// 只做结构预检,必须廉价
	Matches(doc *goquery.Document) bool

	// Extract 从文档提取结构化文章
	// 失败返回*models.ExtractionError
	Extract(doc *goquery.Document, pageURL string) (*models.Article, error)
}

// Chain 按固定优先级依次尝试的策略链
// 新增站点支持时追加策略变体即可,分发循环不变
type Chain struct {
	strategies []Strategy
}

// NewChain 创建默认策略链: Elementor > WordPress > Generic
func NewChain() *Chain {
	return &Chain{
		strategies: []Strategy{
			NewElementorStrategy(),
			NewWordPressStrategy(),
			NewGenericStrategy(),
		},
	}
}

// Extract 依次尝试策略,第一个预检命中的策略生效
// 通用策略永远命中,链本身不会出现"无策略匹配"
func (c *Chain) Extract(doc *goquery.Document, pageURL string) (*models.Article, error) {
	for _, s := range c.strategies {
		if !s.Matches(doc) {
			continue
		}
		utils.Debugf("提取策略命中: %s (%s)", s.Name(), pageURL)
		return s.Extract(doc, pageURL)
	}

	// 通用策略兜底,正常情况下到不了这里
	return nil, &models.ExtractionError{URL: pageURL, Reason: "没有可用的提取策略"}
}
