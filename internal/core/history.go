package core

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
)

// HistoryManager 已抓取URL的历史管理器
// 多个域名工作器共享同一个实例,用claim/commit两段式协议避免重复入库:
// 工作器先Claim占住URL,入库成功后Commit落盘,中途失败则Release归还,
// 下个周期可以重试。所有URL都先经过归一化再比较。
type HistoryManager struct {
	mu       sync.RWMutex
	seen     map[string]bool // 已成功入库的URL
	claimed  map[string]bool // 已被某个工作器占用、尚未入库的URL
	filePath string
}

// NewHistoryManager 创建历史管理器并加载已有历史
// filePath为空时使用默认文件名
func NewHistoryManager(filePath string) *HistoryManager {
	if filePath == "" {
		filePath = models.DefaultHistoryFile
	}

	h := &HistoryManager{
		seen:     make(map[string]bool),
		claimed:  make(map[string]bool),
		filePath: filePath,
	}
	h.load()
	return h
}

// load 加载历史文件
// 文件不存在按空历史处理;文件损坏时告警并从空历史开始,不阻断运行
func (h *HistoryManager) load() {
	info, err := os.Stat(h.filePath)
	if os.IsNotExist(err) {
		return
	}

	// Docker挂载卷有时会把历史文件路径初始化成目录,删掉重建
	if err == nil && info.IsDir() {
		utils.Warnf("⚠️ 历史文件路径是目录, 删除重建: %s", h.filePath)
		if err := os.RemoveAll(h.filePath); err != nil {
			utils.Warnf("⚠️ 删除目录失败: %v", err)
			return
		}
		if err := h.persist(); err != nil {
			utils.Warnf("⚠️ 初始化历史文件失败: %v", err)
		}
		return
	}

	snap, err := models.LoadHistoryFromFile(h.filePath)
	if err != nil {
		utils.Warnf("⚠️ 历史文件损坏, 从空历史开始: %v", err)
		return
	}

	for _, u := range snap.URLs {
		h.seen[models.NormalizeURL(u)] = true
	}
	utils.Infof("📜 已加载 %d 条抓取历史: %s", len(h.seen), h.filePath)
}

// Claim 尝试占用URL
// 返回false表示URL已入库或已被其他工作器占用,调用方应跳过。
// 检查和占用在同一个锁内完成,两个工作器不可能同时占到同一个URL
func (h *HistoryManager) Claim(rawURL string) bool {
	key := models.NormalizeURL(rawURL)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.seen[key] || h.claimed[key] {
		return false
	}
	h.claimed[key] = true
	return true
}

// Release 归还占用的URL
// 抓取、提取或入库失败时调用,URL回到"未见过"状态,后续周期可重试
func (h *HistoryManager) Release(rawURL string) {
	key := models.NormalizeURL(rawURL)

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.claimed, key)
}

// Commit 确认URL已成功入库并立即落盘
// 只有入库成功后才调用,保证失败的URL不会被错误地记成已抓取
func (h *HistoryManager) Commit(rawURL string) error {
	key := models.NormalizeURL(rawURL)

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.claimed, key)
	h.seen[key] = true
	return h.persistLocked()
}

// IsScraped 检查URL是否已入库
func (h *HistoryManager) IsScraped(rawURL string) bool {
	key := models.NormalizeURL(rawURL)

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seen[key]
}

// Count 已入库URL数量
func (h *HistoryManager) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.seen)
}

// Clear 清空历史并落盘
func (h *HistoryManager) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seen = make(map[string]bool)
	h.claimed = make(map[string]bool)
	if err := h.persistLocked(); err != nil {
		return fmt.Errorf("清空历史失败: %w", err)
	}
	utils.Infof("🧹 抓取历史已清空: %s", h.filePath)
	return nil
}

// persist 加锁后落盘
func (h *HistoryManager) persist() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.persistLocked()
}

// persistLocked 落盘当前历史,调用方必须已持有写锁
func (h *HistoryManager) persistLocked() error {
	urls := make([]string, 0, len(h.seen))
	for u := range h.seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	snap := &models.HistorySnapshot{
		URLs:        urls,
		LastUpdated: time.Now(),
	}
	if err := snap.SaveToFile(h.filePath); err != nil {
		return fmt.Errorf("保存历史文件失败: %w", err)
	}
	return nil
}
