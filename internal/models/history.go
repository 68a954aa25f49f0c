package models

import (
	"encoding/json"
	"os"
	"time"
)

// DefaultHistoryFile 默认的历史记录文件名
const DefaultHistoryFile = "scraped_history.json"

// HistorySnapshot 已抓取URL历史的持久化快照
// 对应 scraped_history.json 的文件结构,跨进程重启保留去重状态
type HistorySnapshot struct {
	// URLs 已成功入库的URL列表(归一化后)
	URLs []string `json:"urls"`

	// LastUpdated 最后更新时间
	LastUpdated time.Time `json:"last_updated"`
}

// ToJSON 序列化为JSON
func (h *HistorySnapshot) ToJSON() ([]byte, error) {
	return json.MarshalIndent(h, "", "  ")
}

// FromJSON 从JSON反序列化
func (h *HistorySnapshot) FromJSON(data []byte) error {
	return json.Unmarshal(data, h)
}

// SaveToFile 保存到文件
// 先写临时文件再改名,避免写入中断留下半截历史
func (h *HistorySnapshot) SaveToFile(filepath string) error {
	data, err := h.ToJSON()
	if err != nil {
		return err
	}

	tmp := filepath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath)
}

// LoadHistoryFromFile 从文件加载历史快照
func LoadHistoryFromFile(filepath string) (*HistorySnapshot, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var snap HistorySnapshot
	if err := snap.FromJSON(data); err != nil {
		return nil, err
	}

	return &snap, nil
}
