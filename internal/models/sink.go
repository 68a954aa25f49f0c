package models

import "context"

// ArticleSink 文章入库接口
// 文件写入器和Airtable客户端都实现此接口,
// 工作器只在Emit成功返回后才把URL标记为已抓取
type ArticleSink interface {
	// Name sink名称,用于日志和错误信息
	Name() string

	// Emit 持久化一篇文章,返回保存信息
	// 失败返回*SinkError
	Emit(ctx context.Context, article *Article) (*SavedFileInfo, error)
}
