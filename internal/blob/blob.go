// Package blob 定义邮件正文对象的存取契约。
//
// 正文以渲染后的 HTML 文档存放，键由邮件记录的 BlobKey 字段给出。
package blob

import (
	"context"
	"errors"
)

// ErrNotFound 对象不存在。
var ErrNotFound = errors.New("blob not found")

// Store 定义正文对象存储接口。
type Store interface {
	// Put 写入对象，同键覆盖。
	Put(ctx context.Context, key string, data []byte) error

	// Get 读取对象内容；不存在返回 ErrNotFound。
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete 删除对象。删除不存在的对象不报错。
	Delete(ctx context.Context, key string) error
}
