package domain

import "errors"

var (
	// ErrNotConfigured 必需配置缺失（域名列表、密钥等）。
	ErrNotConfigured = errors.New("service not configured")
	// ErrAllocationExhausted 地址分配在尝试上限内未找到空闲地址。
	ErrAllocationExhausted = errors.New("could not allocate a unique address")
	// ErrRecordNotFound 存储中不存在目标记录。
	ErrRecordNotFound = errors.New("record not found")
)
