package service

import "errors"

var (
	// ErrSearchFailed 搜索失败（向量服务或数据库出错），不携带内部细节
	ErrSearchFailed = errors.New("search failed")

	// ErrCatalogUnavailable 列表/详情读取失败
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrShowNotFound 记录不存在，属于正常结果而非故障
	ErrShowNotFound = errors.New("show not found")
)
