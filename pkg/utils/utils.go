// Package utils 通用小工具
package utils

import "strconv"

const (
	// DefaultPageSize 未指定时的每页条数
	DefaultPageSize = 10
	// MaxPageSize 每页条数上限
	MaxPageSize = 1000
)

// Pagination 分页信息
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	Pages    int64 `json:"pages"`
}

// NewPagination 创建分页信息，页码从 1 开始，越界参数取默认值或上限
func NewPagination(page, pageSize int, total int64) *Pagination {
	page = max(page, 1)
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	return &Pagination{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Pages:    (total + int64(pageSize) - 1) / int64(pageSize),
	}
}

// ParsePagination 解析查询参数；page_size 缺失或无效时返回 false，调用方应返回全部结果
func ParsePagination(pageRaw, sizeRaw string, total int64) (*Pagination, bool) {
	size, err := strconv.Atoi(sizeRaw)
	if err != nil || size <= 0 {
		return nil, false
	}
	page, _ := strconv.Atoi(pageRaw)
	return NewPagination(page, size, total), true
}

// Offset 当前页起始下标
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit 每页条数
func (p *Pagination) Limit() int {
	return p.PageSize
}

// Paginate 截取 items 中属于当前页的部分，越界时返回空切片
func Paginate[T any](items []T, p *Pagination) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := min(start+p.Limit(), len(items))
	return items[start:end]
}
