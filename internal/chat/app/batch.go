package app

import (
	"context"
	"runtime"
	"slices"
	"sync/atomic"
)

const (
	minBatchSize = 5
	maxBatchSize = 10
	// DefaultBatchSize progressive 處理每批數量
	DefaultBatchSize = 8
)

// BatchProgress 每批處理完後發布的進度
type BatchProgress struct {
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// ProgressiveBatchProcessor 分批處理大量資料, 每批完成後發布目前累積的結果並讓出排程
// 同一個 processor 同時只應執行一個 Process
type ProgressiveBatchProcessor[T, R any] struct {
	batchSize int
	transform func(T) (R, bool)

	processed atomic.Int64
	total     atomic.Int64
}

// ClampBatchSize 限制在 5 ~ 10
func ClampBatchSize(n int) int {
	if n <= 0 {
		return DefaultBatchSize
	}
	return min(max(n, minBatchSize), maxBatchSize)
}

// NewProgressiveBatchProcessor transform 回傳 false 的項目會被略過
func NewProgressiveBatchProcessor[T, R any](batchSize int, transform func(T) (R, bool)) *ProgressiveBatchProcessor[T, R] {
	return &ProgressiveBatchProcessor[T, R]{
		batchSize: ClampBatchSize(batchSize),
		transform: transform,
	}
}

// BatchSize 實際使用的 batch size
func (p *ProgressiveBatchProcessor[T, R]) BatchSize() int {
	return p.batchSize
}

// Process 逐批處理 items; ctx 取消時回傳已完成的部分與 ctx.Err()
func (p *ProgressiveBatchProcessor[T, R]) Process(ctx context.Context, items []T, publish func([]R, BatchProgress)) ([]R, error) {
	p.total.Store(int64(len(items)))
	p.processed.Store(0)

	result := make([]R, 0, len(items))
	for start := 0; start < len(items); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := min(start+p.batchSize, len(items))
		for _, item := range items[start:end] {
			if r, ok := p.transform(item); ok {
				result = append(result, r)
			}
		}
		p.processed.Store(int64(end))

		if publish != nil {
			publish(slices.Clone(result), p.snapshot())
		}
		runtime.Gosched()
	}
	return result, nil
}

// MapAll 不分批, 給少量資料使用
func (p *ProgressiveBatchProcessor[T, R]) MapAll(items []T) []R {
	result := make([]R, 0, len(items))
	for _, item := range items {
		if r, ok := p.transform(item); ok {
			result = append(result, r)
		}
	}
	p.total.Store(int64(len(items)))
	p.processed.Store(int64(len(items)))
	return result
}

// Progress 0 ~ 100
func (p *ProgressiveBatchProcessor[T, R]) Progress() float64 {
	return p.snapshot().Percent
}

func (p *ProgressiveBatchProcessor[T, R]) snapshot() BatchProgress {
	total := p.total.Load()
	processed := p.processed.Load()
	progress := BatchProgress{Processed: int(processed), Total: int(total), Percent: 100}
	if total > 0 {
		progress.Percent = float64(processed) / float64(total) * 100
	}
	return progress
}
