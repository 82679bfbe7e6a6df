// Package pagination tracks page state for list views, either slicing an
// in-memory list (client-side mode) or asking the server for each page
// (server-side mode).
//
// Only currentPage, pageSize and totalItems are stored. TotalPages,
// HasNextPage and HasPrevPage are computed on every call.
package pagination

import (
	"sync"

	"go.uber.org/zap"
)

const (
	DefaultPageSize    = 10
	DefaultMaxPageSize = 100
)

// PageFunc is called in server-side mode after the current page changes.
type PageFunc func(page int) error

// PageSizeFunc is called in server-side mode after the page size changes.
type PageSizeFunc func(pageSize int) error

// PageInfo is the pagination block of a server list response.
type PageInfo struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// Snapshot is a consistent view of the paginator at one instant.
type Snapshot struct {
	CurrentPage int
	PageSize    int
	TotalItems  int
	TotalPages  int
	HasNextPage bool
	HasPrevPage bool
}

// Paginator holds the page state of one list view. It is safe for concurrent use.
type Paginator struct {
	mu          sync.Mutex
	currentPage int
	pageSize    int
	totalItems  int
	maxPageSize int

	onPage     PageFunc
	onPageSize PageSizeFunc
	logger     *zap.Logger
}

// Option configures a Paginator in New.
type Option func(*Paginator)

// WithPageSize sets the initial page size.
func WithPageSize(size int) Option {
	return func(p *Paginator) { p.pageSize = size }
}

// WithMaxPageSize sets the largest accepted page size (default 100).
func WithMaxPageSize(size int) Option {
	return func(p *Paginator) { p.maxPageSize = size }
}

// WithTotalItems sets the initial item count.
func WithTotalItems(total int) Option {
	return func(p *Paginator) { p.totalItems = total }
}

// WithInitialPage sets the starting page.
func WithInitialPage(page int) Option {
	return func(p *Paginator) { p.currentPage = page }
}

// WithServerSide switches to server-side mode. Either callback may be nil.
func WithServerSide(onPage PageFunc, onPageSize PageSizeFunc) Option {
	return func(p *Paginator) {
		p.onPage = onPage
		p.onPageSize = onPageSize
	}
}

// WithLogger sets the logger for callback failures.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Paginator) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Paginator. Out-of-range options are clamped rather than
// rejected.
func New(opts ...Option) *Paginator {
	p := &Paginator{
		currentPage: 1,
		pageSize:    DefaultPageSize,
		maxPageSize: DefaultMaxPageSize,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.maxPageSize < 1 {
		p.maxPageSize = DefaultMaxPageSize
	}
	p.pageSize = clamp(p.pageSize, 1, p.maxPageSize)
	if p.totalItems < 0 {
		p.totalItems = 0
	}
	p.currentPage = p.clampPageLocked(p.currentPage)

	return p
}

// ServerSide reports whether page changes are delegated to callbacks.
func (p *Paginator) ServerSide() bool {
	return p.onPage != nil || p.onPageSize != nil
}

// SetCurrentPage moves to page, clamped into [1, TotalPages]. In server-side
// mode the page callback runs with the clamped value; its error is returned
// but the page change is kept.
func (p *Paginator) SetCurrentPage(page int) error {
	p.mu.Lock()
	p.currentPage = p.clampPageLocked(page)
	clamped := p.currentPage
	p.mu.Unlock()

	return p.notifyPage(clamped)
}

// SetPageSize changes the page size, clamped into [1, maxPageSize], and
// returns to the first page.
func (p *Paginator) SetPageSize(size int) error {
	p.mu.Lock()
	p.pageSize = clamp(size, 1, p.maxPageSize)
	p.currentPage = 1
	clamped := p.pageSize
	p.mu.Unlock()

	if p.onPageSize == nil {
		return nil
	}
	if err := p.onPageSize(clamped); err != nil {
		p.logger.Debug("Page size callback failed", zap.Int("pageSize", clamped), zap.Error(err))
		return err
	}
	return nil
}

// SetTotalItems updates the item count. The current page is pulled back when
// it no longer exists.
func (p *Paginator) SetTotalItems(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if total < 0 {
		total = 0
	}
	p.totalItems = total
	p.currentPage = p.clampPageLocked(p.currentPage)
}

// ApplyServerPage adopts the pagination block returned by the server without
// invoking any callback.
func (p *Paginator) ApplyServerPage(info PageInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if info.Limit > 0 {
		p.pageSize = clamp(info.Limit, 1, p.maxPageSize)
	}
	if info.Total >= 0 {
		p.totalItems = info.Total
	}
	p.currentPage = p.clampPageLocked(info.Page)
}

// NextPage advances one page, staying on the last page.
func (p *Paginator) NextPage() error {
	return p.move(func(current, _ int) int { return current + 1 })
}

// PrevPage goes back one page, staying on the first page.
func (p *Paginator) PrevPage() error {
	return p.move(func(current, _ int) int { return current - 1 })
}

// FirstPage moves to page 1.
func (p *Paginator) FirstPage() error {
	return p.move(func(_, _ int) int { return 1 })
}

// LastPage moves to the last page.
func (p *Paginator) LastPage() error {
	return p.move(func(_, totalPages int) int { return totalPages })
}

func (p *Paginator) move(target func(current, totalPages int) int) error {
	p.mu.Lock()
	p.currentPage = p.clampPageLocked(target(p.currentPage, p.totalPagesLocked()))
	page := p.currentPage
	p.mu.Unlock()

	return p.notifyPage(page)
}

func (p *Paginator) notifyPage(page int) error {
	if p.onPage == nil {
		return nil
	}
	if err := p.onPage(page); err != nil {
		p.logger.Debug("Page callback failed", zap.Int("page", page), zap.Error(err))
		return err
	}
	return nil
}

// CurrentPage returns the 1-based current page.
func (p *Paginator) CurrentPage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPage
}

// PageSize returns the number of items per page.
func (p *Paginator) PageSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageSize
}

// TotalItems returns the item count across all pages.
func (p *Paginator) TotalItems() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalItems
}

// TotalPages returns the page count, 0 for an empty list.
func (p *Paginator) TotalPages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalPagesLocked()
}

// HasNextPage reports whether a later page exists.
func (p *Paginator) HasNextPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPage < p.totalPagesLocked()
}

// HasPrevPage reports whether an earlier page exists.
func (p *Paginator) HasPrevPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPage > 1
}

// Offset is the index of the first item on the current page.
func (p *Paginator) Offset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return (p.currentPage - 1) * p.pageSize
}

// Snapshot returns stored and derived values read under one lock.
func (p *Paginator) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	totalPages := p.totalPagesLocked()
	return Snapshot{
		CurrentPage: p.currentPage,
		PageSize:    p.pageSize,
		TotalItems:  p.totalItems,
		TotalPages:  totalPages,
		HasNextPage: p.currentPage < totalPages,
		HasPrevPage: p.currentPage > 1,
	}
}

// Slice returns the window of items for the current page. It never panics:
// nil input or a page past the end yields an empty slice.
func Slice[T any](p *Paginator, items []T) []T {
	p.mu.Lock()
	start := (p.currentPage - 1) * p.pageSize
	size := p.pageSize
	p.mu.Unlock()

	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (p *Paginator) totalPagesLocked() int {
	if p.totalItems <= 0 {
		return 0
	}
	return (p.totalItems + p.pageSize - 1) / p.pageSize
}

func (p *Paginator) clampPageLocked(page int) int {
	totalPages := p.totalPagesLocked()
	if totalPages == 0 {
		return 1
	}
	return clamp(page, 1, totalPages)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
