package pagination

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := New()
		assert.Equal(t, 1, p.CurrentPage())
		assert.Equal(t, DefaultPageSize, p.PageSize())
		assert.Equal(t, 0, p.TotalItems())
		assert.Equal(t, 0, p.TotalPages())
		assert.False(t, p.ServerSide())
	})

	t.Run("options are clamped", func(t *testing.T) {
		p := New(WithPageSize(500), WithMaxPageSize(50), WithTotalItems(-3), WithInitialPage(9))
		assert.Equal(t, 50, p.PageSize())
		assert.Equal(t, 0, p.TotalItems())
		assert.Equal(t, 1, p.CurrentPage())
	})

	t.Run("initial page within range", func(t *testing.T) {
		p := New(WithTotalItems(45), WithInitialPage(3))
		assert.Equal(t, 3, p.CurrentPage())
	})
}

func TestSetCurrentPageClamps(t *testing.T) {
	for _, total := range []int{0, 1, 9, 10, 11, 25, 100} {
		for page := -3; page <= 15; page++ {
			t.Run(fmt.Sprintf("total=%d page=%d", total, page), func(t *testing.T) {
				p := New(WithTotalItems(total))
				require.NoError(t, p.SetCurrentPage(page))

				totalPages := p.TotalPages()
				want := 1
				if totalPages > 0 {
					want = max(1, min(page, totalPages))
				}
				assert.Equal(t, want, p.CurrentPage())
			})
		}
	}
}

func TestSetPageSizeResetsPage(t *testing.T) {
	p := New(WithTotalItems(100), WithMaxPageSize(25))

	steps := []func(){
		func() { _ = p.SetCurrentPage(7) },
		func() { _ = p.LastPage() },
		func() { _ = p.NextPage() },
		func() { p.SetTotalItems(1000); _ = p.SetCurrentPage(40) },
	}

	for i, step := range steps {
		step()
		size := 3 + i*10
		require.NoError(t, p.SetPageSize(size))
		assert.Equal(t, 1, p.CurrentPage(), "step %d", i)
	}

	require.NoError(t, p.SetPageSize(0))
	assert.Equal(t, 1, p.PageSize())
	require.NoError(t, p.SetPageSize(1000))
	assert.Equal(t, 25, p.PageSize())
}

func TestSlice(t *testing.T) {
	items := numbers(25)
	p := New(WithPageSize(10), WithTotalItems(len(items)))

	require.NoError(t, p.SetCurrentPage(2))
	assert.Equal(t, numbers(20)[10:], Slice(p, items))

	require.NoError(t, p.SetCurrentPage(3))
	assert.Equal(t, []int{21, 22, 23, 24, 25}, Slice(p, items))

	require.NoError(t, p.SetCurrentPage(10))
	assert.Equal(t, 3, p.CurrentPage())
	assert.Equal(t, []int{21, 22, 23, 24, 25}, Slice(p, items))

	t.Run("nil input", func(t *testing.T) {
		got := Slice[string](p, nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("page past the end of a shorter list", func(t *testing.T) {
		assert.Empty(t, Slice(p, numbers(5)))
	})
}

func TestDerivedValues(t *testing.T) {
	p := New(WithPageSize(10), WithTotalItems(25))
	assert.Equal(t, 3, p.TotalPages())
	assert.True(t, p.HasNextPage())
	assert.False(t, p.HasPrevPage())
	assert.Equal(t, 0, p.Offset())

	require.NoError(t, p.LastPage())
	assert.False(t, p.HasNextPage())
	assert.True(t, p.HasPrevPage())
	assert.Equal(t, 20, p.Offset())

	// shrinking the list pulls the page back and recomputes derived values
	p.SetTotalItems(12)
	assert.Equal(t, 2, p.TotalPages())
	assert.Equal(t, 2, p.CurrentPage())

	p.SetTotalItems(0)
	assert.Equal(t, 0, p.TotalPages())
	assert.Equal(t, 1, p.CurrentPage())
	assert.False(t, p.HasNextPage())
	assert.False(t, p.HasPrevPage())

	p.SetTotalItems(-5)
	assert.Equal(t, 0, p.TotalItems())
}

func TestNavigation(t *testing.T) {
	p := New(WithPageSize(5), WithTotalItems(12))

	require.NoError(t, p.PrevPage())
	assert.Equal(t, 1, p.CurrentPage())

	require.NoError(t, p.NextPage())
	require.NoError(t, p.NextPage())
	require.NoError(t, p.NextPage())
	assert.Equal(t, 3, p.CurrentPage())

	require.NoError(t, p.FirstPage())
	assert.Equal(t, 1, p.CurrentPage())

	require.NoError(t, p.LastPage())
	assert.Equal(t, 3, p.CurrentPage())

	assert.Equal(t, Snapshot{
		CurrentPage: 3,
		PageSize:    5,
		TotalItems:  12,
		TotalPages:  3,
		HasNextPage: false,
		HasPrevPage: true,
	}, p.Snapshot())
}

func TestServerSide(t *testing.T) {
	var pages, sizes []int
	fetchErr := errors.New("fetch failed")
	failPage := false

	p := New(
		WithTotalItems(100),
		WithServerSide(
			func(page int) error {
				pages = append(pages, page)
				if failPage {
					return fetchErr
				}
				return nil
			},
			func(size int) error {
				sizes = append(sizes, size)
				return nil
			},
		),
	)
	require.True(t, p.ServerSide())

	require.NoError(t, p.SetCurrentPage(50))
	assert.Equal(t, []int{10}, pages, "callback receives the clamped page")

	failPage = true
	err := p.SetCurrentPage(4)
	assert.ErrorIs(t, err, fetchErr)
	assert.Equal(t, 4, p.CurrentPage(), "no rollback when the fetch fails")

	require.NoError(t, p.SetPageSize(20))
	assert.Equal(t, []int{20}, sizes)
	assert.Equal(t, 1, p.CurrentPage())
	assert.Equal(t, []int{10, 4}, pages, "page size change does not call the page callback")
}

func TestApplyServerPage(t *testing.T) {
	calls := 0
	p := New(WithServerSide(func(int) error { calls++; return nil }, nil))

	p.ApplyServerPage(PageInfo{Page: 3, Limit: 20, Total: 95})
	assert.Equal(t, 3, p.CurrentPage())
	assert.Equal(t, 20, p.PageSize())
	assert.Equal(t, 95, p.TotalItems())
	assert.Equal(t, 5, p.TotalPages())
	assert.Equal(t, 0, calls)

	p.ApplyServerPage(PageInfo{Page: 99, Limit: 0, Total: 40})
	assert.Equal(t, 2, p.CurrentPage())
	assert.Equal(t, 20, p.PageSize())
}
