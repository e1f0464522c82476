package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{0, 0},
		{1, 1},
		{6, 1},
		{7, 2},
		{12, 2},
		{13, 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.total, MessagePageSize), "total=%d", tt.total)
	}
}

func TestPaginate(t *testing.T) {
	items := make([]int, 13)
	for i := range items {
		items[i] = i
	}

	first := Paginate(items, 1, 6)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, first.Items)
	assert.Equal(t, 3, first.TotalPages)
	assert.Equal(t, 13, first.Total)

	last := Paginate(items, 3, 6)
	assert.Equal(t, []int{12}, last.Items)

	beyond := Paginate(items, 9, 6)
	assert.Empty(t, beyond.Items)
	assert.False(t, beyond.Empty())

	clamped := Paginate(items, -2, 0)
	assert.Equal(t, 1, clamped.Page)
	assert.Equal(t, MessagePageSize, clamped.PageSize)
}

func TestPaginate_EmptySet(t *testing.T) {
	page := Paginate([]Message{}, 1, MessagePageSize)
	assert.True(t, page.Empty())
	assert.Equal(t, 0, page.TotalPages)
	assert.Equal(t, 1, page.Page)
	assert.NotNil(t, page.Items)
}
