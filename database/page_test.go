package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zkpermit/zkpermit-go/database"
)

func TestNewPage(t *testing.T) {
	tests := []struct {
		name               string
		page, limit, total int64
		totalPages         int64
		hasPrev, hasNext   bool
		skip               int64
	}{
		{name: "empty", page: 1, limit: 10, total: 0, totalPages: 1},
		{name: "single partial page", page: 1, limit: 10, total: 3, totalPages: 1},
		{name: "exact fit", page: 1, limit: 5, total: 10, totalPages: 2, hasNext: true},
		{name: "middle page", page: 2, limit: 5, total: 12, totalPages: 3, hasPrev: true, hasNext: true, skip: 5},
		{name: "last page", page: 3, limit: 5, total: 12, totalPages: 3, hasPrev: true, skip: 10},
		{name: "page clamped to one", page: 0, limit: 5, total: 12, totalPages: 3, hasNext: true},
		{name: "limit clamped to one", page: 1, limit: 0, total: 2, totalPages: 2, hasNext: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := database.NewPage(tt.page, tt.limit, tt.total)
			assert.Equal(t, tt.total, p.TotalDocs)
			assert.Equal(t, tt.totalPages, p.TotalPages)
			assert.Equal(t, tt.hasPrev, p.HasPrevPage)
			assert.Equal(t, tt.hasNext, p.HasNextPage)
			assert.Equal(t, tt.skip, p.Skip())
		})
	}
}
