package repository

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListFilterOffset(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		want        int
	}{
		{"first page", 1, 10, 0},
		{"third page", 3, 25, 50},
		{"page below one", 0, 10, 0},
		{"no limit", 4, 0, 0},
		{"overflow saturates", math.MaxInt / 10, 100, math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ListFilter{Page: tt.page, Limit: tt.limit}.Offset())
		})
	}
}
