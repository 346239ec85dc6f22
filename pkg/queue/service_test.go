package queue

import (
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/call"
)

func testService() *Service {
	return &Service{
		defaultPageSize: 20,
		maxPageSize:     100,
	}
}

func TestNormalize(t *testing.T) {
	svc := testService()

	tests := []struct {
		name     string
		params   ListParams
		expected call.QueueQuery
		wantErr  bool
	}{
		{
			name:   "defaults applied",
			params: ListParams{},
			expected: call.QueueQuery{
				Page:      1,
				PageSize:  20,
				SortBy:    "occurred_at",
				SortOrder: "desc",
			},
		},
		{
			name:   "explicit values kept",
			params: ListParams{Page: 3, PageSize: 50, Search: "kickoff", SortBy: "match_confidence", SortOrder: "asc"},
			expected: call.QueueQuery{
				Page:      3,
				PageSize:  50,
				Search:    "kickoff",
				SortBy:    "match_confidence",
				SortOrder: "asc",
			},
		},
		{
			name:   "negative page clamped",
			params: ListParams{Page: -1},
			expected: call.QueueQuery{
				Page:      1,
				PageSize:  20,
				SortBy:    "occurred_at",
				SortOrder: "desc",
			},
		},
		{
			name:   "page size capped",
			params: ListParams{PageSize: 500},
			expected: call.QueueQuery{
				Page:      1,
				PageSize:  100,
				SortBy:    "occurred_at",
				SortOrder: "desc",
			},
		},
		{
			name:    "unknown sort field rejected",
			params:  ListParams{SortBy: "title"},
			wantErr: true,
		},
		{
			name:    "unknown sort order rejected",
			params:  ListParams{SortOrder: "sideways"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := svc.normalize(tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, query)
		})
	}
}
