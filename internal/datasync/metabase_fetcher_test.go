package datasync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetabaseFetcherAuthenticatesThenQueriesCard(t *testing.T) {
	var authCalls, queryCalls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/session":
			authCalls++
			json.NewEncoder(w).Encode(map[string]string{"id": "tok-1"})
		case "/api/card/1712/query":
			queryCalls++
			assert.Equal(t, "tok-1", r.Header.Get("X-Metabase-Session"))
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"cols": []map[string]string{
						{"name": "orderNum"}, {"name": "name"}, {"name": "address"},
						{"name": "exts.supervisorName"}, {"name": "orgName"},
						{"name": "createTime"}, {"name": "orderstatus"},
					},
					"rows": [][]any{
						{"O-1", "Jane", "1 Main St", "Sup A", "org-a", "2026-01-01T09:00:00", "PendingAppointment"},
					},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewMetabaseFetcher(srv.URL, "u", "p", 1712, zap.NewNop())
	rows, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "O-1", rows[0].OrderNum)
	assert.Equal(t, "Sup A", rows[0].SupervisorName)
	assert.NotNil(t, rows[0].CreateTime)
	assert.Equal(t, 1, authCalls)
	assert.Equal(t, 1, queryCalls)
}
