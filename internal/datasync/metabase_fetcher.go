package datasync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/franksunye/FSOpsAssistant/internal/agenterr"
)

// MetabaseFetcher implements Fetcher against a Metabase "card" query,
// grounded in the original implementation's MetabaseClient: authenticate
// once via /api/session, cache the session token, and re-authenticate on a
// 401 rather than on every call.
type MetabaseFetcher struct {
	baseURL  string
	username string
	password string
	cardID   int
	client   *http.Client
	log      *zap.Logger

	mu    sync.Mutex
	token string
}

func NewMetabaseFetcher(baseURL, username, password string, cardID int, log *zap.Logger) *MetabaseFetcher {
	return &MetabaseFetcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		cardID:   cardID,
		client:   &http.Client{Timeout: 60 * time.Second},
		log:      log,
	}
}

type metabaseQueryResult struct {
	Data struct {
		Cols []struct {
			Name string `json:"name"`
		} `json:"cols"`
		Rows [][]any `json:"rows"`
	} `json:"data"`
}

// Fetch queries the field-service opportunity card and maps its rows to
// RawOpportunity, tolerating the "exts.supervisorName" vs "supervisorName"
// column-name variance the original client normalizes.
func (f *MetabaseFetcher) Fetch(ctx context.Context) ([]RawOpportunity, error) {
	rows, err := f.queryCard(ctx, f.cardID, true)
	if err != nil {
		return nil, agenterr.Fetch(err, "metabase: query card %d failed", f.cardID)
	}

	out := make([]RawOpportunity, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToRaw(r))
	}
	return out, nil
}

func (f *MetabaseFetcher) queryCard(ctx context.Context, cardID int, retryOnAuth bool) ([]map[string]any, error) {
	token, err := f.sessionToken(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/card/%d/query", f.baseURL, cardID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Metabase-Session", token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && retryOnAuth {
		f.invalidateToken()
		return f.queryCard(ctx, cardID, false)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metabase: card query returned status %d", resp.StatusCode)
	}

	var result metabaseQueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	cols := make([]string, len(result.Data.Cols))
	for i, c := range result.Data.Cols {
		cols[i] = c.Name
	}

	records := make([]map[string]any, 0, len(result.Data.Rows))
	for _, row := range result.Data.Rows {
		rec := make(map[string]any, len(cols))
		for i, v := range row {
			if i < len(cols) {
				rec[cols[i]] = v
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (f *MetabaseFetcher) sessionToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	tok := f.token
	f.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	return f.authenticate(ctx)
}

func (f *MetabaseFetcher) invalidateToken() {
	f.mu.Lock()
	f.token = ""
	f.mu.Unlock()
}

func (f *MetabaseFetcher) authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{"username": f.username, "password": f.password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/session", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metabase: authentication returned status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("metabase: authentication response had no session id")
	}

	f.mu.Lock()
	f.token = out.ID
	f.mu.Unlock()
	f.log.Info("metabase: authenticated")
	return out.ID, nil
}

func rowToRaw(rec map[string]any) RawOpportunity {
	supervisor, ok := rec["supervisorName"].(string)
	if !ok {
		supervisor, _ = rec["exts.supervisorName"].(string)
	}

	r := RawOpportunity{
		OrderNum:       str(rec["orderNum"]),
		Name:           str(rec["name"]),
		Address:        str(rec["address"]),
		SupervisorName: supervisor,
		OrgName:        str(rec["orgName"]),
		OrderStatus:    str(rec["orderstatus"]),
	}
	if ct := parseTime(rec["createTime"]); ct != nil {
		r.CreateTime = ct
	}
	return r
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func parseTime(v any) *time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
