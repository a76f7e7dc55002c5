package listview

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/filter"
	"github.com/simp-lee/stockroom/internal/listctl"
	"github.com/simp-lee/stockroom/internal/pagestate"
	"github.com/simp-lee/stockroom/internal/querycache"
	"github.com/simp-lee/stockroom/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testResource = "inventory/items"

// envelope decodes both response shapes.
type envelope struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

// recordingFetcher serves 95 synthetic rows and records every query.
type recordingFetcher struct {
	mu      sync.Mutex
	queries []listctl.Query
}

func (f *recordingFetcher) fetch(_ context.Context, q listctl.Query) (domain.ListResult[string], error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	const total = 95
	var rows []string
	for i := (q.Page - 1) * q.PageSize; i < total && i < q.Page*q.PageSize; i++ {
		rows = append(rows, fmt.Sprintf("row-%d", i))
	}
	return domain.ListResult[string]{Data: rows, Total: total}, nil
}

func (f *recordingFetcher) last() listctl.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return listctl.Query{}
	}
	return f.queries[len(f.queries)-1]
}

func testFilters() filter.Config {
	return filter.Config{
		Fields: []filter.Field{
			filter.Search{Key: "search", Placeholder: "Search items"},
			filter.Select{Key: "category", Label: "Category", Options: []filter.Option{
				{Value: "all", Label: "All"}, {Value: "CHEMICAL", Label: "Chemical"},
			}},
			filter.Sort{Key: "sortBy", Options: []filter.Option{{Value: "name", Label: "Name"}}},
			filter.SortOrderToggle{Key: "sortOrder"},
		},
		Initial:   filter.Values{"search": "", "category": "all", "sortBy": "name", "sortOrder": "asc"},
		ResetOn:   []string{"search", "category"},
		Sentinels: filter.Values{"category": "all"},
	}
}

type testEnv struct {
	router  *gin.Engine
	ctl     *listctl.Controller[string]
	handler *Handler[string]
	fetcher *recordingFetcher
	pages   *pagestate.Store
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	pages := pagestate.New(store.NewKV(setupTestDB(t)), nil)
	f := &recordingFetcher{}
	ctl, err := listctl.New(context.Background(), listctl.Options[string]{
		Resource: testResource,
		Filters:  testFilters(),
		Fetch:    f.fetch,
		Pages:    pages,
		Cache:    querycache.New(),
	})
	if err != nil {
		t.Fatalf("listctl.New: %v", err)
	}
	h := NewHandler(ctl, nil, filter.WithDelay(5*time.Millisecond))
	t.Cleanup(func() {
		h.Close()
		ctl.Close()
	})

	r := gin.New()
	h.Register(r.Group("/items"))

	waitFor(t, "initial load", func() bool { return ctl.View().Total == 95 })
	return &testEnv{router: r, ctl: ctl, handler: h, fetcher: f, pages: pages}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w, env
}

func decodeView(t *testing.T, raw json.RawMessage) listctl.View[string] {
	t.Helper()
	var v listctl.View[string]
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func TestView(t *testing.T) {
	e := newTestEnv(t)

	w, env := e.do(t, http.MethodGet, "/items/view", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	v := decodeView(t, env.Data)
	if v.Page != 1 || v.PageSize != 20 || v.TotalPages != 5 || len(v.Data) != 20 {
		t.Errorf("unexpected view %+v", v)
	}
	if v.IsLoading || v.IsError {
		t.Errorf("view should be settled: %+v", v)
	}
	if len(v.Pages) != 5 || !v.Pages[0].Current {
		t.Errorf("unexpected page links %+v", v.Pages)
	}
}

func TestFilters(t *testing.T) {
	e := newTestEnv(t)

	_, env := e.do(t, http.MethodGet, "/items/filters", "")
	var widgets []filter.Widget
	if err := json.Unmarshal(env.Data, &widgets); err != nil {
		t.Fatalf("decode widgets: %v", err)
	}
	if len(widgets) != 4 {
		t.Fatalf("expected 4 widgets, got %d", len(widgets))
	}
	if widgets[0].Type != "search" || widgets[1].Value != "all" {
		t.Errorf("unexpected widgets %+v", widgets)
	}
}

func TestSetPage_PersistsAndFetches(t *testing.T) {
	e := newTestEnv(t)

	w, env := e.do(t, http.MethodPut, "/items/view/page", `{"page":3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if v := decodeView(t, env.Data); v.Page != 3 {
		t.Errorf("expected page 3, got %d", v.Page)
	}
	if got := e.pages.Get(context.Background(), testResource); got.Page != 3 {
		t.Errorf("persisted page = %d; want 3", got.Page)
	}
	waitFor(t, "page 3 fetch", func() bool { return e.fetcher.last().Page == 3 })
}

func TestSetPage_Invalid(t *testing.T) {
	e := newTestEnv(t)

	w, env := e.do(t, http.MethodPut, "/items/view/page", `{"page":0}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if _, ok := env.Errors["page"]; !ok {
		t.Errorf("expected page field error, got %v", env.Errors)
	}

	w, env = e.do(t, http.MethodPut, "/items/view/page", `{"page":99}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range page, got %d", w.Code)
	}
	if env.Errors["page"] != "Page is out of range" {
		t.Errorf("unexpected errors %v", env.Errors)
	}
	if e.ctl.Page() != 1 {
		t.Errorf("page should stay 1, got %d", e.ctl.Page())
	}
}

func TestSetPageSize(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPut, "/items/view/page", `{"page":2}`)
	if e.ctl.Page() != 2 {
		t.Fatalf("setup: page = %d", e.ctl.Page())
	}

	w, env := e.do(t, http.MethodPut, "/items/view/page-size", `{"pageSize":50}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	v := decodeView(t, env.Data)
	if v.Page != 1 || v.PageSize != 50 {
		t.Errorf("expected page 1 size 50, got %d/%d", v.Page, v.PageSize)
	}
	if got := e.pages.Get(context.Background(), testResource); got != (domain.PageState{Page: 1, PageSize: 50}) {
		t.Errorf("persisted state = %+v", got)
	}

	w, env = e.do(t, http.MethodPut, "/items/view/page-size", `{"pageSize":15}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if _, ok := env.Errors["pageSize"]; !ok {
		t.Errorf("expected pageSize error, got %v", env.Errors)
	}
}

func TestSetFilter(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPut, "/items/view/page", `{"page":2}`)

	w, env := e.do(t, http.MethodPut, "/items/view/filters/category", `{"value":"CHEMICAL"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	v := decodeView(t, env.Data)
	if v.Page != 1 || v.Filters["category"] != "CHEMICAL" {
		t.Errorf("expected reset to page 1 with category, got %+v", v)
	}
	waitFor(t, "filtered fetch", func() bool { return e.fetcher.last().Filters["category"] == "CHEMICAL" })

	w, _ = e.do(t, http.MethodPut, "/items/view/filters/colour", `{"value":"red"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown filter: expected 400, got %d", w.Code)
	}
}

func TestSearch_Debounced(t *testing.T) {
	e := newTestEnv(t)

	w, env := e.do(t, http.MethodPut, "/items/view/search", `{"value":"bolt"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var s SearchState
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("decode search state: %v", err)
	}
	if s.Value != "bolt" {
		t.Errorf("search value = %q", s.Value)
	}
	waitFor(t, "search fetch", func() bool { return e.fetcher.last().Filters["search"] == "bolt" })
	if got := e.ctl.Filters()["search"]; got != "bolt" {
		t.Errorf("filter state search = %q", got)
	}
}

func postKey(t *testing.T, e *testEnv, body string) KeyResponse[string] {
	t.Helper()
	w, env := e.do(t, http.MethodPost, "/items/view/keys", body)
	if w.Code != http.StatusOK {
		t.Fatalf("keys: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp KeyResponse[string]
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode key response: %v", err)
	}
	return resp
}

func TestKeys_PaginationShortcuts(t *testing.T) {
	e := newTestEnv(t)

	if resp := postKey(t, e, `{"key":"ArrowRight"}`); !resp.Handled || resp.View.Page != 2 {
		t.Errorf("ArrowRight: %+v", resp)
	}
	waitFor(t, "page 2 load", func() bool { return !e.ctl.View().IsFetching })
	if resp := postKey(t, e, `{"key":"ArrowDown"}`); !resp.Handled || resp.View.Page != 5 {
		t.Errorf("ArrowDown: handled=%v page=%d", resp.Handled, resp.View.Page)
	}
	if resp := postKey(t, e, `{"key":"ArrowRight","inEditable":true}`); resp.Handled {
		t.Error("shortcuts must be ignored while typing")
	}
}

func TestKeys_SearchFocusAndEscape(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPut, "/items/view/search", `{"value":"nut"}`)
	waitFor(t, "search applied", func() bool { return e.ctl.Filters()["search"] == "nut" })

	resp := postKey(t, e, `{"key":"/"}`)
	if !resp.Handled || resp.Search == nil || !resp.Search.Focused {
		t.Fatalf("slash should focus search: %+v", resp)
	}

	// Arrow keys belong to the input while it has focus.
	if resp := postKey(t, e, `{"key":"ArrowRight"}`); resp.Handled {
		t.Error("ArrowRight should not page while search is focused")
	}

	resp = postKey(t, e, `{"key":"Escape"}`)
	if !resp.Handled || resp.Search.Focused || resp.Search.Value != "" {
		t.Errorf("Escape should clear and blur: %+v", resp.Search)
	}
	if got := e.ctl.Filters()["search"]; got != "" {
		t.Errorf("Escape should clear the filter immediately, got %q", got)
	}
}

func TestFocusAndBlur(t *testing.T) {
	e := newTestEnv(t)

	_, env := e.do(t, http.MethodPost, "/items/view/search/focus", "")
	var s SearchState
	_ = json.Unmarshal(env.Data, &s)
	if !s.Focused {
		t.Error("expected focused")
	}
	_, env = e.do(t, http.MethodPost, "/items/view/search/blur", "")
	_ = json.Unmarshal(env.Data, &s)
	if s.Focused {
		t.Error("expected blurred")
	}
}

func TestRefetch(t *testing.T) {
	e := newTestEnv(t)
	e.fetcher.mu.Lock()
	before := len(e.fetcher.queries)
	e.fetcher.mu.Unlock()

	w, _ := e.do(t, http.MethodPost, "/items/view/refetch", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	waitFor(t, "refetch", func() bool {
		e.fetcher.mu.Lock()
		defer e.fetcher.mu.Unlock()
		return len(e.fetcher.queries) > before
	})
}

func TestStream(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/items/view/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	events := make(chan listctl.View[string], 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			if data, ok := strings.CutPrefix(line, "data:"); ok {
				var v listctl.View[string]
				if json.Unmarshal([]byte(data), &v) != nil {
					continue
				}
				select {
				case events <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	next := func() listctl.View[string] {
		t.Helper()
		select {
		case v := <-events:
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for an event")
			return listctl.View[string]{}
		}
	}

	if v := next(); v.Page != 1 {
		t.Errorf("first event page = %d", v.Page)
	}
	if err := e.ctl.SetPage(context.Background(), 4); err != nil {
		t.Fatalf("SetPage: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-events:
			if v.Page == 4 {
				return
			}
		case <-deadline:
			t.Fatal("no event for page 4")
		}
	}
}
