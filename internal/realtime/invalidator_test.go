package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/simp-lee/stockroom/internal/querycache"
)

// fakeSource records handlers and lets tests emit events.
type fakeSource struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Subscription]Handler
	ons      int
	offs     int
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: make(map[Subscription]Handler)}
}

func (f *fakeSource) On(event string, h Handler) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.ons++
	sub := Subscription{event: event, id: f.nextID}
	f.handlers[sub] = h
	return sub
}

func (f *fakeSource) Off(sub Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[sub]; ok {
		f.offs++
		delete(f.handlers, sub)
	}
}

func (f *fakeSource) emit(name, data string) {
	f.mu.Lock()
	var hs []Handler
	for sub, h := range f.handlers {
		if sub.event == name {
			hs = append(hs, h)
		}
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(Event{Name: name, Data: json.RawMessage(data)})
	}
}

const items = "inventory/items"

func TestTopics(t *testing.T) {
	got := Topics("item", items)
	want := []Topic{
		{Event: "itemCreated", Resource: items, Actions: []Action{MarkListsStale}},
		{Event: "itemUpdated", Resource: items, Actions: []Action{MarkListsStale, MarkDetailStale}},
		{Event: "itemDeleted", Resource: items, Actions: []Action{MarkListsStale, RemoveDetail}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Topics() mismatch (-want +got):\n%s", diff)
	}
}

func seededCache() *querycache.Cache {
	c := querycache.New()
	c.Put(querycache.Key{Resource: items, Page: 1, PageSize: 20}, "page-1")
	c.Put(querycache.Key{Resource: items, Page: 2, PageSize: 20}, "page-2")
	c.Put(querycache.Key{Resource: "inventory/suppliers", Page: 1, PageSize: 20}, "suppliers")
	c.PutDetail(querycache.DetailKey{Resource: items, ID: 7}, "item-7")
	c.PutDetail(querycache.DetailKey{Resource: items, ID: 8}, "item-8")
	return c
}

func listStale(c *querycache.Cache, resource string, page int) bool {
	e, _ := c.Get(querycache.Key{Resource: resource, Page: page, PageSize: 20})
	return e.Stale
}

func TestInvalidator_ItemDeleted(t *testing.T) {
	cache := seededCache()
	refetches := 0
	cache.Watch(items, func() { refetches++ })

	inv := NewInvalidator(newFakeSource(), cache, nil, Topics("item", items)...)
	if !inv.Apply(Event{Name: "itemDeleted", Data: json.RawMessage(`7`)}) {
		t.Fatal("itemDeleted should be handled")
	}

	if _, ok := cache.GetDetail(querycache.DetailKey{Resource: items, ID: 7}); ok {
		t.Error("detail 7 should be removed")
	}
	if e, _ := cache.GetDetail(querycache.DetailKey{Resource: items, ID: 8}); e.Stale {
		t.Error("detail 8 should be untouched")
	}
	if !listStale(cache, items, 1) || !listStale(cache, items, 2) {
		t.Error("item lists should be stale")
	}
	if listStale(cache, "inventory/suppliers", 1) {
		t.Error("supplier list should be fresh")
	}
	if refetches != 1 {
		t.Errorf("watcher ran %d times; want 1", refetches)
	}
}

func TestInvalidator_ItemUpdated(t *testing.T) {
	cache := seededCache()
	inv := NewInvalidator(newFakeSource(), cache, nil, Topics("item", items)...)
	inv.Apply(Event{Name: "itemUpdated", Data: json.RawMessage(`{"id":8}`)})

	e, ok := cache.GetDetail(querycache.DetailKey{Resource: items, ID: 8})
	if !ok || !e.Stale {
		t.Errorf("detail 8 = %+v, %v; want stale entry", e, ok)
	}
	if !listStale(cache, items, 1) {
		t.Error("item list should be stale")
	}
}

func TestInvalidator_CreatedAndUnknown(t *testing.T) {
	cache := seededCache()
	inv := NewInvalidator(newFakeSource(), cache, nil, Topics("item", items)...)

	if inv.Apply(Event{Name: "supplierCreated"}) {
		t.Error("unknown event should not be handled")
	}
	if listStale(cache, items, 1) {
		t.Error("unknown event touched the cache")
	}

	inv.Apply(Event{Name: "itemCreated", Data: json.RawMessage(`{"id":99}`)})
	if !listStale(cache, items, 1) {
		t.Error("itemCreated should mark lists stale")
	}
	if e, _ := cache.GetDetail(querycache.DetailKey{Resource: items, ID: 7}); e.Stale {
		t.Error("itemCreated should not touch details")
	}
}

func TestInvalidator_MissingIDStillMarksLists(t *testing.T) {
	cache := seededCache()
	inv := NewInvalidator(newFakeSource(), cache, nil, Topics("item", items)...)
	inv.Apply(Event{Name: "itemDeleted"})

	if !listStale(cache, items, 1) {
		t.Error("lists should be stale")
	}
	if _, ok := cache.GetDetail(querycache.DetailKey{Resource: items, ID: 7}); !ok {
		t.Error("no detail should be removed without an id")
	}
}

func TestInvalidator_StartStopIdempotent(t *testing.T) {
	src := newFakeSource()
	cache := seededCache()
	inv := NewInvalidator(src, cache, nil, Topics("item", items)...)

	inv.Start()
	inv.Start()
	if src.ons != 3 {
		t.Errorf("On called %d times; want 3", src.ons)
	}

	src.emit("itemDeleted", `7`)
	if _, ok := cache.GetDetail(querycache.DetailKey{Resource: items, ID: 7}); ok {
		t.Error("emitted event should reach the invalidator")
	}

	inv.Stop()
	inv.Stop()
	if src.offs != 3 || len(src.handlers) != 0 {
		t.Errorf("offs=%d handlers=%d; want 3, 0", src.offs, len(src.handlers))
	}

	src.emit("itemDeleted", `8`)
	if _, ok := cache.GetDetail(querycache.DetailKey{Resource: items, ID: 8}); !ok {
		t.Error("event after Stop should be ignored")
	}

	inv.Start()
	if len(src.handlers) != 3 {
		t.Errorf("restart registered %d handlers; want 3", len(src.handlers))
	}
}
