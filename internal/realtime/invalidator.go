package realtime

import (
	"log/slog"
	"sync"

	"github.com/simp-lee/stockroom/internal/querycache"
)

// Action is one cache effect of an event.
type Action int

const (
	// MarkListsStale marks every cached list of the resource stale and
	// wakes the mounted views so they refetch.
	MarkListsStale Action = iota + 1
	// MarkDetailStale marks the record named by the event stale.
	MarkDetailStale
	// RemoveDetail drops the record named by the event.
	RemoveDetail
)

func (a Action) String() string {
	switch a {
	case MarkListsStale:
		return "mark_lists_stale"
	case MarkDetailStale:
		return "mark_detail_stale"
	case RemoveDetail:
		return "remove_detail"
	default:
		return "unknown"
	}
}

// Topic maps one event name to the cache actions it triggers.
type Topic struct {
	Event    string
	Resource string
	Actions  []Action
}

// Topics returns the standard table for an entity: "{entity}Created",
// "{entity}Updated" and "{entity}Deleted" acting on resource.
func Topics(entity, resource string) []Topic {
	return []Topic{
		{Event: entity + "Created", Resource: resource, Actions: []Action{MarkListsStale}},
		{Event: entity + "Updated", Resource: resource, Actions: []Action{MarkListsStale, MarkDetailStale}},
		{Event: entity + "Deleted", Resource: resource, Actions: []Action{MarkListsStale, RemoveDetail}},
	}
}

// Invalidator subscribes a topic table to a Source and applies it to the
// query cache.
type Invalidator struct {
	source Source
	cache  *querycache.Cache
	topics map[string]Topic
	logger *slog.Logger

	mu   sync.Mutex
	subs []Subscription
}

// NewInvalidator creates an Invalidator. Nothing is subscribed until Start.
func NewInvalidator(source Source, cache *querycache.Cache, logger *slog.Logger, topics ...Topic) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	byEvent := make(map[string]Topic, len(topics))
	for _, t := range topics {
		byEvent[t.Event] = t
	}
	return &Invalidator{source: source, cache: cache, topics: byEvent, logger: logger}
}

// Start subscribes every topic. Calling Start again before Stop is a no-op.
func (inv *Invalidator) Start() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.subs != nil {
		return
	}
	inv.subs = make([]Subscription, 0, len(inv.topics))
	for event := range inv.topics {
		inv.subs = append(inv.subs, inv.source.On(event, func(ev Event) { inv.Apply(ev) }))
	}
}

// Stop removes every subscription. Calling it again is a no-op.
func (inv *Invalidator) Stop() {
	inv.mu.Lock()
	subs := inv.subs
	inv.subs = nil
	inv.mu.Unlock()

	for _, s := range subs {
		inv.source.Off(s)
	}
}

// Apply runs the actions of the event's topic and reports whether the event
// was known.
func (inv *Invalidator) Apply(ev Event) bool {
	t, ok := inv.topics[ev.Name]
	if !ok {
		return false
	}

	id, hasID := ev.EntityID()
	for _, a := range t.Actions {
		switch a {
		case MarkListsStale:
			inv.cache.InvalidateList(t.Resource)
		case MarkDetailStale, RemoveDetail:
			if !hasID {
				inv.logger.Debug("event carries no entity id", slog.String("event", ev.Name))
				continue
			}
			key := querycache.DetailKey{Resource: t.Resource, ID: id}
			if a == RemoveDetail {
				inv.cache.RemoveDetail(key)
			} else {
				inv.cache.InvalidateDetail(key)
			}
		}
	}
	inv.logger.Debug("applied push event",
		slog.String("event", ev.Name),
		slog.String("resource", t.Resource),
	)
	return true
}
