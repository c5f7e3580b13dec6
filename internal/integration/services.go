package integration

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/babybuddy"
)

// Service names.
const (
	ServiceAddChild        = "add_child"
	ServiceAddFeeding      = "add_feeding"
	ServiceAddDiaperChange = "add_diaper_change"
	ServiceAddSleep        = "add_sleep"
	ServiceAddTemperature  = "add_temperature"
	ServiceAddTummyTime    = "add_tummy_time"
	ServiceAddWeight       = "add_weight"
	ServiceAddNote         = "add_note"
	ServiceUpdateEntry     = "update_entry"
	ServiceDeleteLastEntry = "delete_last_entry"
)

// Value sets accepted by Baby Buddy.
var (
	FeedingTypes   = []string{"breast milk", "formula", "fortified breast milk", "solid food"}
	FeedingMethods = []string{"bottle", "left breast", "right breast", "both breasts", "parent fed", "self fed"}
	DiaperColors   = []string{"black", "brown", "green", "yellow"}
)

// Handler performs a validated service call against one entry.
// It returns the record the server created or updated, or nil.
type Handler func(ctx context.Context, e *Entry, v url.Values) (babybuddy.Record, error)

// Service is a callable operation with its input schema.
type Service struct {
	Name    string
	Schema  Schema
	Handler Handler
}

// Services is the set of currently registered services.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Services struct {
	mu     sync.RWMutex
	byName map[string]Service
}

// NewServices creates an empty service set.
func NewServices() *Services {
	return &Services{byName: make(map[string]Service)}
}

// Register adds or replaces a service.
func (s *Services) Register(svc Service) {
	s.mu.Lock()
	s.byName[svc.Name] = svc
	s.mu.Unlock()
}

// Unregister removes a service, reporting whether it was registered.
func (s *Services) Unregister(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byName[name]
	delete(s.byName, name)
	return ok
}

// Lookup returns a registered service.
func (s *Services) Lookup(name string) (Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.byName[name]
	return svc, ok
}

// Names returns the registered service names in sorted order.
func (s *Services) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// DefaultServices returns the services registered when the first entry is set up.
func DefaultServices() []Service {
	child := Field{Name: "child", Kind: KindInt, Required: true}
	notes := Field{Name: "notes", Kind: KindString}

	return []Service{
		{
			Name: ServiceAddChild,
			Schema: Schema{Fields: []Field{
				{Name: "first_name", Kind: KindString, Required: true},
				{Name: "last_name", Kind: KindString, Required: true},
				{Name: "birth_date", Kind: KindDate, DefaultNow: true},
			}},
			Handler: post(babybuddy.ChildrenEndpoint),
		},
		{
			Name: ServiceAddFeeding,
			Schema: Schema{
				Fields: []Field{
					child,
					{Name: "type", Kind: KindString, Required: true, Options: FeedingTypes},
					{Name: "method", Kind: KindString, Required: true, Options: FeedingMethods},
					{Name: "start", Kind: KindTime, Required: true},
					{Name: "end", Kind: KindTime, DefaultNow: true},
					{Name: "amount", Kind: KindFloat},
					notes,
				},
				Check: startBeforeEnd,
			},
			Handler: post("feedings"),
		},
		{
			Name: ServiceAddDiaperChange,
			Schema: Schema{Fields: []Field{
				child,
				{Name: "time", Kind: KindTime, DefaultNow: true},
				{Name: "wet", Kind: KindBool},
				{Name: "solid", Kind: KindBool},
				{Name: "color", Kind: KindString, Options: DiaperColors},
				{Name: "amount", Kind: KindFloat},
				notes,
			}},
			Handler: post("changes"),
		},
		{
			Name: ServiceAddSleep,
			Schema: Schema{
				Fields: []Field{
					child,
					{Name: "start", Kind: KindTime, Required: true},
					{Name: "end", Kind: KindTime, DefaultNow: true},
					notes,
				},
				Check: startBeforeEnd,
			},
			Handler: post("sleep"),
		},
		{
			Name: ServiceAddTemperature,
			Schema: Schema{Fields: []Field{
				child,
				{Name: "temperature", Kind: KindFloat, Required: true},
				{Name: "time", Kind: KindTime, DefaultNow: true},
				notes,
			}},
			Handler: post("temperature"),
		},
		{
			Name: ServiceAddTummyTime,
			Schema: Schema{
				Fields: []Field{
					child,
					{Name: "start", Kind: KindTime, Required: true},
					{Name: "end", Kind: KindTime, DefaultNow: true},
					{Name: "milestone", Kind: KindString},
				},
				Check: startBeforeEnd,
			},
			Handler: post("tummy-times"),
		},
		{
			Name: ServiceAddWeight,
			Schema: Schema{Fields: []Field{
				child,
				{Name: "weight", Kind: KindFloat, Required: true},
				{Name: "date", Kind: KindDate, DefaultNow: true},
				notes,
			}},
			Handler: post("weight"),
		},
		{
			Name: ServiceAddNote,
			Schema: Schema{Fields: []Field{
				child,
				{Name: "note", Kind: KindString, Required: true},
				{Name: "time", Kind: KindTime, DefaultNow: true},
			}},
			Handler: post("notes"),
		},
		{
			Name: ServiceUpdateEntry,
			Schema: Schema{
				Fields: []Field{
					{Name: "endpoint", Kind: KindString, Required: true, Options: endpointKeys()},
					{Name: "entry_id", Kind: KindInt, Required: true},
					{Name: "start", Kind: KindTime},
					{Name: "end", Kind: KindTime},
					{Name: "time", Kind: KindTime},
					notes,
				},
				Check: func(v url.Values) error {
					if len(v) <= 2 {
						return errors.New("nothing to update")
					}
					return startBeforeEnd(v)
				},
			},
			Handler: updateEntry,
		},
		{
			Name: ServiceDeleteLastEntry,
			Schema: Schema{Fields: []Field{
				child,
				{Name: "endpoint", Kind: KindString, Required: true, Options: endpointKeys()},
			}},
			Handler: deleteLastEntry,
		},
	}
}

func endpointKeys() []string {
	eps := babybuddy.Endpoints()
	keys := make([]string, len(eps))
	for i, ep := range eps {
		keys[i] = ep.Key
	}
	return keys
}

func post(endpoint string) Handler {
	return func(ctx context.Context, e *Entry, v url.Values) (babybuddy.Record, error) {
		return e.Client.Post(ctx, endpoint, v)
	}
}

func updateEntry(ctx context.Context, e *Entry, v url.Values) (babybuddy.Record, error) {
	endpoint := v.Get("endpoint")
	id, err := strconv.Atoi(v.Get("entry_id"))
	if err != nil {
		return nil, fmt.Errorf("%w: entry_id: %w", ErrInvalidCall, err)
	}
	v.Del("endpoint")
	v.Del("entry_id")
	return e.Client.Patch(ctx, endpoint, id, v)
}

func deleteLastEntry(ctx context.Context, e *Entry, v url.Values) (babybuddy.Record, error) {
	endpoint := v.Get("endpoint")
	childID, err := strconv.Atoi(v.Get("child"))
	if err != nil {
		return nil, fmt.Errorf("%w: child: %w", ErrInvalidCall, err)
	}

	rec, ok := e.Coordinator.Snapshot().Latest(childID, endpoint)
	if !ok {
		return nil, fmt.Errorf("%w: no %s loaded for child %d", ErrNoRecord, endpoint, childID)
	}
	id, ok := rec.ID()
	if !ok {
		return nil, fmt.Errorf("%w: child %d has no %s", ErrNoRecord, childID, endpoint)
	}
	if err := e.Client.Delete(ctx, endpoint, id); err != nil {
		return nil, err
	}
	return nil, nil
}

// startBeforeEnd rejects an interval that ends before it starts.
func startBeforeEnd(v url.Values) error {
	start, end := v.Get("start"), v.Get("end")
	if start == "" || end == "" {
		return nil
	}
	s, err1 := time.Parse(time.RFC3339, start)
	e, err2 := time.Parse(time.RFC3339, end)
	if err1 != nil || err2 != nil {
		return nil
	}
	if e.Before(s) {
		return fmt.Errorf("%w: end %s is before start %s", babybuddy.ErrValidation, end, start)
	}
	return nil
}
