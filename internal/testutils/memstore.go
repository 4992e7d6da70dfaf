// Package testutils provides in-memory stand-ins for the durable store and
// the delivery channel, for tests that exercise several packages together.
package testutils

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strconv"
	"sync"

	"raven-chat/internal/delivery"
	"raven-chat/internal/models"
	"raven-chat/internal/repository"
)

// Connections is an in-memory connections table.
type Connections struct {
	mu    sync.Mutex
	conns map[string]models.Connection
}

func NewConnections() *Connections {
	return &Connections{conns: make(map[string]models.Connection)}
}

func (s *Connections) Put(ctx context.Context, c models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.ConnectionID] = c
	return nil
}

func (s *Connections) Get(ctx context.Context, id string) (models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok {
		return models.Connection{}, repository.ErrNotFound
	}
	return c, nil
}

func (s *Connections) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
	return nil
}

func (s *Connections) ListByRoom(ctx context.Context, roomID string) ([]models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Connection
	for _, c := range s.conns {
		if c.RoomID == roomID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b models.Connection) int { return cmp.Compare(a.ConnectionID, b.ConnectionID) })
	return out, nil
}

func (s *Connections) Scan(ctx context.Context, roomID, token string, pageSize int) (repository.Page[string], error) {
	conns, _ := s.ListByRoom(ctx, roomID)
	var ids []string
	for _, c := range conns {
		if c.ConnectionID > token {
			ids = append(ids, c.ConnectionID)
		}
	}
	page := repository.Page[string]{Keys: ids[:min(len(ids), pageSize)]}
	if len(ids) > pageSize {
		page.Next = page.Keys[len(page.Keys)-1]
	}
	return page, nil
}

func (s *Connections) DeleteBatch(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.conns, id)
	}
	return nil
}

// Len returns the number of stored connections across all rooms.
func (s *Connections) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

type messageKey struct {
	room string
	ts   int64
}

// Messages is an in-memory messages table with a conditional insert.
type Messages struct {
	mu   sync.Mutex
	msgs map[messageKey]models.Message
	// InsertErr, when set, fails every insert.
	InsertErr error
}

func NewMessages() *Messages {
	return &Messages{msgs: make(map[messageKey]models.Message)}
}

func (s *Messages) Insert(ctx context.Context, m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	k := messageKey{m.RoomID, m.TimeSent}
	if _, ok := s.msgs[k]; ok {
		return repository.ErrDuplicate
	}
	s.msgs[k] = m
	return nil
}

func (s *Messages) Query(ctx context.Context, roomID string, after, before int64, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for k, m := range s.msgs {
		if k.room == roomID && k.ts >= after && k.ts <= before {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b models.Message) int { return cmp.Compare(b.TimeSent, a.TimeSent) })
	return out[:min(len(out), limit)], nil
}

func (s *Messages) Scan(ctx context.Context, roomID, token string, pageSize int) (repository.Page[int64], error) {
	start := int64(math.MinInt64)
	if token != "" {
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return repository.Page[int64]{}, err
		}
		start = v
	}
	s.mu.Lock()
	var keys []int64
	for k := range s.msgs {
		if k.room == roomID && k.ts > start {
			keys = append(keys, k.ts)
		}
	}
	s.mu.Unlock()
	slices.Sort(keys)
	page := repository.Page[int64]{Keys: keys[:min(len(keys), pageSize)]}
	if len(keys) > pageSize {
		page.Next = strconv.FormatInt(page.Keys[len(page.Keys)-1], 10)
	}
	return page, nil
}

func (s *Messages) DeleteBatch(ctx context.Context, roomID string, timeSents []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ts := range timeSents {
		delete(s.msgs, messageKey{roomID, ts})
	}
	return nil
}

// All returns every message of a room, oldest first.
func (s *Messages) All(roomID string) []models.Message {
	msgs, _ := s.Query(context.Background(), roomID, math.MinInt64, math.MaxInt64, math.MaxInt)
	slices.Reverse(msgs)
	return msgs
}

// Rooms is an in-memory rooms table.
type Rooms struct {
	mu    sync.Mutex
	rooms map[string]models.Room
	// Gets counts Get calls.
	Gets int
}

func NewRooms(rooms ...models.Room) *Rooms {
	s := &Rooms{rooms: make(map[string]models.Room)}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *Rooms) Get(ctx context.Context, id string) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gets++
	r, ok := s.rooms[id]
	if !ok {
		return models.Room{}, repository.ErrNotFound
	}
	return r, nil
}

func (s *Rooms) Create(ctx context.Context, room models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return repository.ErrDuplicate
	}
	s.rooms[room.ID] = room
	return nil
}

func (s *Rooms) List(ctx context.Context) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.Room) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Rooms) ListByStatus(ctx context.Context, status models.RoomStatus) ([]models.Room, error) {
	all, _ := s.List(ctx)
	var out []models.Room
	for _, r := range all {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Rooms) UpdateStatus(ctx context.Context, id string, from, to models.RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.Status != from {
		return repository.ErrConflict
	}
	r.Status = to
	s.rooms[id] = r
	return nil
}

func (s *Rooms) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	return nil
}

// Channel records every payload sent per connection. Connections listed
// in Gone fail with delivery.ErrGone.
type Channel struct {
	mu   sync.Mutex
	sent map[string][]models.Payload
	gone map[string]bool
}

func NewChannel() *Channel {
	return &Channel{sent: make(map[string][]models.Payload), gone: make(map[string]bool)}
}

func (c *Channel) Send(ctx context.Context, connectionID string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone[connectionID] {
		return delivery.ErrGone
	}
	c.sent[connectionID] = append(c.sent[connectionID], payload.(models.Payload))
	return nil
}

func (c *Channel) MarkGone(connectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gone[connectionID] = true
}

// Sent returns what connectionID has received so far.
func (c *Channel) Sent(connectionID string) []models.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent[connectionID])
}
