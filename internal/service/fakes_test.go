package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"busmate/internal/model"
	"busmate/internal/repository"
)

var errStorage = errors.New("storage unavailable")

type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[string]*model.User
	failGet   bool
	failQuota bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (r *fakeUserRepo) put(u *model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.UserID] = u
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet {
		return nil, errStorage
	}
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) List(ctx context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *fakeUserRepo) Upsert(ctx context.Context, id string, p model.Profile) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		u = &model.User{UserID: id, CreatedAt: time.Now()}
		r.users[id] = u
	}
	if p.FullName != "" {
		u.FullName = &p.FullName
	}
	if p.Email != "" {
		u.Email = &p.Email
	}
	if p.Phone != "" {
		u.Phone = &p.Phone
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) Block(ctx context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsBlocked = true
	u.BlockedReason = &reason
	return nil
}

func (r *fakeUserRepo) Unblock(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsBlocked = false
	u.BlockedReason = nil
	u.NoShowCount = 0
	return nil
}

func (r *fakeUserRepo) SetAdmin(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsAdmin = true
	return nil
}

func (r *fakeUserRepo) IncrementNoShow(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	u.NoShowCount++
	return u.NoShowCount, nil
}

func (r *fakeUserRepo) ConsumeDailyRequest(ctx context.Context, id, date string, limit int) (model.QuotaDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failQuota {
		return model.QuotaDecision{}, errStorage
	}
	u, ok := r.users[id]
	if !ok {
		return model.QuotaDecision{Allowed: true, Count: 0, Remaining: limit, Limit: limit}, nil
	}
	dec, _ := u.ConsumeDailyRequest(date, limit)
	return dec, nil
}

func (r *fakeUserRepo) ResetDailyLimit(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.DailyRequestCount = 0
	u.LastRequestDate = nil
	return nil
}

func (r *fakeUserRepo) ResetAllDailyLimits(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		u.DailyRequestCount = 0
		u.LastRequestDate = nil
	}
	return int64(len(r.users)), nil
}

type fakeAccessRepo struct {
	mu      sync.Mutex
	records map[string]*model.DailyAccessRecord
	fail    bool
}

func newFakeAccessRepo() *fakeAccessRepo {
	return &fakeAccessRepo{records: make(map[string]*model.DailyAccessRecord)}
}

func (r *fakeAccessRepo) CheckAndAdmit(ctx context.Context, date, userID string, limit int) (model.AccessDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return model.AccessDecision{}, errStorage
	}
	rec, ok := r.records[date]
	if !ok {
		rec = &model.DailyAccessRecord{Date: date}
		r.records[date] = rec
	}
	dec, _ := rec.Admit(userID, limit)
	return dec, nil
}

func (r *fakeAccessRepo) GetDailyStats(ctx context.Context, date string, limit int) (model.DailyStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[date]
	var ids []string
	if rec != nil {
		ids = append(ids, rec.UserIDs...)
	}
	remaining := limit - len(ids)
	if remaining < 0 {
		remaining = 0
	}
	if ids == nil {
		ids = []string{}
	}
	return model.DailyStats{Date: date, UniqueUsers: len(ids), RemainingSlots: remaining, UserIDs: ids}, nil
}

func (r *fakeAccessRepo) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]*model.DailyAccessRecord)
	return nil
}

func (r *fakeAccessRepo) DeleteOlderThan(ctx context.Context, cutoff string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for date := range r.records {
		if date < cutoff {
			delete(r.records, date)
			n++
		}
	}
	return n, nil
}

type fakeBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	order    []string
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[string]*model.Booking)}
}

func (r *fakeBookingRepo) Create(ctx context.Context, b *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = int64(len(r.order) + 1)
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	r.bookings[b.BookingID] = &cp
	r.order = append(r.order, b.BookingID)
	return nil
}

func (r *fakeBookingRepo) GetByBookingID(ctx context.Context, bookingID string) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBookingRepo) ListAll(ctx context.Context) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Booking
	for _, id := range r.order {
		out = append(out, *r.bookings[id])
	}
	return out, nil
}

func (r *fakeBookingRepo) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Booking
	for _, id := range r.order {
		if r.bookings[id].UserID == userID {
			out = append(out, *r.bookings[id])
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) UpdateStatus(ctx context.Context, bookingID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = status
	return nil
}

type fakeChatRepo struct {
	mu    sync.Mutex
	turns map[string][]model.ChatTurn
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{turns: make(map[string][]model.ChatTurn)}
}

func (r *fakeChatRepo) AppendTurn(ctx context.Context, userID, role string, content []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[userID] = append(r.turns[userID], model.ChatTurn{
		ID:        int64(len(r.turns[userID]) + 1),
		UserID:    userID,
		Role:      role,
		Content:   append([]byte(nil), content...),
		CreatedAt: time.Now(),
	})
	return nil
}

func (r *fakeChatRepo) ListTurns(ctx context.Context, userID string) ([]model.ChatTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ChatTurn(nil), r.turns[userID]...), nil
}

type publishedEvent struct {
	Topic   string
	Payload []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Payload: append([]byte(nil), payload...)})
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

type fakeQueue struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (q *fakeQueue) Send(ctx context.Context, queue string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, append([]byte(nil), payload...))
	return nil
}

type fakeTravel struct {
	searches []SearchQuery
	requests []BookingRequest
}

func (t *fakeTravel) SearchBuses(ctx context.Context, q SearchQuery) ([]BusOption, error) {
	t.searches = append(t.searches, q)
	return fixtureBuses(), nil
}

func (t *fakeTravel) CreateBooking(ctx context.Context, req BookingRequest) (*BookingConfirmation, error) {
	t.requests = append(t.requests, req)
	return synthesizeConfirmation(req), nil
}

// scriptedProvider replays a fixed sequence of turns.
type scriptedProvider struct {
	turns []model.Turn
	calls int
}

func (p *scriptedProvider) NextTurn(ctx context.Context, userID string, history []model.ChatTurn) (*model.Turn, error) {
	if p.calls >= len(p.turns) {
		return nil, errors.New("script exhausted")
	}
	t := p.turns[p.calls]
	p.calls++
	return &t, nil
}
