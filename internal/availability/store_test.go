package availability

import (
	"context"
	"errors"
	"sync"
	"time"

	"nextslot/internal/models"
)

// mockStore implements Store in memory for invalidator and sweeper tests.
type mockStore struct {
	mu           sync.Mutex
	providers    map[string]*models.Provider
	members      map[string]*models.Member // keyed by provider id
	schedules    map[string][]models.WeeklyAvailability
	exceptions   map[string][]models.ExceptionRange
	appointments map[string][]models.Appointment

	failMemberLookup map[string]bool
	setCalls         int
}

func newMockStore() *mockStore {
	return &mockStore{
		providers:        make(map[string]*models.Provider),
		members:          make(map[string]*models.Member),
		schedules:        make(map[string][]models.WeeklyAvailability),
		exceptions:       make(map[string][]models.ExceptionRange),
		appointments:     make(map[string][]models.Appointment),
		failMemberLookup: make(map[string]bool),
	}
}

func (m *mockStore) addProvider(id string, slot *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[id] = &models.Provider{ID: id, Name: id, IsPublished: true, NextAvailableSlot: slot}
	m.members[id] = &models.Member{ID: id + "-member", ProviderID: id, IsActive: true, IsDefault: true}
}

func (m *mockStore) GetProvider(_ context.Context, id string) (*models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, errors.New("provider not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) ListPublishedProviders(_ context.Context) ([]models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Provider
	for _, p := range m.providers {
		if p.IsPublished {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockStore) DefaultMember(_ context.Context, providerID string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMemberLookup[providerID] {
		return nil, errors.New("member lookup failed")
	}
	member, ok := m.members[providerID]
	if !ok {
		return nil, nil
	}
	cp := *member
	return &cp, nil
}

func (m *mockStore) WeeklySchedule(_ context.Context, memberID string) ([]models.WeeklyAvailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[memberID], nil
}

func (m *mockStore) FutureExceptions(_ context.Context, memberID string, _ time.Time) ([]models.ExceptionRange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exceptions[memberID], nil
}

func (m *mockStore) UpcomingAppointments(_ context.Context, memberID string, _ time.Time) ([]models.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appointments[memberID], nil
}

func (m *mockStore) SetNextAvailable(_ context.Context, providerID string, slot *time.Time, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[providerID]
	if !ok {
		return errors.New("provider not found")
	}
	m.setCalls++
	p.NextAvailableSlot = slot
	p.NextAvailableCheck = &checkedAt
	return nil
}

func (m *mockStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCalls
}

// fullWeek opens every weekday 09:00-18:00 for the member.
func fullWeek(memberID string) []models.WeeklyAvailability {
	var schedule []models.WeeklyAvailability
	for d := 0; d < 7; d++ {
		schedule = append(schedule, models.WeeklyAvailability{
			MemberID:  memberID,
			DayOfWeek: d,
			IsOpen:    true,
			Windows:   []models.TimeWindow{{Start: "09:00", End: "18:00"}},
		})
	}
	return schedule
}
