// Package organization manages the client organizations that own conversions.
package organization

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akabaki/saas-ui/internal/models"
)

var ErrNotFound = errors.New("organization not found")

// Store persists organizations.
type Store interface {
	Create(ctx context.Context, in models.OrganizationInput) (*models.Organization, error)
	Get(ctx context.Context, id string) (*models.Organization, error)
	List(ctx context.Context) ([]models.Organization, error)
	// Update replaces the editable fields and leaves status and counters alone.
	Update(ctx context.Context, id string, in models.OrganizationInput) (*models.Organization, error)
	SetStatus(ctx context.Context, id string, status models.OrganizationStatus) (*models.Organization, error)
	Delete(ctx context.Context, id string) error
	// RecordConversion bumps the conversion counter and last activity.
	RecordConversion(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// newOrganization builds a freshly created record: active, no conversions.
func newOrganization(in models.OrganizationInput, now time.Time) *models.Organization {
	return &models.Organization{
		ID:               uuid.New().String(),
		Name:             in.Name,
		Email:            in.Email,
		ContactPerson:    in.ContactPerson,
		Phone:            in.Phone,
		Description:      in.Description,
		Status:           models.OrganizationActive,
		ConversionsCount: 0,
		LastActivity:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func applyInput(org *models.Organization, in models.OrganizationInput, now time.Time) {
	org.Name = in.Name
	org.Email = in.Email
	org.ContactPerson = in.ContactPerson
	org.Phone = in.Phone
	org.Description = in.Description
	org.UpdatedAt = now
}

// ParseStatus validates a status name.
func ParseStatus(s string) (models.OrganizationStatus, error) {
	switch models.OrganizationStatus(s) {
	case models.OrganizationActive, models.OrganizationInactive:
		return models.OrganizationStatus(s), nil
	}
	return "", &ValidationError{Problems: []string{fmt.Sprintf("status: must be active or inactive, got %q", s)}}
}

// MemoryStore keeps organizations in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	orgs map[string]*models.Organization
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs: make(map[string]*models.Organization),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, in models.OrganizationInput) (*models.Organization, error) {
	in = normalize(in)
	if err := Validate(in); err != nil {
		return nil, err
	}
	org := newOrganization(in, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.ID] = org
	cp := *org
	return &cp, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *org
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		list = append(list, *org)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].Name < list[j].Name
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, in models.OrganizationInput) (*models.Organization, error) {
	in = normalize(in)
	if err := Validate(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	applyInput(org, in, s.now())
	cp := *org
	return &cp, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status models.OrganizationStatus) (*models.Organization, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	org.Status = status
	org.UpdatedAt = s.now()
	cp := *org
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.orgs, id)
	return nil
}

func (s *MemoryStore) RecordConversion(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	org.ConversionsCount++
	if at.After(org.LastActivity) {
		org.LastActivity = at
	}
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orgs), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
