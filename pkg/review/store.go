package review

import (
	"context"
	"sort"
	"sync"

	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Filter narrows a candidate listing. Zero values match everything.
type Filter struct {
	Decision  models.Decision
	MatchType models.MatchType
}

// Matches reports whether the candidate passes the filter
func (f Filter) Matches(c models.MatchCandidate) bool {
	if f.MatchType != "" && c.MatchType != f.MatchType {
		return false
	}
	if f.Decision != "" && normalizeDecision(c.Review.Decision) != normalizeDecision(f.Decision) {
		return false
	}
	return true
}

// Store persists candidates and their review state
type Store interface {
	// Upsert inserts new candidates and refreshes the scores of known ones.
	// Review state of known candidates is left untouched.
	Upsert(ctx context.Context, candidates []models.MatchCandidate) error
	// Get returns a MissingEntityError when the id is unknown
	Get(ctx context.Context, id string) (*models.MatchCandidate, error)
	// List returns matching candidates ordered by id
	List(ctx context.Context, filter Filter) ([]models.MatchCandidate, error)
	// SetReview replaces the review state of one candidate
	SetReview(ctx context.Context, id string, state models.ReviewState) error
}

// MemoryStore is a Store backed by a map
type MemoryStore struct {
	mu         sync.RWMutex
	candidates map[string]models.MatchCandidate
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{candidates: make(map[string]models.MatchCandidate)}
}

func (s *MemoryStore) Upsert(_ context.Context, candidates []models.MatchCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candidates {
		if c.ID == "" {
			c.ID = models.CandidateID(c.Entity1ID, c.Entity2ID)
		}
		if existing, ok := s.candidates[c.ID]; ok {
			c.Review = existing.Review
			c.CreatedAt = existing.CreatedAt
		}
		if c.Review.Decision == "" {
			c.Review.Decision = models.DecisionNone
		}
		s.candidates[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.MatchCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return nil, ererrors.NewMissingCandidateError(id)
	}
	return &c, nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]models.MatchCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MatchCandidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SetReview(_ context.Context, id string, state models.ReviewState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.candidates[id]
	if !ok {
		return ererrors.NewMissingCandidateError(id)
	}
	c.Review = state
	s.candidates[id] = c
	return nil
}

func normalizeDecision(d models.Decision) models.Decision {
	if d == "" {
		return models.DecisionNone
	}
	return d
}
