package merging

import (
	"fmt"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// fieldValue is one member's value for a field. Position is the member's index
// in merge order, so absent values leave gaps.
type fieldValue struct {
	Value     any
	UpdatedAt *time.Time
	EntityID  string
	Position  int
}

// FieldMerger handles field-level merge logic
type FieldMerger struct{}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// MergeField resolves one field. values must be in member order: base record
// first, then the second record, then the rest. A non-nil conflict is returned
// only by combine, and then the conflict is also the resolved value.
func (m *FieldMerger) MergeField(values []fieldValue, strategy models.MergeStrategyType) (any, *models.MergeConflict) {
	if len(values) == 0 {
		return nil, nil
	}

	switch strategy {
	case models.MergeStrategyPreferEntity2:
		return m.preferIndex(values, 1), nil
	case models.MergeStrategyCombine:
		return m.combine(values)
	case models.MergeStrategyMostRecent:
		return m.mostRecent(values), nil
	default:
		return m.preferIndex(values, 0), nil
	}
}

// preferIndex returns the preferred member's value, falling back to the base
// record and then to the remaining members in order
func (m *FieldMerger) preferIndex(values []fieldValue, preferred int) any {
	for _, v := range values {
		if v.Position == preferred {
			return v.Value
		}
	}
	return values[0].Value
}

// combine keeps a single value when every member agrees and records a conflict otherwise
func (m *FieldMerger) combine(values []fieldValue) (any, *models.MergeConflict) {
	distinct := make([]any, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		key := valueKey(v.Value)
		if seen[key] {
			continue
		}
		seen[key] = true
		distinct = append(distinct, v.Value)
	}

	if len(distinct) == 1 {
		return distinct[0], nil
	}

	conflict := &models.MergeConflict{
		Conflict: true,
		Values:   distinct,
	}
	return *conflict, conflict
}

// mostRecent returns the value from the most recently updated member. Members
// without a timestamp lose to any member with one; with no timestamps at all
// this is prefer_entity1.
func (m *FieldMerger) mostRecent(values []fieldValue) any {
	best := -1
	for i, v := range values {
		if v.UpdatedAt == nil {
			continue
		}
		if best < 0 || v.UpdatedAt.After(*values[best].UpdatedAt) {
			best = i
		}
	}
	if best < 0 {
		return m.preferIndex(values, 0)
	}
	return values[best].Value
}

// valueKey compares values by type and printed form, so the number 1 and the string "1" differ
func valueKey(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}
