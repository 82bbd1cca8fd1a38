package matchreview

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/review"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const table = "match_candidates"

var columns = []string{
	"id", "entity1_id", "entity2_id", "entity1_name", "entity2_name", "entity1_type", "entity2_type",
	"similarity_score", "match_type", "confidence", "match_details",
	"decision", "reviewed_by", "reviewed_at", "notes", "created_at", "updated_at",
}

// scores are refreshed on re-resolution, review columns are not
const upsertConflict = " ON CONFLICT (id) DO UPDATE SET" +
	" entity1_name = EXCLUDED.entity1_name, entity2_name = EXCLUDED.entity2_name," +
	" entity1_type = EXCLUDED.entity1_type, entity2_type = EXCLUDED.entity2_type," +
	" similarity_score = EXCLUDED.similarity_score, match_type = EXCLUDED.match_type," +
	" confidence = EXCLUDED.confidence, match_details = EXCLUDED.match_details," +
	" updated_at = EXCLUDED.updated_at"

type candidateRow struct {
	ID              string                                       `db:"id"`
	Entity1ID       string                                       `db:"entity1_id"`
	Entity2ID       string                                       `db:"entity2_id"`
	Entity1Name     string                                       `db:"entity1_name"`
	Entity2Name     string                                       `db:"entity2_name"`
	Entity1Type     string                                       `db:"entity1_type"`
	Entity2Type     string                                       `db:"entity2_type"`
	SimilarityScore float64                                      `db:"similarity_score"`
	MatchType       string                                       `db:"match_type"`
	Confidence      float64                                      `db:"confidence"`
	MatchDetails    database.JSONB[map[string]models.FieldScore] `db:"match_details"`
	Decision        string                                       `db:"decision"`
	ReviewedBy      *string                                      `db:"reviewed_by"`
	ReviewedAt      *time.Time                                   `db:"reviewed_at"`
	Notes           *string                                      `db:"notes"`
	CreatedAt       time.Time                                    `db:"created_at"`
	UpdatedAt       time.Time                                    `db:"updated_at"`
}

func (r candidateRow) toModel() models.MatchCandidate {
	details := r.MatchDetails.Data
	if details == nil {
		details = map[string]models.FieldScore{}
	}
	return models.MatchCandidate{
		ID:              r.ID,
		Entity1ID:       r.Entity1ID,
		Entity2ID:       r.Entity2ID,
		Entity1Name:     r.Entity1Name,
		Entity2Name:     r.Entity2Name,
		Entity1Type:     r.Entity1Type,
		Entity2Type:     r.Entity2Type,
		SimilarityScore: r.SimilarityScore,
		MatchType:       models.MatchType(r.MatchType),
		Confidence:      r.Confidence,
		MatchDetails:    details,
		Review: models.ReviewState{
			Decision:   models.Decision(r.Decision),
			ReviewedBy: r.ReviewedBy,
			ReviewedAt: r.ReviewedAt,
			Notes:      r.Notes,
		},
		CreatedAt: r.CreatedAt,
	}
}

// maxUpsertRows keeps one statement under the Postgres limit of 65535 bind parameters
var maxUpsertRows = 65535 / len(columns)

// Repository is a Postgres-backed review.Store
type Repository struct {
	db        database.DB
	logger    ectologger.Logger
	now       func() time.Time
	batchSize int
}

var _ review.Store = (*Repository)(nil)

// NewRepository creates a new match review repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:        db,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		batchSize: maxUpsertRows,
	}
}

// Upsert inserts candidates in batches within one transaction, joining the
// transaction already open on ctx if there is one. Known ids get fresh scores
// and keep their review state.
func (r *Repository) Upsert(ctx context.Context, candidates []models.MatchCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "matchreview.Repository.Upsert")
	defer span.End()

	rows := latestByID(candidates)
	if len(rows) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store match candidates")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := r.now()
	for start := 0; start < len(rows); start += r.batchSize {
		end := min(start+r.batchSize, len(rows))
		query, args := upsertQuery(rows[start:end], now)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"count":  len(rows),
				"offset": start,
			}).Error("Failed to upsert match candidates")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store match candidates")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store match candidates")
	}

	r.logger.WithContext(ctx).WithField("count", len(rows)).Debug("Upserted match candidates")
	return nil
}

// latestByID fills missing ids and keeps the last candidate per id in
// first-seen order. Postgres rejects a statement that touches the same row twice.
func latestByID(candidates []models.MatchCandidate) []models.MatchCandidate {
	index := make(map[string]int, len(candidates))
	out := make([]models.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == "" {
			c.ID = models.CandidateID(c.Entity1ID, c.Entity2ID)
		}
		if i, seen := index[c.ID]; seen {
			out[i] = c
			continue
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}

func upsertQuery(candidates []models.MatchCandidate, now time.Time) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	for _, c := range candidates {
		decision := c.Review.Decision
		if decision == "" {
			decision = models.DecisionNone
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		details := c.MatchDetails
		if details == nil {
			details = map[string]models.FieldScore{}
		}
		sb.Values(c.ID, c.Entity1ID, c.Entity2ID, c.Entity1Name, c.Entity2Name, c.Entity1Type, c.Entity2Type,
			c.SimilarityScore, string(c.MatchType), c.Confidence, database.NewJSONB(details),
			string(decision), c.Review.ReviewedBy, c.Review.ReviewedAt, c.Review.Notes, createdAt, now)
	}

	query, args := sb.Build()
	return query + upsertConflict, args
}

// Get retrieves a candidate by id
func (r *Repository) Get(ctx context.Context, id string) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchreview.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row candidateRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ererrors.NewMissingCandidateError(id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("candidate_id", id).Error("Failed to get match candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match candidate")
	}

	candidate := row.toModel()
	return &candidate, nil
}

// List retrieves candidates passing the filter, ordered by id bytewise
func (r *Repository) List(ctx context.Context, filter review.Filter) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchreview.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	if filter.Decision != "" {
		sb.Where(sb.Equal("decision", string(filter.Decision)))
	}
	if filter.MatchType != "" {
		sb.Where(sb.Equal("match_type", string(filter.MatchType)))
	}
	sb.OrderBy(`id COLLATE "C"`)

	query, args := sb.Build()
	var rows []candidateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"decision":   filter.Decision,
			"match_type": filter.MatchType,
		}).Error("Failed to list match candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match candidates")
	}

	out := make([]models.MatchCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// SetReview replaces the review columns of one candidate
func (r *Repository) SetReview(ctx context.Context, id string, state models.ReviewState) error {
	ctx, span := tracing.StartSpan(ctx, "matchreview.Repository.SetReview")
	defer span.End()

	decision := state.Decision
	if decision == "" {
		decision = models.DecisionNone
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("decision", string(decision)),
		ub.Assign("reviewed_by", state.ReviewedBy),
		ub.Assign("reviewed_at", state.ReviewedAt),
		ub.Assign("notes", state.Notes),
		ub.Assign("updated_at", r.now()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("candidate_id", id).Error("Failed to update review state")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update review state")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("candidate_id", id).Error("Failed to read affected rows")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update review state")
	}
	if affected == 0 {
		return ererrors.NewMissingCandidateError(id)
	}
	return nil
}
