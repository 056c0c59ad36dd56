package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/models"

	"github.com/lib/pq"
)

// ReferenceRepository is the durable (provider reference -> order) index.
// Rows are written when an adapter initiates external work, so a webhook that
// arrives after a restart can still be matched to its order.
type ReferenceRepository interface {
	CreateReference(executor SQLExecutor, ref *models.ProviderReference) error
	// ResolveReference is keyed without a tenant: webhooks carry only the
	// provider's own identifier, and the tenant comes out of the row.
	ResolveReference(kind, providerID, reference string) (*models.ProviderReference, error)
}

type referenceRepository struct {
	db *sql.DB
}

// NewReferenceRepository creates a new instance of ReferenceRepository.
func NewReferenceRepository(db *sql.DB) ReferenceRepository {
	return &referenceRepository{db: db}
}

func (r *referenceRepository) CreateReference(executor SQLExecutor, ref *models.ProviderReference) error {
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now()
	}
	query := `INSERT INTO provider_references (tenant_id, order_id, kind, provider_id, reference, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id`
	err := executor.QueryRow(query,
		ref.TenantID, ref.OrderID, ref.Kind, ref.ProviderID, ref.Reference, ref.CreatedAt,
	).Scan(&ref.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Retried initiation for the same order is safe to repeat.
			return fmt.Errorf("%w: reference %s/%s", ErrDuplicateKey, ref.ProviderID, ref.Reference)
		}
		return fmt.Errorf("%w: creating provider reference: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *referenceRepository) ResolveReference(kind, providerID, reference string) (*models.ProviderReference, error) {
	ref := &models.ProviderReference{}
	query := `SELECT id, tenant_id, order_id, kind, provider_id, reference, created_at
	          FROM provider_references
	          WHERE kind = $1 AND provider_id = $2 AND reference = $3`
	err := r.db.QueryRow(query, kind, providerID, reference).Scan(
		&ref.ID, &ref.TenantID, &ref.OrderID, &ref.Kind, &ref.ProviderID, &ref.Reference, &ref.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: resolving %s reference %s: %v", ErrDatabaseError, kind, reference, err)
	}
	return ref, nil
}
