package patient

import "context"

// Repository lookups return (nil, nil) when no patient matches; the service
// owns the translation to NotFoundError.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	List(ctx context.Context) ([]*Patient, error)
}
