package graphmap

import (
	"context"

	"github.com/zero-day-ai/graphmap/entity"
)

// Repository is a typed view of a Mapper for one entity type.
//
//	lions := graphmap.NewRepository[Lion](m)
//	leo, err := lions.Create(ctx, &Lion{Name: "Leo", Age: 5})
//	adults, err := lions.FindBy(ctx, "age", 5)
type Repository[T any, PT entity.Entity[T]] struct {
	m *Mapper
}

// NewRepository returns a repository of T backed by m.
func NewRepository[T any, PT entity.Entity[T]](m *Mapper) *Repository[T, PT] {
	return &Repository[T, PT]{m: m}
}

// Mapper returns the mapper behind the repository.
func (r *Repository[T, PT]) Mapper() *Mapper {
	return r.m
}

// Create stores e unless it already has an identity; see CreateUnique.
// Entities implementing entity.Stamped get their timestamps set first when
// they are about to be created.
func (r *Repository[T, PT]) Create(ctx context.Context, e *T) (*T, error) {
	if s, ok := any(e).(entity.Stamped); ok && e != nil && !r.stored(e) {
		s.Stamp(r.m.now())
	}
	return CreateUnique[T, PT](ctx, r.m, e)
}

// Get returns the T stored under id, or nil.
func (r *Repository[T, PT]) Get(ctx context.Context, id int64) (*T, error) {
	return FindByID[T, PT](ctx, r.m, id)
}

// FindBy returns every T whose attribute key equals value.
func (r *Repository[T, PT]) FindBy(ctx context.Context, key string, value any) ([]*T, error) {
	return FindByProperty[T, PT](ctx, r.m, key, value)
}

// Search runs a full-text query on the named index.
func (r *Repository[T, PT]) Search(ctx context.Context, indexName, key, query string) ([]*T, error) {
	return Search[T, PT](ctx, r.m, indexName, key, query)
}

// Delete removes the T stored under id.
func (r *Repository[T, PT]) Delete(ctx context.Context, id int64) error {
	return Delete[T, PT](ctx, r.m, id)
}

// DeleteBy removes every T whose attribute key equals value.
func (r *Repository[T, PT]) DeleteBy(ctx context.Context, key string, value any) (int, error) {
	return DeleteByProperty[T, PT](ctx, r.m, key, value)
}

func (r *Repository[T, PT]) stored(e *T) bool {
	desc, err := describe[T, PT](r.m)
	if err != nil || !desc.Info().HasIdentity {
		return false
	}
	_, ok, err := desc.Identity(e)
	return err == nil && ok
}
