package entity

import "time"

// Base carries the identity and creation/update timestamps most entities
// share. Timestamps are Unix milliseconds so they persist as plain integers.
type Base struct {
	ID        *int64
	CreatedAt int64
	UpdatedAt int64
}

// Stamped is implemented by entities that record creation and update times.
type Stamped interface {
	Stamp(now time.Time)
}

// Stamp sets UpdatedAt to now, and CreatedAt too when it is still unset.
func (b *Base) Stamp(now time.Time) {
	ms := now.UnixMilli()
	if b.CreatedAt == 0 {
		b.CreatedAt = ms
	}
	b.UpdatedAt = ms
}

// Created returns CreatedAt as a time.
func (b *Base) Created() time.Time {
	return time.UnixMilli(b.CreatedAt)
}

// Updated returns UpdatedAt as a time.
func (b *Base) Updated() time.Time {
	return time.UnixMilli(b.UpdatedAt)
}

// BaseIdentity declares the identity stored in an embedded Base.
func BaseIdentity[T any](base func(*T) *Base) *Identity[T] {
	return &Identity[T]{
		Get: func(e *T) *int64 {
			return base(e).ID
		},
		Set: func(e *T, id int64) {
			base(e).ID = &id
		},
	}
}

// BaseAttributes declares the timestamp attributes of an embedded Base.
func BaseAttributes[T any](base func(*T) *Base) []Attribute[T] {
	return []Attribute[T]{
		Field("GetCreatedAt", func(e *T) *int64 { return &base(e).CreatedAt }),
		Field("GetUpdatedAt", func(e *T) *int64 { return &base(e).UpdatedAt }),
	}
}
