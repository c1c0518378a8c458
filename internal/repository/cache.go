package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/clinicore/encounter-api/internal/model"
)

// cachedDirectory wraps a DirectoryRepository with a short-TTL in-process
// cache. Directory rows change rarely and every finalization re-reads the
// same physicians and catalog services.
type cachedDirectory struct {
	inner DirectoryRepository
	cache *gocache.Cache
}

func NewCachedDirectory(inner DirectoryRepository, ttl time.Duration) DirectoryRepository {
	return &cachedDirectory{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (d *cachedDirectory) GetPhysician(ctx context.Context, id uuid.UUID) (*model.Physician, error) {
	key := "physician:" + id.String()
	if v, ok := d.cache.Get(key); ok {
		return v.(*model.Physician), nil
	}
	physician, err := d.inner.GetPhysician(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(key, physician)
	return physician, nil
}

func (d *cachedDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	key := "patient:" + id.String()
	if v, ok := d.cache.Get(key); ok {
		return v.(*model.Patient), nil
	}
	patient, err := d.inner.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(key, patient)
	return patient, nil
}

func (d *cachedDirectory) GetService(ctx context.Context, id uuid.UUID) (*model.CatalogService, error) {
	key := "service:" + id.String()
	if v, ok := d.cache.Get(key); ok {
		return v.(*model.CatalogService), nil
	}
	svc, err := d.inner.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(key, svc)
	return svc, nil
}
