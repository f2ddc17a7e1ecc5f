package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"wiki_harvester/internal/models"
	"wiki_harvester/internal/utils"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrNotList  = errors.New("dataset must be a list")
)

// Store is a key/value view of the dataset collection. Keys are
// slash-delimited paths and every value is a list.
type Store interface {
	// Write replaces the dataset stored under key.
	Write(ctx context.Context, key string, dataset interface{}) error
	// Read decodes the dataset stored under key into out, a pointer to a slice.
	Read(ctx context.Context, key string, out interface{}) error
	Delete(ctx context.Context, key string) error
	// FindRevisions returns the revision documents whose key matches pattern,
	// ordered by key. A non-positive limit means no limit.
	FindRevisions(ctx context.Context, pattern string, limit int) ([]models.RevisionDocument, error)
	Count(ctx context.Context, pattern string) (int64, error)
}

// datasetHash validates that dataset is a list and hashes its JSON form.
func datasetHash(dataset interface{}) (string, []byte, error) {
	v := reflect.ValueOf(dataset)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return "", nil, fmt.Errorf("%w: got %T", ErrNotList, dataset)
	}

	data, err := json.Marshal(dataset)
	if err != nil {
		return "", nil, fmt.Errorf("encoding dataset: %w", err)
	}
	return utils.ComputeContentHash(string(data)), data, nil
}
