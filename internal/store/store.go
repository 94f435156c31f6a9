// Package store persists the gallery of generated images. The gallery is an
// append-only list of records, each pointing at an image either inline (a
// data URI) or at a hosted URL. Two backends exist: a JSON file in the user's
// home directory and a DynamoDB table.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Find when no record has the requested ID.
	ErrNotFound = errors.New("gallery record not found")

	// ErrDuplicateID is returned by Append when a record with the same ID
	// already exists. The existing record is left untouched.
	ErrDuplicateID = errors.New("gallery record ID already exists")
)

// GalleryStore is the gallery persistence collaborator.
// Implementations are safe for concurrent use and never overwrite or drop
// records.
type GalleryStore interface {
	// Append adds one record. It fails with ErrDuplicateID rather than
	// replacing a record with the same ID.
	Append(ctx context.Context, rec GalleryRecord) error

	// ReadAll returns every record. FileStore returns them in append order;
	// DynamoStore returns them in ID order, the table's sort key order.
	ReadAll(ctx context.Context) ([]GalleryRecord, error)
}

// GalleryRecord is one saved image. ID is the Unix millisecond time at which
// the image was saved; Timestamp is the same instant in RFC 3339 (UTC).
type GalleryRecord struct {
	ID        int64  `json:"id" dynamodbav:"-"`
	URL       string `json:"url" dynamodbav:"url"`
	Timestamp string `json:"timestamp" dynamodbav:"timestamp"`
}

// Find returns the record with the given ID.
func Find(records []GalleryRecord, id int64) (GalleryRecord, error) {
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return GalleryRecord{}, ErrNotFound
}
