// Package storage provides content-addressable storage for docgen artifacts.
package storage

import (
	"time"
)

// ObjectType identifies the kind of stored object.
type ObjectType string

const (
	// ObjectTypeArtifact represents a generated output document.
	ObjectTypeArtifact ObjectType = "artifact"

	// ObjectTypeManifest represents a run manifest.
	ObjectTypeManifest ObjectType = "manifest"
)

// Object represents a stored artifact with its metadata.
type Object struct {
	// Hash is the content hash (SHA256) of the data.
	Hash string

	// Type identifies the kind of object.
	Type ObjectType

	// Size is the size of the data in bytes.
	Size int64

	// Data is the object content.
	Data []byte

	// Metadata stores additional key-value pairs.
	Metadata Metadata
}

// Metadata stores object metadata.
type Metadata struct {
	CreatedAt time.Time
	Type      ObjectType
	Custom    map[string]string
}

// ErrNotFound is returned when an object doesn't exist.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	return "object not found: " + e.Hash
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
