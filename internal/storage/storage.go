// Package storage provides persistence for game state and media blobs.
package storage

// StateStore persists the whole session snapshot as one opaque record.
// Implementations overwrite the record wholesale on every save.
type StateStore interface {
	// LoadState returns the persisted snapshot, or (nil, nil) when none exists.
	LoadState() ([]byte, error)

	// SaveState overwrites the snapshot.
	SaveState(data []byte) error
}

// BlobStore owns raw media bytes, referenced by opaque keys. The session
// state never duplicates blob contents, only the keys.
type BlobStore interface {
	// Put stores the bytes under a fresh key and returns it.
	Put(data []byte) (string, error)

	// Get returns the bytes for a key, or (nil, nil) when the blob is gone
	// (quota eviction, manual clearing). Callers skip such recordings.
	Get(key string) ([]byte, error)

	// Delete removes a blob. Deleting an absent key is not an error.
	Delete(key string) error
}
