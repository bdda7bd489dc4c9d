package core

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const idLength = 10

// GenerateID generates a random alphanumeric ID of length 10. Used for
// games and recordings.
func GenerateID() string {
	b := make([]byte, idLength)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(idCharset))))
		if err != nil {
			// Fallback to less secure random if crypto/rand fails (unlikely)
			return generateFallbackID()
		}
		b[i] = idCharset[num.Int64()]
	}
	return string(b)
}

func generateFallbackID() string {
	// Simple fallback, though in practice crypto/rand shouldn't fail
	return "fallback" + fmt.Sprintf("%d", time.Now().UnixNano())
}

// NewBlobKey generates an opaque key for a media blob.
func NewBlobKey() string {
	return "rec-" + uuid.NewString()
}
