package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Payload is the result of one successful read
type Payload struct {
	// Body is the raw JSON document returned by the source
	Body json.RawMessage `json:"body"`

	// Hash is the SHA256 of Body, used to detect changes
	Hash string `json:"hash"`

	// Items is the number of items selected by the items path, -1 without a path
	Items int `json:"items"`

	// ETag is the validator returned with Body
	ETag string `json:"etag,omitempty"`

	// NotModified reports that the source answered 304 and Body is the previous payload
	NotModified bool `json:"notModified"`

	FetchedAt time.Time `json:"fetchedAt"`
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
