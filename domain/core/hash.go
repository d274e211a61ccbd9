package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, enough for log lines.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Domain-specific hash types
type (
	RegistryHash Hash
	ModelHash    Hash
)

func (h RegistryHash) String() string { return Hash(h).String() }
func (h ModelHash) String() string    { return Hash(h).String() }

// ComputeRegistryHash hashes parameter descriptors keyed by name. Key order
// does not matter.
func ComputeRegistryHash(descriptors map[string]string) RegistryHash {
	keys := make([]string, 0, len(descriptors))
	for k := range descriptors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteByte('=')
		data.WriteString(descriptors[key])
		data.WriteByte(';')
	}
	return RegistryHash(NewHash([]byte(data.String())))
}

// ComputeModelHash hashes the rendered expression of every method, in the
// given method order.
func ComputeModelHash(methods []MethodKey, rendered map[MethodKey]string) ModelHash {
	var data strings.Builder
	for _, m := range methods {
		data.WriteString(fmt.Sprintf("%s:%s\n", m, rendered[m]))
	}
	return ModelHash(NewHash([]byte(data.String())))
}
