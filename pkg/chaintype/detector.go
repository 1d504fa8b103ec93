package chaintype

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDetectorCacheSize bounds the number of memoised identifiers
const DefaultDetectorCacheSize = 1024

// shared backs the package level Detect. Hashing and event decoding classify
// the same few chains for every intent.
var shared = mustDetector(DefaultDetectorCacheSize)

func mustDetector(size int) *Detector {
	d, err := NewDetector(size)
	if err != nil {
		panic(err)
	}
	return d
}

// Shared returns the process-wide detector behind Detect
func Shared() *Detector {
	return shared
}

// Detector memoises Detect results. Classification is pure, so entries never expire.
type Detector struct {
	cache *lru.Cache[string, VMType]
}

// NewDetector creates a detector holding up to size identifiers
func NewDetector(size int) (*Detector, error) {
	if size <= 0 {
		size = DefaultDetectorCacheSize
	}
	cache, err := lru.New[string, VMType](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector cache: %w", err)
	}
	return &Detector{cache: cache}, nil
}

// Detect classifies chain, consulting the cache first
func (d *Detector) Detect(chain interface{}) (VMType, error) {
	id, err := ChainID(chain)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%d", id)
	if vm, ok := d.cache.Get(key); ok {
		return vm, nil
	}

	vm, err := detectID(id)
	if err != nil {
		return "", err
	}
	d.cache.Add(key, vm)
	return vm, nil
}

// Contains reports whether the chain id is cached
func (d *Detector) Contains(id uint64) bool {
	return d.cache.Contains(fmt.Sprintf("%d", id))
}

// Len returns the number of cached identifiers
func (d *Detector) Len() int {
	return d.cache.Len()
}
