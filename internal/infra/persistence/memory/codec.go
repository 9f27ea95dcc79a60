package memory

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	"tracebase/pkg/domain"
)

// UnmarshalBucket decodes one persisted bucket into snapshot. Unknown bucket
// names are ignored so older databases keep loading.
func UnmarshalBucket(snapshot Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	entity := domain.EntityType(bucket)
	known := false
	for _, e := range domain.EntityTypes {
		if e == entity {
			known = true
			break
		}
	}
	if !known {
		return nil
	}
	records, err := domain.DecodeBucket(entity, payload)
	if err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	snapshot[entity] = records
	return nil
}

// EncodedBucket is one entity bucket ready to be written.
type EncodedBucket struct {
	Entity  domain.EntityType
	Payload []byte
	Records int
}

// BucketTracker remembers a digest of every persisted bucket so durable
// stores rewrite only the buckets a transaction changed.
type BucketTracker struct {
	mu   sync.Mutex
	sums map[domain.EntityType][sha256.Size]byte
}

// NewBucketTracker returns a tracker that treats every bucket as unwritten.
func NewBucketTracker() *BucketTracker {
	return &BucketTracker{sums: make(map[domain.EntityType][sha256.Size]byte)}
}

// Seed records payload as the stored content of bucket.
func (t *BucketTracker) Seed(bucket string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sums[domain.EntityType(bucket)] = sha256.Sum256(payload)
}

// Dirty encodes the buckets present in snapshot and returns those whose
// content differs from what was last seeded or committed, in
// domain.EntityTypes order. Buckets absent from snapshot are left alone.
func (t *BucketTracker) Dirty(snapshot Snapshot) ([]EncodedBucket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []EncodedBucket
	for _, entity := range domain.EntityTypes {
		bucket, ok := snapshot[entity]
		if !ok {
			continue
		}
		if bucket == nil {
			bucket = map[string]Record{}
		}
		payload, err := json.Marshal(bucket)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", entity, err)
		}
		if sum, ok := t.sums[entity]; ok && sum == sha256.Sum256(payload) {
			continue
		}
		out = append(out, EncodedBucket{Entity: entity, Payload: payload, Records: len(bucket)})
	}
	return out, nil
}

// Pending adds to touched every bucket that was never seeded or committed,
// so a fresh database receives every bucket on its first write.
func (t *BucketTracker) Pending(touched []domain.EntityType) []domain.EntityType {
	t.mu.Lock()
	defer t.mu.Unlock()
	in := make(map[domain.EntityType]bool, len(touched))
	for _, e := range touched {
		in[e] = true
	}
	out := make([]domain.EntityType, 0, len(domain.EntityTypes))
	for _, e := range domain.EntityTypes {
		if _, stored := t.sums[e]; in[e] || !stored {
			out = append(out, e)
		}
	}
	return out
}

// Commit marks buckets as written.
func (t *BucketTracker) Commit(buckets []EncodedBucket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range buckets {
		t.sums[b.Entity] = sha256.Sum256(b.Payload)
	}
}
