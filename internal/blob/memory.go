package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	info Info
	data []byte
}

// MemoryStore keeps objects in process memory. Used by tests and local runs
// without object storage.
type MemoryStore struct {
	mu        sync.RWMutex
	buckets   map[string]map[string]memoryObject
	publicURL string
	now       func() time.Time
}

func NewMemory(publicURL string) *MemoryStore {
	if publicURL == "" {
		publicURL = "memory://blob"
	}
	return &MemoryStore{
		buckets:   make(map[string]map[string]memoryObject),
		publicURL: publicURL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Driver() Driver { return DriverMemory }

func (s *MemoryStore) EnsureBuckets(_ context.Context, buckets ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bucket := range buckets {
		if _, ok := s.buckets[bucket]; !ok {
			s.buckets[bucket] = make(map[string]memoryObject)
		}
	}
	return nil
}

func (s *MemoryStore) Put(_ context.Context, bucket, key string, r io.Reader, _ int64, opts PutOptions) (Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, fmt.Errorf("blob: read upload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		objects = make(map[string]memoryObject)
		s.buckets[bucket] = objects
	}
	info := Info{
		Bucket:       bucket,
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: s.now(),
	}
	objects[key] = memoryObject{info: info, data: data}
	return info, nil
}

func (s *MemoryStore) Get(_ context.Context, bucket, key string) (Info, io.ReadCloser, error) {
	s.mu.RLock()
	object, ok := s.buckets[bucket][key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	data := make([]byte, len(object.data))
	copy(data, object.data)
	info := object.info
	info.Metadata = cloneMetadata(info.Metadata)
	return info, io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket][key]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	delete(s.buckets[bucket], key)
	return nil
}

func (s *MemoryStore) List(_ context.Context, bucket, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]Info, 0, len(s.buckets[bucket]))
	for key, object := range s.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			info := object.info
			info.Metadata = cloneMetadata(info.Metadata)
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// SignedURL returns a pseudo-signed link carrying its expiry; nothing serves it.
func (s *MemoryStore) SignedURL(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = SignedURLExpiry
	}
	s.mu.RLock()
	_, ok := s.buckets[bucket][key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	query := url.Values{}
	query.Set("expires", s.now().Add(expiry).Format(time.RFC3339))
	return publicURL(s.publicURL, bucket, key) + "?" + query.Encode(), nil
}

func (s *MemoryStore) PublicURL(bucket, key string) string {
	return publicURL(s.publicURL, bucket, key)
}

// Keys lists every key of a bucket.
func (s *MemoryStore) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.buckets[bucket]))
	for key := range s.buckets[bucket] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
