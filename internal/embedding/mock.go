package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// MockClient derives embeddings by hashing lowercase tokens into a fixed
// number of buckets. Texts that share words get similar vectors, which is
// enough for recall tests without a network call.
type MockClient struct {
	mu    sync.Mutex
	dims  int
	Err   error
	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{dims: Dimensions}
}

// NewMockClientWithDims is useful where a small vector keeps fixtures readable.
func NewMockClientWithDims(dims int) *MockClient {
	return &MockClient{dims: dims}
}

func (m *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	vec := make([]float32, m.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:()\"'")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32()%uint32(m.dims))]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
