package ids

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUniqueAcrossGoroutines(t *testing.T) {
	const workers, per = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, workers*per)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id := Generate()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, workers*per)
}

func TestWithPrefix(t *testing.T) {
	a := WithPrefix("local-")
	b := WithPrefix("local-")
	assert.True(t, strings.HasPrefix(a, "local-"))
	assert.NotEqual(t, a, b)
}

func TestSetNodeIDClamps(t *testing.T) {
	SetNodeID(5000)
	assert.Equal(t, int64(1), defaultGen.nodeID)
	SetNodeID(7)
	assert.Equal(t, int64(7), defaultGen.nodeID)
}
