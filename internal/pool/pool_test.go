package pool_test

import (
	"sync"
	"testing"

	"github.com/jroosing/hydraproxy/internal/pool"
	"github.com/stretchr/testify/assert"
)

func TestPool_ConstructorCalled(t *testing.T) {
	calls := 0
	p := pool.New(func() int {
		calls++
		return calls
	})

	assert.Equal(t, 1, p.Get())
	assert.Equal(t, 2, p.Get(), "nothing was put back")
}

func TestNewBuffers(t *testing.T) {
	p := pool.NewBuffers(4097)

	b := p.Get()
	assert.Len(t, *b, 4097)
	(*b)[0] = 0xff
	p.Put(b)

	again := p.Get()
	assert.Len(t, *again, 4097)
}

func TestPool_ConcurrentAccess(t *testing.T) {
	p := pool.NewBuffers(512)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				b := p.Get()
				(*b)[0] = 1
				p.Put(b)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkBuffers_GetPut(b *testing.B) {
	p := pool.NewBuffers(4096)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf := p.Get()
		p.Put(buf)
	}
}
