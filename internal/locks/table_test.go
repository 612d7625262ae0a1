package locks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquireAndRelease(t *testing.T) {
	table := NewTable([]string{"paymium", "hitbtc2"})

	assert.False(t, table.Busy("paymium"))
	assert.True(t, table.TryAcquire("paymium"))
	assert.True(t, table.Busy("paymium"))
	assert.False(t, table.TryAcquire("paymium"))

	// Other venues are independent.
	assert.True(t, table.TryAcquire("hitbtc2"))

	table.Release("paymium")
	assert.False(t, table.Busy("paymium"))
	assert.True(t, table.TryAcquire("paymium"))
}

func TestUnknownVenueIsNeverAcquirable(t *testing.T) {
	table := NewTable([]string{"paymium"})

	assert.False(t, table.TryAcquire("binance"))
	assert.True(t, table.Busy("binance"))

	// Releasing an unknown venue must not register it.
	table.Release("binance")
	assert.False(t, table.TryAcquire("binance"))
}

func TestReleaseWithoutAcquireIsNoop(t *testing.T) {
	table := NewTable([]string{"paymium"})
	table.Release("paymium")
	assert.True(t, table.TryAcquire("paymium"))
}

func TestConcurrentAcquireAdmitsExactlyOne(t *testing.T) {
	table := NewTable([]string{"paymium"})

	const goroutines = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if table.TryAcquire("paymium") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.True(t, table.Busy("paymium"))
}
