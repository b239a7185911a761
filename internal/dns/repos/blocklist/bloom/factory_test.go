package bloom

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostSet_EveryAddedHostIsFound(t *testing.T) {
	set := NewFactory().New(1000, 0.01)
	assert.False(t, set.MightContain([]byte("doubleclick.net")))

	for i := range 1000 {
		set.Add([]byte(fmt.Sprintf("ads%d.tracker.example", i)))
	}
	for i := range 1000 {
		assert.True(t, set.MightContain([]byte(fmt.Sprintf("ads%d.tracker.example", i))))
	}
}

func TestHostSet_FalsePositivesStayNearTarget(t *testing.T) {
	set := NewFactory().New(2000, 0.01)
	for i := range 2000 {
		set.Add([]byte(fmt.Sprintf("blocked%d.example", i)))
	}
	hits := 0
	for i := range 10_000 {
		if set.MightContain([]byte(fmt.Sprintf("allowed%d.example", i))) {
			hits++
		}
	}
	assert.Less(t, hits, 500)
}

func TestHostSet_EmptyBlocklist(t *testing.T) {
	set := NewFactory().New(0, 0)
	set.Add([]byte("lone.example"))
	assert.True(t, set.MightContain([]byte("lone.example")))
}

func TestHostSet_LookupsDuringRebuild(t *testing.T) {
	set := NewFactory().New(5000, 0.01)
	hosts := []string{"a.example", "b.example", "c.example"}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					set.MightContain([]byte("probe.example"))
				}
			}
		}()
	}
	for i := range 5000 {
		set.Add([]byte(hosts[i%len(hosts)]))
	}
	close(stop)
	wg.Wait()

	for _, h := range hosts {
		assert.True(t, set.MightContain([]byte(h)), h)
	}
}
