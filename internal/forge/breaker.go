package forge

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// hostBreakers holds one circuit breaker per upstream host. The API and
// raw-content endpoints fail independently; a tripped breaker on one must
// not block the other.
type hostBreakers struct {
	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex
}

func newHostBreakers() *hostBreakers {
	return &hostBreakers{
		breakers: make(map[string]*circuit.Breaker),
	}
}

func (hb *hostBreakers) get(host string) *circuit.Breaker {
	hb.mu.RLock()
	breaker, exists := hb.breakers[host]
	hb.mu.RUnlock()

	if exists {
		return breaker
	}

	hb.mu.Lock()
	defer hb.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists := hb.breakers[host]; exists {
		return breaker
	}

	// Trips after 5 consecutive failures, reopening on an exponential
	// backoff schedule.
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	opts := &circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	}
	breaker = circuit.NewBreakerWithOptions(opts)

	hb.breakers[host] = breaker
	return breaker
}

// call runs fn under the breaker for the host of rawURL.
func (hb *hostBreakers) call(rawURL string, fn func() error) error {
	host := extractHost(rawURL)
	breaker := hb.get(host)

	if !breaker.Ready() {
		return fmt.Errorf("circuit breaker open for %s", host)
	}

	return breaker.Call(fn, 0)
}

func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
