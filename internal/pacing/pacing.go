package pacing

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

var ErrEmptyPool = errors.New("identity pool is empty")

type Strategy string

const (
	// StrategyRoundRobin walks the pool in order.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyRandomNoRepeat picks randomly but never the previous identity.
	StrategyRandomNoRepeat Strategy = "random_no_repeat"
)

type Config struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Identities []string
	Strategy   Strategy
	// Seed makes the delay/identity sequence reproducible. Zero seeds
	// from entropy.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		MinDelay: 1500 * time.Millisecond,
		MaxDelay: 3500 * time.Millisecond,
		Strategy: StrategyRoundRobin,
		Identities: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/109.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.3 Safari/605.1.15",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36 Edg/109.0.1518.78",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
		},
	}
}

// Policy decides delay-before-next-action and identity rotation. It
// never sleeps itself; callers perform the actual suspension so
// cancellation stays in their hands.
type Policy struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	identities []string
	strategy   Strategy
	rng        *rand.Rand
	mu         sync.Mutex
	cursor     int
	lastIdx    int
	requests   int
}

func New(cfg Config) *Policy {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultConfig().MinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyRoundRobin
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Policy{
		minDelay:   cfg.MinDelay,
		maxDelay:   cfg.MaxDelay,
		identities: cfg.Identities,
		strategy:   cfg.Strategy,
		rng:        rand.New(rand.NewSource(seed)),
		lastIdx:    -1,
	}
}

// NextDelay returns a uniform draw in [MinDelay, MaxDelay].
func (p *Policy) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.minDelay == p.maxDelay {
		return p.minDelay
	}
	// Int63n is half-open; +1 keeps maxDelay itself reachable.
	delta := p.maxDelay - p.minDelay
	return p.minDelay + time.Duration(p.rng.Int63n(int64(delta)+1))
}

// NextIdentity returns the next identity from the pool. With pool size
// above one, consecutive calls never return the same value.
func (p *Policy) NextIdentity() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.identities) == 0 {
		return "", ErrEmptyPool
	}
	p.requests++

	if len(p.identities) == 1 {
		p.lastIdx = 0
		return p.identities[0], nil
	}

	var idx int
	switch p.strategy {
	case StrategyRandomNoRepeat:
		for {
			idx = p.rng.Intn(len(p.identities))
			if idx != p.lastIdx {
				break
			}
		}
	default:
		idx = p.cursor % len(p.identities)
		p.cursor++
	}

	p.lastIdx = idx
	return p.identities[idx], nil
}

// Requests reports how many identity draws this policy has served.
func (p *Policy) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}
