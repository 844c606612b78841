package supervisor

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
)

var (
	// ErrNoProxies is returned when a worker would be started without proxies.
	ErrNoProxies = errors.New("partition has no proxies")

	// ErrNoAccounts is returned when there is nothing to farm.
	ErrNoAccounts = errors.New("no accounts to farm")
)

// Partition is one worker's share of accounts (wallet addresses) and proxies.
type Partition struct {
	Index    int      `json:"index"`
	Accounts []string `json:"accounts"`
	Proxies  []string `json:"proxies"`
}

// Split divides accounts and proxies into p partitions.
//
// Proxies are split into contiguous runs, the first len(proxies)%p partitions
// getting one extra. Accounts are split len(accounts)/p each with the last
// partition taking the remainder. p is capped at the number of accounts so no
// worker starts empty. The result depends only on the inputs.
func Split(accounts, proxies []string, p int) ([]Partition, error) {
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	if p < 1 {
		p = 1
	}
	if p > len(accounts) {
		p = len(accounts)
	}

	parts := make([]Partition, p)

	perProxy, extra := len(proxies)/p, len(proxies)%p
	start := 0
	for i := range parts {
		n := perProxy
		if i < extra {
			n++
		}
		parts[i].Index = i
		parts[i].Proxies = append([]string(nil), proxies[start:start+n]...)
		start += n
		if n == 0 {
			return nil, fmt.Errorf("%w: process %d of %d (have %d proxies)", ErrNoProxies, i, p, len(proxies))
		}
	}

	perAccount := len(accounts) / p
	for i := range parts {
		lo := i * perAccount
		hi := lo + perAccount
		if i == p-1 {
			hi = len(accounts)
		}
		parts[i].Accounts = append([]string(nil), accounts[lo:hi]...)
	}

	return parts, nil
}

// ProcessCount returns configured when positive, otherwise one less than the
// number of CPUs (at least 1).
func ProcessCount(configured int) int {
	if configured > 0 {
		return configured
	}
	return max(1, runtime.NumCPU()-1)
}

// Shuffle returns a shuffled copy of accounts. A non-zero seed gives a
// repeatable order.
func Shuffle(accounts []string, seed int64) []string {
	out := append([]string(nil), accounts...)
	var r *rand.Rand
	if seed != 0 {
		r = rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	} else {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
