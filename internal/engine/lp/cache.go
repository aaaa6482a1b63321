package lp

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"simcore/pkg/cache"
)

// resultCacheTTL bounds how long a solved flow vector may be served to a
// later step; a step's LP differs from the previous one's whenever any
// parameter, profile, or storage volume changes, so entries are short-lived.
const resultCacheTTL = 5 * time.Minute

// SolveCache memoises Solve results keyed by the problem's structural hash,
// so re-solving an identical LP (same bounds, costs, and rows — common
// across ensemble scenarios sharing a deterministic sub-network) skips the
// simplex run entirely.
type SolveCache struct {
	backend   cache.Cache
	algorithm string
}

// NewSolveCache wraps backend (memory- or Redis-backed, per pkg/cache) as a
// solve-result cache for one named solver algorithm.
func NewSolveCache(backend cache.Cache, algorithm string) *SolveCache {
	return &SolveCache{backend: backend, algorithm: algorithm}
}

// Key derives a stable cache key from the problem's coefficients.
func (c *SolveCache) Key(p *Problem) string {
	h := cache.QuickHash(encodeProblem(p))
	return cache.BuildSolveKey(h, c.algorithm)
}

// Lookup returns a cached Result for key, if present.
func (c *SolveCache) Lookup(ctx context.Context, key string) (*Result, bool) {
	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	return decodeResult(raw), true
}

// Store saves r under key with the cache's TTL.
func (c *SolveCache) Store(ctx context.Context, key string, r *Result) error {
	return c.backend.Set(ctx, key, encodeResult(r), resultCacheTTL)
}

func encodeProblem(p *Problem) []byte {
	buf := make([]byte, 0, 16*(p.NumVars*3+len(p.Rows)*4))
	appendFloat := func(f float64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
		buf = append(buf, b[:]...)
	}
	for i := 0; i < p.NumVars; i++ {
		appendFloat(p.Cost[i])
		appendFloat(p.LowerBound[i])
		appendFloat(p.UpperBound[i])
	}
	for _, row := range p.Rows {
		buf = append(buf, byte(row.Op))
		appendFloat(row.RHS)
		for _, t := range row.Terms {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(t.Var))
			buf = append(buf, b[:]...)
			appendFloat(t.Coeff)
		}
	}
	return buf
}

func encodeResult(r *Result) []byte {
	buf := make([]byte, 8*(len(r.Values)+1))
	binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(r.Objective))
	for i, v := range r.Values {
		binary.LittleEndian.PutUint64(buf[8*(i+1):8*(i+2)], math.Float64bits(v))
	}
	return buf
}

func decodeResult(raw []byte) *Result {
	if len(raw) < 8 {
		return nil
	}
	obj := math.Float64frombits(binary.LittleEndian.Uint64(raw[:8]))
	n := (len(raw) - 8) / 8
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*(i+1) : 8*(i+2)]))
	}
	return &Result{Values: values, Objective: obj}
}
