package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler lets num out of every den calls through. A zero ratio lets
// everything through.
type sampler struct {
	ratio atomic.Uint64 // num<<32 | den
	calls atomic.Uint64
}

func newSampler(num, den int) *sampler {
	s := &sampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts the count.
func (s *sampler) Set(num, den int) {
	var ratio uint64
	if num > 0 && den > 0 {
		num = min(num, den)
		ratio = uint64(num)<<32 | uint64(uint32(den))
	}
	s.ratio.Store(ratio)
	s.calls.Store(0)
}

// Allow reports whether this call passes.
func (s *sampler) Allow() bool {
	ratio := s.ratio.Load()
	if ratio == 0 {
		return true
	}
	num, den := ratio>>32, ratio&0xffffffff
	return (s.calls.Add(1)-1)%den < num
}

// parseSample reads "num/den" or a bare "den", meaning one in den.
func parseSample(ratio string) (num, den int, ok bool) {
	a, b, isRatio := strings.Cut(strings.TrimSpace(ratio), "/")
	if !isRatio {
		a, b = "1", a
	}
	num, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, false
	}
	den, err = strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, false
	}
	return num, den, true
}
