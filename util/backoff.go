// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package util

import (
	"math"
	"math/rand"
	"time"
)

// DefaultBackoff computes an exponential backoff delay, base*2^retry capped
// at max, plus a random jitter of up to 10% of that delay, so the result
// can exceed max by up to 10%.
func DefaultBackoff(base, max float64, retry int) time.Duration {
	delay := base * math.Pow(2, float64(retry))
	if delay > max {
		delay = max
	}
	jitter := rand.Float64() * delay * 0.1
	return time.Duration(delay + jitter)
}
