// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Production code holds a Clock field set to Real(); tests substitute
// Fake() so event timestamps are predictable and pollers tick only
// when the test calls Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go follower.Run(ctx)
//	fake.WaitForTickers(1)
//	fake.Advance(time.Second)
package clock
