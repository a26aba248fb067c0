// Copyright 2025 The dryrun Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import "runtime"

// goroutineID extracts the calling goroutine's id from runtime.Stack.
//
// Stack trace format: "goroutine 123 [running]:\n..."
//
// Ambient baggage is looked up once per runtime call, not per instruction,
// so the stack-parsing cost is acceptable here.
//
// Returns:
//   - int64: Goroutine ID (always positive), or 0 if parsing fails
func goroutineID() int64 {
	// Only the first line is needed.
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the goroutine ID from stack trace bytes.
//
// Expected format: "goroutine 123 [running]:..."
// Returns the numeric ID (123 in this example) or 0 if parsing fails.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}

	var gid int64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}
