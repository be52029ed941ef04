// Copyright 2024 The Rudo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rudo implements a tracing, non-moving, generational, mark-sweep
// garbage collector exposed as a shared-ownership smart pointer, Gc[T], with
// cycle collection.
//
// rudo exists for host languages (and, here, host *processes*) that do not
// get a tracing collector for free: allocate through Gc[T] instead of a
// plain Go pointer, and cyclic graphs of Gc[T] values are still reclaimed
// once unreachable, without reference-counting them away by hand.
//
// The collector decomposes into four pieces:
//
//  1. A BiBOP (big bag of pages) heap: pages are grouped into homogeneous
//     size-class segments so that any raw address maps back to its owning
//     object in O(1), and each worker allocates through a thread-local
//     buffer (TLAB) for the fast path.
//  2. Conservative root discovery: each worker's captured root words (from
//     a StackCapturer; by default the explicit PushRoot/PopRoot shadow
//     stack, not the goroutine's native stack) are scanned for candidate
//     pointers, augmented by explicit handle scopes and cross-worker handle
//     tables, rather than relying on a precise stack map.
//  3. A generational mark-sweep engine: minor collections trace the young
//     generation plus dirty old-generation cards; major collections trace
//     the whole heap. Sweep runs in two phases (finalize, then reclaim) so
//     that destructors may safely allocate or read other managed objects.
//  4. A cooperative safepoint coordinator: allocation, Gc[T].Drop, and an
//     explicit Safepoint() call are the only places a worker may be parked
//     for a stop-the-world collection.
//
package rudo
