// Package cache keeps synthesized sentence audio so repeated sentences play
// without another synthesis round trip. Clips live in an in-memory LRU (L1)
// backed by a zstd-compressed directory (L2) that survives restarts.
package cache
