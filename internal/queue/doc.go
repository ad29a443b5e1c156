// Package queue serializes speech playback. Sentences are played one at a
// time, strictly in arrival order, by a single drain goroutine that exists
// only while there is work.
package queue
