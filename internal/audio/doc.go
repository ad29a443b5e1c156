// Package audio provides the single audio output device used for speech
// playback, built on oto/v3. A device plays whole buffers and, when it
// implements StreamingDevice, accepts encoded audio incrementally through a
// Sink so playback can start before the last chunk has arrived.
package audio
