// Package speech turns a stream of generated text fragments into complete
// sentences that can be handed to the speech synthesizer one at a time.
package speech
