// Package tts provides text-to-speech clients for the fallback interviewer
// voice. Both stream 48kHz PCM mono over a channel pair so playback can
// start before synthesis finishes.
package tts

import "context"

// Speaker streams synthesized speech for the given text. The byte channel
// closes when synthesis ends; a single error may arrive on the error
// channel. Both close on context cancellation.
type Speaker interface {
	Stream(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Collect drains a Speaker stream into one buffer, for callers that play
// whole utterances instead of chunks.
func Collect(ctx context.Context, s Speaker, text string) ([]byte, error) {
	pcmCh, errCh := s.Stream(ctx, text)
	var out []byte
	var firstErr error
	openPCM, openErr := true, true
	for openPCM || openErr {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				openPCM = false
				continue
			}
			out = append(out, b...)
		case e, ok := <-errCh:
			if !ok {
				openErr = false
				continue
			}
			if e != nil && firstErr == nil {
				firstErr = e
			}
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
