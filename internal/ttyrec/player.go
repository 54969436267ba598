package ttyrec

import (
	"context"
	"io"
	"time"
)

// PlayOptions configures Play's pacing.
type PlayOptions struct {
	// Speed scales the inter-frame delay: 2.0 plays twice as fast, 0.5
	// half as fast. A non-positive value disables pacing entirely (dump
	// the recording as fast as it can be read).
	Speed float64
}

// Play reads frames from r and writes each frame's bytes to w, sleeping
// the recorded inter-frame delta (scaled by opts.Speed) between writes —
// a dumb byte-accurate player, not a VT emulator, matching the ttyrec
// ecosystem's own `ttyplay` convention (spec.md §4.9).
func Play(ctx context.Context, r io.Reader, w io.Writer, opts PlayOptions) error {
	speed := opts.Speed

	rr := NewReader(r)
	var prev time.Time
	first := true

	for {
		frame, err := rr.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if !first && speed > 0 {
			delta := frame.Time.Sub(prev)
			if delta > 0 {
				sleep := time.Duration(float64(delta) / speed)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(sleep):
				}
			}
		}
		first = false
		prev = frame.Time

		if _, err := w.Write(frame.Data); err != nil {
			return err
		}
	}
}
