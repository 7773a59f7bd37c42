package resource

import (
	"context"
	"io"
)

// ThrottledWriter applies the controller's IO limit to an io.Writer.
// Chunk frame writes stream through it.
type ThrottledWriter struct {
	w   io.Writer
	rc  *Controller
	ctx context.Context
}

// NewThrottledWriter wraps w with the controller's IO limit.
func NewThrottledWriter(ctx context.Context, rc *Controller, w io.Writer) *ThrottledWriter {
	return &ThrottledWriter{w: w, rc: rc, ctx: ctx}
}

func (w *ThrottledWriter) Write(p []byte) (int, error) {
	if err := w.rc.AcquireIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}

// ThrottledReader applies the controller's IO limit to an io.Reader.
type ThrottledReader struct {
	r   io.Reader
	rc  *Controller
	ctx context.Context
}

// NewThrottledReader wraps r with the controller's IO limit.
func NewThrottledReader(ctx context.Context, rc *Controller, r io.Reader) *ThrottledReader {
	return &ThrottledReader{r: r, rc: rc, ctx: ctx}
}

// Read admits up to len(p) bytes against the limit before reading. Short
// reads over-charge the limiter by the shortfall, which errs on the slow
// side.
func (r *ThrottledReader) Read(p []byte) (int, error) {
	if err := r.rc.AcquireIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
