package codegen

import (
	"context"
	"errors"
	"io"
	"sync"

	"pkt.systems/codeforge/schema"
	"pkt.systems/pslog"
)

const readChunkSize = 32 * 1024

// fragmentStream reads a response body in the background and hands out
// fragments in arrival order.
type fragmentStream struct {
	fragments chan schema.Fragment
	errMu     sync.Mutex
	err       error
	cancel    context.CancelFunc
	body      io.ReadCloser
	done      chan struct{}
	closeOnce sync.Once
	log       pslog.Logger
}

func newFragmentStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, framing Framing, strict bool) *fragmentStream {
	stream := &fragmentStream{
		fragments: make(chan schema.Fragment, 256),
		cancel:    cancel,
		body:      body,
		done:      make(chan struct{}),
		log:       pslog.Ctx(ctx),
	}
	var f framer = rawFramer{}
	if framing == FramingNDJSON {
		f = &ndjsonFramer{}
	}
	go stream.read(ctx, newTextDecoder(strict), f)
	return stream
}

func (s *fragmentStream) read(ctx context.Context, decoder *textDecoder, f framer) {
	defer close(s.done)
	defer close(s.fragments)
	buf := make([]byte, readChunkSize)
	delivered := 0
	chunks := 0
	for {
		n, readErr := s.body.Read(buf)
		atEOF := errors.Is(readErr, io.EOF)
		if n > 0 || atEOF {
			chunks++
			text, err := decoder.Decode(buf[:n], atEOF)
			frags, frameErr := f.Feed(text)
			if atEOF && err == nil && frameErr == nil {
				var tail []schema.Fragment
				tail, frameErr = f.Flush()
				frags = append(frags, tail...)
			}
			for _, frag := range frags {
				if !s.emit(ctx, frag) {
					return
				}
				delivered++
			}
			if err == nil {
				err = frameErr
			}
			if err != nil {
				if s.log != nil {
					s.log.Warn("codegen stream decode failed", "err", err, "fragments", delivered)
				}
				s.setErr(err)
				return
			}
		}
		if atEOF {
			if s.log != nil {
				s.log.Debug("codegen stream completed", "fragments", delivered, "chunks", chunks)
			}
			return
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.setErr(ctxErr)
				return
			}
			if s.log != nil {
				s.log.Warn("codegen stream read failed", "err", readErr, "fragments", delivered)
			}
			s.setErr(&schema.TransportError{Op: "generate", Interrupted: delivered > 0, Err: readErr})
			return
		}
	}
}

func (s *fragmentStream) emit(ctx context.Context, frag schema.Fragment) bool {
	if frag.Delta == "" {
		return true
	}
	select {
	case s.fragments <- frag:
		return true
	case <-ctx.Done():
		s.setErr(ctx.Err())
		return false
	}
}

func (s *fragmentStream) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Next returns the next fragment, io.EOF after a clean end, or the error
// that ended the stream.
func (s *fragmentStream) Next(ctx context.Context) (schema.Fragment, error) {
	select {
	case <-ctx.Done():
		return schema.Fragment{}, ctx.Err()
	case frag, ok := <-s.fragments:
		if ok {
			return frag, nil
		}
		s.errMu.Lock()
		err := s.err
		s.errMu.Unlock()
		if err != nil {
			return schema.Fragment{}, err
		}
		return schema.Fragment{}, io.EOF
	}
}

// Close aborts the request and waits for the reader to exit.
func (s *fragmentStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
		<-s.done
	})
	return err
}
