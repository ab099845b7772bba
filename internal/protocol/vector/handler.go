// Package vector implements the binary batch protocol served after a client
// authenticates.
//
// All integers are big-endian unsigned 32-bit words (XDR unsigned int):
//
//	request:  N, then N times { L, e[0] .. e[L-1] }
//	response: one product per vector, written as soon as that vector has
//	          been read in full
//
// One batch is served per connection.
package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/vcalc/internal/logger"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// ErrProtocol marks truncated input, limit violations and failed result
// writes. The batch is abandoned and the connection must be closed.
var ErrProtocol = errors.New("vector protocol error")

// Limits bounds what a single batch may declare. Zero means unlimited.
type Limits struct {
	MaxVectors      uint32
	MaxVectorLength uint32
}

// Stats describes the work completed for one batch.
type Stats struct {
	Declared uint32 // vector count announced by the client
	Vectors  uint32 // vectors fully read and answered
	Elements uint64 // elements consumed across answered vectors
}

// Handler serves vector batches. It is stateless across batches and safe
// for concurrent use.
type Handler struct {
	limits Limits
	log    *logger.Logger
}

// NewHandler creates a Handler enforcing limits.
func NewHandler(limits Limits, log *logger.Logger) *Handler {
	return &Handler{limits: limits, log: log}
}

// Serve reads one batch from rw and streams one product per vector back.
//
// The context is checked between vectors; a cancelled context aborts the
// batch with ctx.Err(). Callers cancel it only when a batch must be cut short. Any other failure wraps ErrProtocol. Stats are valid
// in both cases and count only vectors whose result was written.
func (h *Handler) Serve(ctx context.Context, rw io.ReadWriter) (Stats, error) {
	var stats Stats
	start := time.Now()

	count, err := readUint32(rw)
	if err != nil {
		return stats, fmt.Errorf("%w: read vector count: %w", ErrProtocol, err)
	}
	stats.Declared = count

	if h.limits.MaxVectors > 0 && count > h.limits.MaxVectors {
		return stats, fmt.Errorf("%w: batch declares %d vectors, limit is %d",
			ErrProtocol, count, h.limits.MaxVectors)
	}
	h.log.Debug("Batch started", logger.KeyVectors, count)

	buf, release := acquireChunk()
	defer release()

	var acc Accumulator
	for i := uint32(0); i < count; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		length, err := readUint32(rw)
		if err != nil {
			return stats, fmt.Errorf("%w: read length of vector %d: %w", ErrProtocol, i, err)
		}
		if h.limits.MaxVectorLength > 0 && length > h.limits.MaxVectorLength {
			return stats, fmt.Errorf("%w: vector %d declares %d elements, limit is %d",
				ErrProtocol, i, length, h.limits.MaxVectorLength)
		}

		acc.Reset()
		if err := readElements(rw, length, buf, &acc); err != nil {
			return stats, fmt.Errorf("%w: read elements of vector %d: %w", ErrProtocol, i, err)
		}

		product := acc.Result()
		if err := writeUint32(rw, product); err != nil {
			return stats, fmt.Errorf("%w: write result of vector %d: %w", ErrProtocol, i, err)
		}

		stats.Vectors++
		stats.Elements += acc.Count()
	}

	h.log.Debug("Batch complete",
		logger.KeyVectors, stats.Vectors,
		logger.KeyElements, stats.Elements,
		logger.KeyDuration, logger.Duration(start))
	return stats, nil
}

// readElements consumes n big-endian words from r through buf and folds them
// into acc. A short read fails the whole vector.
func readElements(r io.Reader, n uint32, buf []byte, acc *Accumulator) error {
	remaining := int(n)
	for remaining > 0 {
		batch := min(remaining, len(buf)/4)
		chunk := buf[:batch*4]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return err
		}
		for off := 0; off < len(chunk); off += 4 {
			acc.add(binary.BigEndian.Uint32(chunk[off:]))
		}
		remaining -= batch
	}
	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	if _, err := xdr.Unmarshal(r, &v); err != nil {
		return 0, ioCause(err)
	}
	return v, nil
}

func writeUint32(w io.Writer, v uint32) error {
	_, err := xdr.Marshal(w, &v)
	return ioCause(err)
}

// ioCause returns the transport error behind an xdr I/O failure. The xdr
// error types do not implement Unwrap, which would hide io.EOF and
// net.Error from errors.Is and errors.As.
func ioCause(err error) error {
	var uerr *xdr.UnmarshalError
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err
	}
	var merr *xdr.MarshalError
	if errors.As(err, &merr) && merr.Err != nil {
		return merr.Err
	}
	return err
}
