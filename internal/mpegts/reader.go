package mpegts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
)

// Reader splits a transport stream into units. It is not safe for
// concurrent use.
type Reader struct {
	log     *slog.Logger
	r       io.Reader
	buf     []byte
	offset  int64
	pids    *pidTable
	pending []Unit
	eof     bool
}

// NewReader returns a Reader consuming r from its current position, which is
// taken to be offset zero. If log is nil, slog.Default() is used.
func NewReader(r io.Reader, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{
		log:  log.With("component", "mpegts"),
		r:    r,
		buf:  make([]byte, PacketSize),
		pids: newPIDTable(),
	}
}

// WatchSections makes the Reader emit the private sections carried on pid,
// such as SCTE-35 splice information, as Section units.
func (r *Reader) WatchSections(pid uint16) {
	r.pids.setKind(pid, kindSection)
}

// Offset returns the input offset of the next packet to be read.
func (r *Reader) Offset() int64 { return r.offset }

// Reset discards partially assembled units after the caller repositioned
// the underlying reader to offset. Known PMT and section PIDs are kept.
func (r *Reader) Reset(offset int64) {
	r.pids.clear()
	r.pending = nil
	r.eof = false
	r.offset = offset
}

// Next returns the next unit. At the end of input the partial units still
// buffered are flushed, then io.EOF is returned.
func (r *Reader) Next(ctx context.Context) (Unit, error) {
	for {
		if len(r.pending) > 0 {
			u := r.pending[0]
			r.pending = r.pending[1:]
			return u, nil
		}
		if r.eof {
			return Unit{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Unit{}, err
		}

		p, err := r.readPacket()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.eof = true
			for _, ub := range r.pids.drain() {
				r.pending = append(r.pending, r.decode(ub)...)
			}
			continue
		}
		if err != nil {
			return Unit{}, err
		}

		if ub := r.pids.add(p); ub != nil {
			r.pending = append(r.pending, r.decode(ub)...)
		}
	}
}

func (r *Reader) readPacket() (*Packet, error) {
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		return nil, err
	}
	for r.buf[0] != syncByte {
		i := bytes.IndexByte(r.buf[1:], syncByte) + 1
		if i == 0 {
			i = PacketSize
		}
		r.log.Debug("resyncing", "offset", r.offset, "skipped", i)
		r.offset += int64(i)
		n := copy(r.buf, r.buf[i:])
		if _, err := io.ReadFull(r.r, r.buf[n:]); err != nil {
			return nil, err
		}
	}

	p, err := ParsePacket(r.buf)
	if err != nil {
		return nil, err
	}
	p.Offset = r.offset
	r.offset += PacketSize
	return p, nil
}

func (r *Reader) decode(ub *unitBytes) []Unit {
	base := Unit{PID: ub.pid, Offset: ub.offset, RandomAccess: ub.rap}

	switch r.pids.kinds[ub.pid] {
	case kindPSI:
		sections, err := splitSections(ub.payload, true)
		if err != nil {
			r.log.Debug("dropping PSI", "pid", ub.pid, "error", err)
			return nil
		}
		var units []Unit
		for _, s := range sections {
			u := base
			switch s[0] {
			case tableIDPAT:
				if u.PAT, err = parsePAT(s); err == nil {
					for _, pmt := range u.PAT {
						r.pids.setKind(pmt, kindPSI)
					}
				}
			case tableIDPMT:
				u.PMT, err = parsePMT(s, ub.pid)
			default:
				continue
			}
			if err != nil {
				r.log.Debug("dropping PSI section", "pid", ub.pid, "table_id", s[0], "error", err)
				continue
			}
			units = append(units, u)
		}
		return units

	case kindSection:
		sections, err := splitSections(ub.payload, false)
		if err != nil {
			r.log.Debug("dropping section", "pid", ub.pid, "error", err)
			return nil
		}
		var units []Unit
		for _, s := range sections {
			if err := verifyCRC(s); err != nil {
				r.log.Debug("dropping section", "pid", ub.pid, "error", err)
				continue
			}
			u := base
			u.Section = s
			units = append(units, u)
		}
		return units

	default:
		if !isPESStart(ub.payload) {
			return nil
		}
		pes, err := parsePES(ub.payload)
		if err != nil {
			r.log.Debug("dropping PES", "pid", ub.pid, "error", err)
			return nil
		}
		base.PES = pes
		return []Unit{base}
	}
}
