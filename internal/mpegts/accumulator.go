package mpegts

import "sort"

type pidKind int

const (
	kindPES pidKind = iota
	kindPSI
	kindSection
)

// accumulator collects the payloads of one PID until a unit is complete.
type accumulator struct {
	pid     uint16
	kind    pidKind
	started bool
	lastCC  uint8
	offset  int64
	rap     bool
	payload []byte
}

type unitBytes struct {
	pid     uint16
	kind    pidKind
	offset  int64
	rap     bool
	payload []byte
}

// add appends p and returns the unit completed by it, if any.
func (a *accumulator) add(p *Packet) *unitBytes {
	if p.TransportError {
		a.reset()
		return nil
	}
	if !p.HasPayload {
		return nil
	}

	if a.started && !p.Discontinuity {
		expected := (a.lastCC + 1) & 0x0F
		if p.ContinuityCounter != expected {
			if p.ContinuityCounter == a.lastCC {
				return nil // duplicate
			}
			a.reset()
		}
	}
	a.lastCC = p.ContinuityCounter

	var done *unitBytes
	if p.PayloadStart {
		done = a.take()
		a.started = true
		a.offset = p.Offset
		a.rap = p.RandomAccess
	} else if !a.started {
		return nil // joined mid-unit
	}
	a.payload = append(a.payload, p.Payload...)

	if done == nil && a.complete() {
		done = a.take()
	}
	return done
}

// complete reports whether the buffered payload already holds a whole unit.
func (a *accumulator) complete() bool {
	switch a.kind {
	case kindPES:
		if len(a.payload) < 6 {
			return false
		}
		n := int(a.payload[4])<<8 | int(a.payload[5])
		return n > 0 && len(a.payload) >= 6+n
	default:
		return sectionsComplete(a.payload, a.kind == kindPSI)
	}
}

func (a *accumulator) take() *unitBytes {
	if !a.started || len(a.payload) == 0 {
		return nil
	}
	u := &unitBytes{pid: a.pid, kind: a.kind, offset: a.offset, rap: a.rap, payload: a.payload}
	a.payload = nil
	a.started = false
	return u
}

func (a *accumulator) reset() {
	a.payload = nil
	a.started = false
}

// sectionsComplete reports whether a pointer-field-prefixed payload holds
// only complete sections. PAT and PMT sections set section_syntax_indicator,
// so with strict set a clear bit is read as the start of padding.
func sectionsComplete(payload []byte, strict bool) bool {
	if len(payload) < 1 {
		return false
	}
	offset := 1 + int(payload[0])
	if offset >= len(payload) {
		return false
	}
	for offset < len(payload) {
		if payload[offset] == 0xFF {
			return true
		}
		if offset+3 > len(payload) {
			return false
		}
		if strict && payload[offset+1]&0x80 == 0 {
			return true
		}
		n := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
		if offset+3+n > len(payload) {
			return false
		}
		offset += 3 + n
	}
	return true
}

// pidTable holds the accumulators of every PID seen so far.
type pidTable struct {
	accs  map[uint16]*accumulator
	kinds map[uint16]pidKind
}

func newPIDTable() *pidTable {
	return &pidTable{
		accs:  make(map[uint16]*accumulator),
		kinds: map[uint16]pidKind{pidPAT: kindPSI},
	}
}

func (t *pidTable) setKind(pid uint16, k pidKind) {
	t.kinds[pid] = k
	if a, ok := t.accs[pid]; ok {
		a.kind = k
	}
}

func (t *pidTable) add(p *Packet) *unitBytes {
	a, ok := t.accs[p.PID]
	if !ok {
		a = &accumulator{pid: p.PID, kind: t.kinds[p.PID]}
		t.accs[p.PID] = a
	}
	return a.add(p)
}

// drain flushes every partial unit in PID order, so the PAT comes first.
func (t *pidTable) drain() []*unitBytes {
	pids := make([]int, 0, len(t.accs))
	for pid := range t.accs {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)

	var out []*unitBytes
	for _, pid := range pids {
		if u := t.accs[uint16(pid)].take(); u != nil {
			out = append(out, u)
		}
	}
	return out
}

// clear drops partial units but keeps PID roles.
func (t *pidTable) clear() {
	for _, a := range t.accs {
		a.reset()
	}
}
