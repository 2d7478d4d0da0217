// Package encoding implements the quality-encoding bijection (C3) between a
// declared ASCII quality-byte range (Phred+33, Phred+64, Solexa) and the
// internal Phred+33 representation used everywhere else in the pipeline.
package encoding

import (
	"math"

	"github.com/loganrosen/adapterremoval/internal/ngserr"
)

const (
	phredOffset33 = 33
	phredMin33    = 33
	phredMax33    = 126
)

// Encoding describes one input quality encoding: the valid raw byte range
// and the lookup tables used to decode into, and encode out of, internal
// Phred+33 bytes.
type Encoding struct {
	Name       string
	Min, Max   byte
	decodeToP  [256]byte
	decodeOK   [256]bool
	encodeFrom [256]byte
}

// Phred33 is the standard Sanger/Illumina 1.8+ encoding; decode is the
// identity function.
var Phred33 = buildLinear("Phred+33", 33, 126, phredOffset33)

// Phred64 is the Illumina 1.3-1.7 encoding.
var Phred64 = buildLinear("Phred+64", 64, 126, 64)

// Solexa is the original Solexa/GA pipeline encoding, which uses a
// log-odds quality score rather than a raw Phred score.
var Solexa = buildSolexa("Solexa", 59, 126)

func clampByte(v int) byte {
	if v < phredMin33 {
		return phredMin33
	}
	if v > phredMax33 {
		return phredMax33
	}
	return byte(v)
}

func buildLinear(name string, min, max byte, offset int) *Encoding {
	e := &Encoding{Name: name, Min: min, Max: max}
	for raw := int(min); raw <= int(max); raw++ {
		phred := raw - offset
		internal := clampByte(phred + phredOffset33)
		e.decodeToP[raw] = internal
		e.decodeOK[raw] = true
	}
	for internal := phredMin33; internal <= phredMax33; internal++ {
		phred := internal - phredOffset33
		raw := phred + offset
		if raw < int(min) {
			raw = int(min)
		}
		if raw > int(max) {
			raw = int(max)
		}
		e.encodeFrom[internal] = byte(raw)
	}
	return e
}

func buildSolexa(name string, min, max byte) *Encoding {
	e := &Encoding{Name: name, Min: min, Max: max}
	for raw := int(min); raw <= int(max); raw++ {
		solexaQ := float64(raw - 64)
		phred := 10 * math.Log10(math.Pow(10, solexaQ/10)+1)
		internal := clampByte(int(math.Round(phred)) + phredOffset33)
		e.decodeToP[raw] = internal
		e.decodeOK[raw] = true
	}
	for internal := phredMin33; internal <= phredMax33; internal++ {
		phred := float64(internal - phredOffset33)
		var solexaQ float64
		if phred <= 0 {
			solexaQ = -6
		} else {
			solexaQ = 10 * math.Log10(math.Pow(10, phred/10)-1)
		}
		raw := int(math.Round(solexaQ)) + 64
		if raw < int(min) {
			raw = int(min)
		}
		if raw > int(max) {
			raw = int(max)
		}
		e.encodeFrom[internal] = byte(raw)
	}
	return e
}

// ByName resolves a short encoding name ("33", "64", "solexa") to its
// Encoding. The CLI's --quality-encoding flag does not go through ByName; it
// takes "phred33", "phred64" or "solexa".
func ByName(name string) (*Encoding, error) {
	switch name {
	case "33":
		return Phred33, nil
	case "64":
		return Phred64, nil
	case "solexa":
		return Solexa, nil
	default:
		return nil, ngserr.ConfigErrorf("unknown quality encoding %q", name)
	}
}

// Decode converts a single raw quality byte into the internal Phred+33
// representation, rejecting bytes outside the encoding's declared range.
func (e *Encoding) Decode(raw byte) (byte, error) {
	if !e.decodeOK[raw] {
		return 0, ngserr.FastqErrorf("invalid quality score byte %d for encoding %s", raw, e.Name)
	}
	return e.decodeToP[raw], nil
}

// DecodeAll decodes every byte of quals in place, returning a FastqError on
// the first out-of-range byte.
func (e *Encoding) DecodeAll(quals []byte) error {
	for i, q := range quals {
		v, err := e.Decode(q)
		if err != nil {
			return err
		}
		quals[i] = v
	}
	return nil
}

// Encode converts a single internal Phred+33 byte back into this encoding's
// raw representation.
func (e *Encoding) Encode(internal byte) byte {
	if internal < phredMin33 || internal > phredMax33 {
		internal = clampByte(int(internal))
	}
	return e.encodeFrom[internal]
}

// EncodeAll returns a newly allocated copy of quals encoded into this
// encoding's raw byte range.
func (e *Encoding) EncodeAll(quals []byte) []byte {
	out := make([]byte, len(quals))
	for i, q := range quals {
		out[i] = e.Encode(q)
	}
	return out
}
