// Package envelope holds the single-or-batch shape of a GraphQL HTTP exchange.
//
// A GraphQL request over HTTP carries either one operation (a JSON object) or
// a batch of operations (a JSON array), and the response must mirror that
// shape. Envelope lets the execution layer return one value for both cases;
// consumers take it apart with Match, which requires a handler for each
// variant.
//
// The variant is decided by the constructor that built the envelope, not by
// the number of elements it holds: Batch with one element is still a batch.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
)

// Kind names the variant of an Envelope.
type Kind int

const (
	// KindSingle is an envelope built by Single.
	KindSingle Kind = iota + 1
	// KindBatch is an envelope built by Batch, whatever its length.
	KindBatch
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindBatch:
		return "batch"
	}
	return "unknown"
}

// Envelope is a closed sum of single[R] and batch[R]. The unexported method
// keeps other packages from adding variants and ties the interface to R, so
// generic helpers can infer R from an Envelope argument alone.
type Envelope[R any] interface {
	Kind() Kind
	// Len reports how many elements the envelope carries: 1 for a single.
	Len() int
	json.Marshaler
	elements() []R
}

type single[R any] struct {
	result R
}

type batch[R any] struct {
	results []R
}

func (single[R]) Kind() Kind { return KindSingle }
func (batch[R]) Kind() Kind  { return KindBatch }
func (single[R]) Len() int   { return 1 }
func (b batch[R]) Len() int  { return len(b.results) }

func (s single[R]) elements() []R { return []R{s.result} }
func (b batch[R]) elements() []R  { return b.results }

// MarshalJSON encodes the element as-is.
func (s single[R]) MarshalJSON() ([]byte, error) { return json.Marshal(s.result) }

// MarshalJSON encodes the elements as a JSON array; an empty batch is [].
func (b batch[R]) MarshalJSON() ([]byte, error) { return json.Marshal(b.results) }

// Single wraps exactly one result.
func Single[R any](r R) Envelope[R] { return single[R]{result: r} }

// Batch wraps an ordered sequence of results. The slice is copied; nil and
// empty inputs both produce an empty batch.
func Batch[R any](rs []R) Envelope[R] {
	out := make([]R, len(rs))
	copy(out, rs)
	return batch[R]{results: out}
}

// Match calls onSingle or onBatch depending on the variant of e and returns
// its result. onBatch receives a copy of the sequence. Match panics if e is
// nil.
func Match[R, X any](e Envelope[R], onSingle func(R) X, onBatch func([]R) X) X {
	switch v := e.(type) {
	case single[R]:
		return onSingle(v.result)
	case batch[R]:
		return onBatch(slices.Clone(v.results))
	}
	panic("envelope: Match on nil Envelope")
}

// Map applies f to every element and keeps the variant and order of e.
func Map[R, S any](e Envelope[R], f func(R) S) Envelope[S] {
	return MapIndexed(e, func(_ int, r R) S { return f(r) })
}

// MapIndexed is Map with the element position; a single element has index 0.
func MapIndexed[R, S any](e Envelope[R], f func(int, R) S) Envelope[S] {
	return Match(e,
		func(r R) Envelope[S] { return Single(f(0, r)) },
		func(rs []R) Envelope[S] {
			out := make([]S, len(rs))
			for i, r := range rs {
				out[i] = f(i, r)
			}
			return batch[S]{results: out}
		},
	)
}

// Len reports how many elements e carries. It is e.Len() as a function, for
// use where a func(Envelope[R]) int is expected.
func Len[R any](e Envelope[R]) int { return e.Len() }

// ErrEmptyBody is returned by Decode when data holds only whitespace.
var ErrEmptyBody = errors.New("envelope: empty body")

// Decode reads a JSON document into an Envelope. A top-level array becomes a
// batch; anything else is decoded as a single element.
func Decode[R any](data []byte) (Envelope[R], error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, ErrEmptyBody
	}
	if trimmed[0] == '[' {
		var rs []R
		if err := json.Unmarshal(trimmed, &rs); err != nil {
			return nil, err
		}
		return Batch(rs), nil
	}
	var r R
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return nil, err
	}
	return Single(r), nil
}
