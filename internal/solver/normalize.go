package solver

import "quizsolver/internal/scorer"

// Verdict is what a scorer response says about one question.
type Verdict int

const (
	Unknown Verdict = iota
	Correct
	Incorrect
)

func (v Verdict) String() string {
	switch v {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "unknown"
	}
}

// Normalize reduces a result payload to a verdict for questionID:
//
//	absent                     -> Unknown
//	scalar 1/"1" or 0/"0"      -> Correct or Incorrect
//	mapping with questionID    -> the entry's value as a scalar
//	mapping without it         -> first 1/0 scalar among its values
//	sequence                   -> first 1/0 scalar among its items
//
// Anything else is Unknown. The unkeyed scans can pick up another
// question's bit when the scorer omits per-question keys.
func Normalize(p scorer.Payload, questionID string) Verdict {
	switch v := p.(type) {
	case scorer.Scalar:
		return scalarVerdict(v)
	case scorer.Mapping:
		if entry, ok := v.Lookup(questionID); ok {
			if s, ok := entry.(scorer.Scalar); ok {
				return scalarVerdict(s)
			}
			return Unknown
		}
		return firstBit(v.Values())
	case scorer.Sequence:
		return firstBit(v.Items)
	default:
		return Unknown
	}
}

func scalarVerdict(s scorer.Scalar) Verdict {
	bit, ok := s.Bit()
	switch {
	case !ok:
		return Unknown
	case bit == 1:
		return Correct
	default:
		return Incorrect
	}
}

func firstBit(items []scorer.Payload) Verdict {
	for _, item := range items {
		s, ok := item.(scorer.Scalar)
		if !ok {
			continue
		}
		if _, ok := s.Bit(); ok {
			return scalarVerdict(s)
		}
	}
	return Unknown
}
