// Package rangecodec converts between compressed control-number notation
// ("1-5,8,10-12") and explicit sets of control numbers.
//
// The notation is a comma-separated list of tokens.  Each token is either a
// positive integer or a "low-high" range with low <= high.  Whitespace
// around tokens and around the range bounds is ignored.  An input that is
// empty or only whitespace denotes the empty set.  Any integer that would
// appear twice in one input is an overlap and is rejected rather than
// merged.
package rangecodec

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MaxIDs caps how many control numbers a single input may expand to.  A
// typo such as "1-1000000000" must fail instead of exhausting memory.
const MaxIDs = 1 << 20

// MaxControlNumber is the largest control number accepted anywhere.  It
// leaves headroom below math.MaxInt so inclusive range loops terminate.
const MaxControlNumber = math.MaxInt32

var (
	// ErrSyntax matches every *SyntaxError via errors.Is.
	ErrSyntax = errors.New("range syntax error")
	// ErrOverlap matches every *OverlapError via errors.Is.
	ErrOverlap = errors.New("range overlap")
)

// SyntaxError reports a malformed token.  Token is the offending token as
// typed (trimmed); Index is its zero-based position in the input.
type SyntaxError struct {
	Token  string
	Index  int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid control numbers: token %d %q: %s", e.Index+1, e.Token, e.Reason)
}

// Is makes errors.Is(err, ErrSyntax) hold.
func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// OverlapError reports control numbers that appear more than once in a
// single input.  IDs is sorted ascending.
type OverlapError struct {
	IDs []int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping control numbers: %s", Compress(e.IDs))
}

// Is makes errors.Is(err, ErrOverlap) hold.
func (e *OverlapError) Is(target error) bool { return target == ErrOverlap }

type span struct{ low, high int }

// Parse expands text into an ascending, duplicate-free slice of control
// numbers.  It fails with *SyntaxError on malformed input and with
// *OverlapError when tokens overlap each other.
func Parse(text string) ([]int, error) {
	spans, err := scan(text)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, s := range spans {
		if s.high-s.low >= MaxIDs-total {
			return nil, &SyntaxError{Token: strings.TrimSpace(text), Reason: fmt.Sprintf("expands to more than %d control numbers", MaxIDs)}
		}
		total += s.high - s.low + 1
	}
	ids := make([]int, 0, total)
	for _, s := range spans {
		for id := s.low; id <= s.high; id++ {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	var dup []int
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] && (len(dup) == 0 || dup[len(dup)-1] != ids[i]) {
			dup = append(dup, ids[i])
		}
	}
	if len(dup) > 0 {
		return nil, &OverlapError{IDs: dup}
	}
	return ids, nil
}

// ValidateSyntax reports whether text is well-formed notation.  It checks
// the grammar only; overlap between tokens is detected by Parse.
func ValidateSyntax(text string) bool {
	_, err := scan(text)
	return err == nil
}

// Compress renders ids in the shortest notation: ascending order with every
// run of consecutive numbers collapsed into "low-high".  Duplicates in ids
// are ignored.  Parse(Compress(ids)) yields the sorted, de-duplicated ids.
func Compress(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.Ints(sorted)

	var b strings.Builder
	low, prev := sorted[0], sorted[0]
	flush := func() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(low))
		if prev != low {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(prev))
		}
	}
	for _, id := range sorted[1:] {
		switch {
		case id == prev:
			continue
		case id == prev+1:
			prev = id
		default:
			flush()
			low, prev = id, id
		}
	}
	flush()
	return b.String()
}

func scan(text string) ([]span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	tokens := strings.Split(text, ",")
	spans := make([]span, 0, len(tokens))
	for i, raw := range tokens {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			return nil, &SyntaxError{Token: tok, Index: i, Reason: "empty token"}
		}
		lowText, highText, isRange := strings.Cut(tok, "-")
		if !isRange {
			n, err := number(tok)
			if err != nil {
				return nil, &SyntaxError{Token: tok, Index: i, Reason: err.Error()}
			}
			spans = append(spans, span{n, n})
			continue
		}
		low, err := number(strings.TrimSpace(lowText))
		if err != nil {
			return nil, &SyntaxError{Token: tok, Index: i, Reason: "range start: " + err.Error()}
		}
		high, err := number(strings.TrimSpace(highText))
		if err != nil {
			return nil, &SyntaxError{Token: tok, Index: i, Reason: "range end: " + err.Error()}
		}
		if low > high {
			return nil, &SyntaxError{Token: tok, Index: i, Reason: "range start is greater than range end"}
		}
		spans = append(spans, span{low, high})
	}
	return spans, nil
}

// number accepts only plain decimal digits so that signs, spaces and
// exponents are rejected instead of being interpreted.
func number(s string) (int, error) {
	if s == "" {
		return 0, errors.New("missing number")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > MaxControlNumber {
		return 0, errors.New("number out of range")
	}
	if n <= 0 {
		return 0, errors.New("control numbers must be positive")
	}
	return n, nil
}
