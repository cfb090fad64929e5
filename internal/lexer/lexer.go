package lexer

import (
	"bytes"
	"errors"
	"math"
	"strconv"

	"github.com/atlassian/bucketd"
)

// Lexer turns a single `name:value|type[|@rate]` line into a Metric. A Lexer can be reused, but not concurrently.
type Lexer struct {
	// any field added must be considered in Lexer.reset
	input    []byte
	len      uint32
	start    uint32
	pos      uint32
	m        *bucketd.Metric
	value    string
	err      error
	sampling float64
}

// input containing \x00 is rejected by lexStart.
const eof byte = 0

var (
	errMissingKeySep   = errors.New("missing key separator")
	errEmptyKey        = errors.New("key zero len")
	errMissingValueSep = errors.New("missing value separator")
	errEmptyValue      = errors.New("value zero len")
	errInvalidType     = errors.New("invalid type")
	errInvalidFormat   = errors.New("invalid format")
	errInvalidRate     = errors.New("sample rate must be in (0, 1]")
	errRateNotAllowed  = errors.New("sample rate only allowed for counters")
	errNaN             = errors.New("invalid value NaN")
	errInf             = errors.New("invalid value Inf")
	errNullByte        = errors.New("unexpected null byte")
)

func (l *Lexer) next() byte {
	if l.pos >= l.len {
		return eof
	}
	b := l.input[l.pos]
	l.pos++
	return b
}

func (l *Lexer) reset() {
	// l.input = nil  // re-initialized by Run
	// l.len = 0      // re-initialized by Run
	// l.sampling = 1 // re-initialized by Run

	l.start = 0
	l.pos = 0
	l.m = nil
	l.value = ""
	l.err = nil
}

// Run lexes input. On any error no Metric is returned.
func (l *Lexer) Run(input []byte) (*bucketd.Metric, error) {
	l.reset()
	l.input = input
	l.len = uint32(len(l.input))
	l.sampling = float64(1)

	for state := lexStart; state != nil; {
		state = state(l)
	}
	if l.err != nil {
		return nil, l.err
	}

	v, err := parseFloat(l.value)
	if err != nil {
		return nil, err
	}
	l.m.Value = v
	l.m.Rate = l.sampling
	return l.m, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) {
		return 0, errNaN
	}
	if math.IsInf(v, 0) {
		return 0, errInf
	}
	return v, nil
}

type stateFn func(*Lexer) stateFn

func lexStart(l *Lexer) stateFn {
	if bytes.IndexByte(l.input, eof) != -1 {
		l.err = errNullByte
		return nil
	}
	l.m = &bucketd.Metric{}
	return lexKeySep
}

// lex until we find the colon separator between key and value.
func lexKeySep(l *Lexer) stateFn {
	for {
		switch b := l.next(); b {
		case ':':
			return lexKey
		case eof:
			l.err = errMissingKeySep
			return nil
		}
	}
}

// lex the key.
func lexKey(l *Lexer) stateFn {
	if l.start == l.pos-1 {
		l.err = errEmptyKey
		return nil
	}
	l.m.Name = string(l.input[l.start : l.pos-1])
	l.start = l.pos
	return lexValueSep
}

// lex until we find the pipe separator between value and type.
func lexValueSep(l *Lexer) stateFn {
	for {
		// cheap check here. ParseFloat will do it.
		switch b := l.next(); b {
		case '|':
			return lexValue
		case eof:
			l.err = errMissingValueSep
			return nil
		}
	}
}

// lex the value.
func lexValue(l *Lexer) stateFn {
	if l.start == l.pos-1 {
		l.err = errEmptyValue
		return nil
	}
	l.value = string(l.input[l.start : l.pos-1])
	l.start = l.pos
	return lexType
}

// lex the type.
func lexType(l *Lexer) stateFn {
	switch b := l.next(); b {
	case 'c':
		l.m.Type = bucketd.COUNTER
	case 'g':
		l.m.Type = bucketd.GAUGE
	case 'm':
		if b := l.next(); b != 's' {
			l.err = errInvalidType
			return nil
		}
		l.m.Type = bucketd.TIMER
	case 'h':
		l.m.Type = bucketd.HISTOGRAM
	default:
		l.err = errInvalidType
		return nil
	}
	l.start = l.pos
	return lexTypeEnd
}

// lex the end of the type, which is either the end of input or the separator before the sample rate.
func lexTypeEnd(l *Lexer) stateFn {
	switch b := l.next(); b {
	case '|':
		return lexSampleRate
	case eof:
	default:
		l.err = errInvalidType
	}
	return nil
}

// lex the sample rate. It must be the last field on the line.
func lexSampleRate(l *Lexer) stateFn {
	if b := l.next(); b != '@' {
		l.err = errInvalidFormat
		return nil
	}
	if l.m.Type != bucketd.COUNTER {
		l.err = errRateNotAllowed
		return nil
	}
	l.start = l.pos
	for {
		switch b := l.next(); b {
		case '|':
			l.err = errInvalidFormat
			return nil
		case eof:
			return lexSampleRateValue
		}
	}
}

func lexSampleRateValue(l *Lexer) stateFn {
	v, err := parseFloat(string(l.input[l.start:l.pos]))
	if err != nil {
		l.err = err
		return nil
	}
	if v <= 0 || v > 1 {
		l.err = errInvalidRate
		return nil
	}
	l.sampling = v
	return nil
}
