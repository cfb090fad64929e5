package statsd

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/internal/lexer"
)

var errInvalidUTF8 = errors.New("datagram is not valid UTF-8")

// DatagramParser turns datagram payloads into Metrics. Not safe for concurrent use.
type DatagramParser struct {
	lexer lexer.Lexer
}

// Parse decodes and parses a single datagram. A single trailing newline (with an optional carriage
// return before it) is ignored.
func (dp *DatagramParser) Parse(payload []byte) (*bucketd.Metric, error) {
	if !utf8.Valid(payload) {
		return nil, errInvalidUTF8
	}
	line := payload
	if bytes.HasSuffix(line, []byte{'\n'}) {
		line = line[:len(line)-1]
		line = bytes.TrimSuffix(line, []byte{'\r'})
	}
	return dp.lexer.Run(line)
}
