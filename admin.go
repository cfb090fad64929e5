package bucketd

import (
	"fmt"
	"strings"
)

// HandleAdminCommand executes one line of the admin protocol against the store and returns the response
// text (without the trailing newline) and whether the connection should be closed afterwards.
// The caller must hold the store lock.
func (b *Buckets) HandleAdminCommand(line string) (string, bool) {
	words := strings.Fields(line)
	command := ""
	if len(words) > 0 {
		command = words[0]
	}

	switch command {
	case "stats":
		return b.stats(), false
	case "clear":
		if len(words) < 2 {
			return "ERROR: need something to clear!", false
		}
		target := words[1]
		if !b.Clear(target) {
			return fmt.Sprintf("ERROR: Nothing named '%s' to clear.", target), false
		}
		return strings.Title(target) + " cleared.", false
	case "quit":
		return "END", true
	default:
		return fmt.Sprintf("ERROR: Unknown command: %s", command), false
	}
}

func (b *Buckets) stats() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "uptime: %d s\n", int64(b.Uptime().Seconds()))
	fmt.Fprintf(&sb, "last_message: %d\n", b.LastMessage.Unix())
	fmt.Fprintf(&sb, "bad_messages: %d\n", b.BadMessages)
	fmt.Fprintf(&sb, "total_messages: %d", b.TotalMessages)
	return sb.String()
}
