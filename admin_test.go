package bucketd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandleAdminCommand(t *testing.T) {
	t.Parallel()
	input := map[string]struct {
		response string
		close    bool
	}{
		"clear counters":   {response: "Counters cleared."},
		"clear gauges":     {response: "Gauges cleared."},
		"clear timers":     {response: "Timers cleared."},
		"clear histograms": {response: "Histograms cleared."},
		"clear":            {response: "ERROR: need something to clear!"},
		"clear   ":         {response: "ERROR: need something to clear!"},
		"clear x":          {response: "ERROR: Nothing named 'x' to clear."},
		"quit":             {response: "END", close: true},
		"quit\r":           {response: "END", close: true},
		"frobnicate now":   {response: "ERROR: Unknown command: frobnicate"},
		"":                 {response: "ERROR: Unknown command: "},
		"STATS":            {response: "ERROR: Unknown command: STATS"},
	}
	for line, expected := range input {
		line := line
		expected := expected
		t.Run(line, func(t *testing.T) {
			t.Parallel()
			b, _ := newTestBuckets()
			resp, closeConn := b.HandleAdminCommand(line)
			assert.Equal(t, expected.response, resp)
			assert.Equal(t, expected.close, closeConn)
		})
	}
}

func TestHandleAdminCommandStats(t *testing.T) {
	t.Parallel()
	b, clck := newTestBuckets()
	clck.Add(3 * time.Second)
	b.AddMetric(&Metric{Name: "foo", Value: 1, Rate: 1, Type: COUNTER})
	b.AddBadMessage()
	clck.Add(2 * time.Second)

	resp, closeConn := b.HandleAdminCommand("stats")
	assert.False(t, closeConn)
	assert.Equal(t, "uptime: 5 s\nlast_message: 103\nbad_messages: 1\ntotal_messages: 2", resp)
}

func TestHandleAdminCommandClearOnlyTarget(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuckets()
	b.AddMetric(&Metric{Name: "c", Value: 1, Rate: 1, Type: COUNTER})
	b.AddMetric(&Metric{Name: "g", Value: 1, Rate: 1, Type: GAUGE})
	b.AddMetric(&Metric{Name: "t", Value: 1, Rate: 1, Type: TIMER})

	resp, _ := b.HandleAdminCommand("clear counters")
	assert.Equal(t, "Counters cleared.", resp)
	assert.Empty(t, b.Counters)
	assert.Len(t, b.Gauges, 1)
	assert.Len(t, b.Timers, 1)
	assert.EqualValues(t, 3, b.TotalMessages)
}
