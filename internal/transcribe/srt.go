package transcribe

import (
	"fmt"
	"strings"
	"time"
)

// Segment is a single timed span of transcribed speech.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// RenderSRT produces a SubRip document from timed segments. Cue numbers
// stay consecutive even when blank segments are dropped.
func RenderSRT(segments []Segment) string {
	var b strings.Builder
	cue := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		cue++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			cue, srtTimestamp(seg.Start), srtTimestamp(seg.End), text)
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
