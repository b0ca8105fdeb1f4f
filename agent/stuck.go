package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/hupe1980/agentflow/core"
)

// DefaultStuckPrompt is injected when the loop repeats itself.
const DefaultStuckPrompt = "Observed duplicate responses. Consider new strategies and avoid repeating ineffective paths already attempted."

// Fingerprint identifies an assistant message for duplicate detection: the
// trimmed content, or a digest of the tool call names and arguments when the
// content is empty. Call ids are ignored.
func Fingerprint(msg core.Message) string {
	if text := msg.Text(); text != "" {
		return text
	}
	if !msg.HasToolCalls() {
		return ""
	}
	h := sha256.New()
	for _, c := range msg.ToolCalls {
		h.Write([]byte(c.Name))
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(c.Arguments)))
		h.Write([]byte{0})
	}
	return "calls:" + hex.EncodeToString(h.Sum(nil))[:16]
}

// stuckDetector counts consecutive identical fingerprints.
type stuckDetector struct {
	threshold int
	last      string
	streak    int
}

// observe records fp and reports whether the streak reached the threshold.
// Empty fingerprints reset the streak.
func (d *stuckDetector) observe(fp string) bool {
	if fp == "" {
		d.last, d.streak = "", 0
		return false
	}
	if fp == d.last {
		d.streak++
	} else {
		d.last, d.streak = fp, 1
	}
	return d.threshold > 0 && d.streak >= d.threshold
}

func (d *stuckDetector) reset() { d.last, d.streak = "", 0 }
