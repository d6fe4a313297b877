package notify

import (
	"fmt"
	"strings"

	"idlwatch/internal/store"
)

// severityOrder fixes the bucket order in rendered messages.
var severityOrder = []string{"critical", "high", "medium", "low"}

// ChangeItem is one change as it appears in an outbound message.
type ChangeItem struct {
	ID         string `json:"id"`
	ChangeType string `json:"change_type"`
	Severity   string `json:"severity"`
	Summary    string `json:"summary"`
	DetectedAt int64  `json:"detected_at"`
}

// Message is one aggregated notification: every pending change for a
// single target, rendered once and delivered to each subscriber.
type Message struct {
	Target     string       `json:"target"`
	TargetName string       `json:"target_name"`
	Changes    []ChangeItem `json:"changes"`
	Summary    string       `json:"summary"`
}

// buildMessage aggregates a target's pending changes into one message.
// Buckets run critical to low; each bucket previews at most
// previewLimit items with a "+N more" suffix.
func buildMessage(target *store.Target, changes []*store.ChangeRecord, previewLimit int) *Message {
	msg := &Message{
		Target:     target.Address,
		TargetName: target.Name,
	}

	counts := make(map[string]int)
	buckets := make(map[string][]ChangeItem)
	for _, c := range changes {
		counts[c.Severity]++
		buckets[c.Severity] = append(buckets[c.Severity], ChangeItem{
			ID:         c.ID,
			ChangeType: c.ChangeType,
			Severity:   c.Severity,
			Summary:    c.Summary,
			DetectedAt: c.DetectedAt,
		})
	}

	var parts []string
	for _, sev := range severityOrder {
		n := counts[sev]
		if n == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, sev))

		items := buckets[sev]
		if len(items) > previewLimit {
			items = items[:previewLimit]
			items = append(items, ChangeItem{
				Severity: sev,
				Summary:  fmt.Sprintf("+%d more", n-previewLimit),
			})
		}
		msg.Changes = append(msg.Changes, items...)
	}

	noun := "changes"
	if len(changes) == 1 {
		noun = "change"
	}
	msg.Summary = fmt.Sprintf("%s (%s): %d %s (%s)",
		target.Name, target.Address, len(changes), noun, strings.Join(parts, ", "))
	return msg
}

// Text renders the message for plain-text channels.
func (m *Message) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n%s\n", m.TargetName, m.Summary)
	current := ""
	for _, c := range m.Changes {
		if c.Severity != current {
			current = c.Severity
			fmt.Fprintf(&b, "\n[%s]\n", strings.ToUpper(current))
		}
		if c.ChangeType == "" {
			fmt.Fprintf(&b, "  %s\n", c.Summary)
			continue
		}
		fmt.Fprintf(&b, "  - %s\n", c.Summary)
	}
	return b.String()
}
