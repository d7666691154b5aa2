// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refine

import (
	"strings"

	"github.com/pdiddy/newsdesk/pkg/types"
)

// MergeFeedback builds the guidance for the next draft. The reviewer's
// improvements come first; editor text is appended as additional guidance
// and never replaces them.
func MergeFeedback(crit types.Critique, human *types.HumanFeedback) string {
	var b strings.Builder
	if len(crit.Improvements) > 0 {
		b.WriteString("Improvements requested by the reviewer:\n")
		for _, item := range crit.Improvements {
			b.WriteString("- ")
			b.WriteString(item)
			b.WriteByte('\n')
		}
	}
	if human != nil {
		if text := strings.TrimSpace(human.Text); text != "" {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("Additional guidance from the editor:\n")
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}
