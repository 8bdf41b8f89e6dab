package router

import (
	"strings"
)

// UsageLines renders one "/usage - description" line per command, owner-only
// commands last.
func UsageLines(cmds []Command) []string {
	var public, owner []string
	for _, c := range cmds {
		usage := strings.TrimSpace(c.Usage)
		if usage == "" {
			usage = "/" + c.Name
		}
		line := usage
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + d
		}
		if c.Access == AccessOwnerOnly {
			owner = append(owner, ownerOnlyPrefix+line)
			continue
		}
		public = append(public, line)
	}
	return append(public, owner...)
}
