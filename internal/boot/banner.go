package boot

import (
	"fmt"
	"strings"
	"time"
)

const bannerWidth = 58

// Banner renders the startup screen from the collected diagnostics.
func Banner(version string, d *Diagnostics, addr string) string {
	sep := strings.Repeat("=", bannerWidth)
	line := strings.Repeat("-", bannerWidth)

	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s\n", sep)
	fmt.Fprintf(&b, "    FOREMAN v%s -- task orchestrator\n", version)
	fmt.Fprintf(&b, "    http://%s\n", addr)
	fmt.Fprintf(&b, "    %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "  %s\n", line)

	fmt.Fprintf(&b, "    %s ollama", onOff(d.OllamaOnline))
	if d.OllamaOnline {
		fmt.Fprintf(&b, "       %d models", len(d.Models))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "    agents:       %d discovered\n", d.AgentCount)
	fmt.Fprintf(&b, "    tasks:        %d pending on disk\n", d.PendingTasks)
	if d.LastCheckpoint != "" {
		fmt.Fprintf(&b, "    checkpoint:   %s\n", truncate(d.LastCheckpoint, bannerWidth-18))
	}
	if d.DiskFreeMB > 0 {
		fmt.Fprintf(&b, "    disk free:    %d MB\n", d.DiskFreeMB)
	}
	if d.PortBound {
		b.WriteString("    WARNING: port already bound by another process\n")
	}
	fmt.Fprintf(&b, "  %s\n", sep)
	return b.String()
}

func onOff(ok bool) string {
	if ok {
		return "[ON]"
	}
	return "[--]"
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
