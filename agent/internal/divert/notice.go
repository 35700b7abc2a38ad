package divert

import (
	"regexp"
	"strings"
	"time"
)

// Status is the switch position a notice reports for one named site.
type Status string

const (
	StatusDivert Status = "Divert"
	StatusBypass Status = "Bypass"
)

// lineupHeader marks the start of the per-site status block in a notice body.
const lineupHeader = "New Switch Line-Up:"

var (
	// Subject timestamps look like "2025_07_01 14:44".
	subjectTimestamp = regexp.MustCompile(`(\d{4}_\d{2}_\d{2}\s+\d{2}:\d{2})`)

	// "SoG_East: Bypass", "[1] Barkley Cnyn: Divert".
	lineupEntry = regexp.MustCompile(`(?im)^\s*([A-Za-z0-9_\[\]][A-Za-z0-9_\[\] ]*?)\s*:\s*(bypass|divert)\b`)

	// "[1] " prefix used by NC-DDS notices.
	bracketPrefix = regexp.MustCompile(`^\[[0-9]+\]\s*`)
)

// Notice is one parsed operator divert notification.
type Notice struct {
	// Timestamp is taken from the subject; it falls back to the message
	// Date header when the subject carries none.
	Timestamp time.Time

	// System is the data distribution system named in the subject
	// (SoG DDS, NC-DDS, Saanich DDS), or empty.
	System string

	// Statuses maps the site names from the line-up block to their status.
	Statuses map[string]Status

	// Origin identifies where the notice came from (file name, message id).
	Origin string
}

// IsNoticeSubject reports whether subject looks like a divert notification.
func IsNoticeSubject(subject string) bool {
	return strings.Contains(subject, "[Divert]") || strings.Contains(subject, "DDS")
}

// ParseNotice extracts timestamp, system and site statuses from a notice.
// Unparseable parts are left empty; ParseNotice never fails.
func ParseNotice(subject, body string) Notice {
	n := Notice{Statuses: make(map[string]Status)}

	if m := subjectTimestamp.FindString(subject); m != "" {
		ts, err := time.Parse("2006-01-02 15:04", strings.ReplaceAll(strings.Join(strings.Fields(m), " "), "_", "-"))
		if err == nil {
			n.Timestamp = ts
		}
	}

	switch {
	case strings.Contains(subject, "SoG DDS"):
		n.System = "SoG DDS"
	case strings.Contains(subject, "NC-DDS"):
		n.System = "NC-DDS"
	case strings.Contains(subject, "Saanich DDS"):
		n.System = "Saanich DDS"
	}

	section := lineupSection(body)
	for _, m := range lineupEntry.FindAllStringSubmatch(section, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		n.Statuses[name] = normaliseStatus(m[2])
	}
	return n
}

// lineupSection returns the lines after the line-up header up to the first
// separator line (a long run of underscores or dashes).
func lineupSection(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	i := strings.Index(body, lineupHeader)
	if i < 0 {
		return ""
	}
	lines := strings.Split(body[i+len(lineupHeader):], "\n")
	var keep []string
	for _, line := range lines {
		if isSeparator(line) {
			break
		}
		keep = append(keep, line)
	}
	return strings.Join(keep, "\n")
}

func isSeparator(line string) bool {
	return len(line) > 20 && (strings.Count(line, "_") > 10 || strings.Count(line, "-") > 10)
}

func normaliseStatus(s string) Status {
	if strings.EqualFold(s, string(StatusDivert)) {
		return StatusDivert
	}
	return StatusBypass
}

// baseName strips the "[n] " prefix from a site name.
func baseName(name string) string {
	return bracketPrefix.ReplaceAllString(name, "")
}
