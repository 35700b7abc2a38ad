package divert

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hydrowatch/hydrowatch/pkg/types"
)

const ncddsBody = `Automated switch notification.

New Switch Line-Up:
[1] Barkley Cnyn: Divert
[2] ODP 1027: Bypass
[3] Endeavour: divert
______________________________________________
Old Switch Line-Up:
[1] Barkley Cnyn: Bypass
`

func TestParseNotice_NCDDS(t *testing.T) {
	n := ParseNotice("[Divert] NC-DDS 2025_07_01 14:44", ncddsBody)

	want := time.Date(2025, 7, 1, 14, 44, 0, 0, time.UTC)
	if !n.Timestamp.Equal(want) {
		t.Errorf("Timestamp: got %v, want %v", n.Timestamp, want)
	}
	if n.System != "NC-DDS" {
		t.Errorf("System: got %q", n.System)
	}
	if len(n.Statuses) != 3 {
		t.Fatalf("Statuses: got %v, want 3 entries", n.Statuses)
	}
	if n.Statuses["[1] Barkley Cnyn"] != StatusDivert {
		t.Errorf("Barkley: got %q, want Divert (old line-up must be ignored)", n.Statuses["[1] Barkley Cnyn"])
	}
	if n.Statuses["[2] ODP 1027"] != StatusBypass {
		t.Errorf("ODP 1027: got %q", n.Statuses["[2] ODP 1027"])
	}
	if n.Statuses["[3] Endeavour"] != StatusDivert {
		t.Errorf("Endeavour: lower-case status should normalise, got %q", n.Statuses["[3] Endeavour"])
	}
}

func TestParseNotice_SoG(t *testing.T) {
	body := "New Switch Line-Up:\r\nSoG_East: Bypass\r\nSoG_Delta: Divert\r\n"
	n := ParseNotice("SoG DDS switch 2025_06_30 08:05", body)
	if n.System != "SoG DDS" {
		t.Errorf("System: got %q", n.System)
	}
	if n.Statuses["SoG_Delta"] != StatusDivert || n.Statuses["SoG_East"] != StatusBypass {
		t.Errorf("Statuses: got %v", n.Statuses)
	}
}

func TestParseNotice_NoLineup(t *testing.T) {
	n := ParseNotice("DDS maintenance", "nothing to see")
	if !n.Timestamp.IsZero() || len(n.Statuses) != 0 {
		t.Errorf("expected empty notice, got %+v", n)
	}
}

func TestIsNoticeSubject(t *testing.T) {
	if !IsNoticeSubject("[Divert] NC-DDS") || !IsNoticeSubject("Saanich DDS update") {
		t.Error("divert subjects not recognised")
	}
	if IsNoticeSubject("Weekly newsletter") {
		t.Error("unrelated subject recognised")
	}
}

func TestLoadNoticeDir(t *testing.T) {
	dir := t.TempDir()
	eml := strings.Join([]string{
		"From: ops@example.org",
		"Subject: [Divert] SoG DDS 2025_07_02 09:00",
		"Date: Wed, 02 Jul 2025 09:01:00 +0000",
		"Content-Type: text/plain",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"New Switch Line-Up:",
		"SoG_Delta: Div=",
		"ert",
		"",
	}, "\r\n")
	txt := "[Divert] SoG DDS 2025_07_01 10:00\nNew Switch Line-Up:\nSoG_Delta: Bypass\n"
	other := "Subject: lunch\r\n\r\nNew Switch Line-Up:\r\nSoG_Delta: Divert\r\n"

	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("b.eml", eml)
	write("a.txt", txt)
	write("c.eml", other)
	write("ignored.json", "{}")
	write("broken.eml", "not a message")

	notices, err := LoadNoticeDir(dir, time.Time{})
	if err != nil {
		t.Fatalf("LoadNoticeDir: %v", err)
	}
	if len(notices) != 2 {
		t.Fatalf("notices: got %d, want 2", len(notices))
	}
	if notices[0].Origin != "a.txt" || notices[1].Origin != "b.eml" {
		t.Errorf("order: got %s, %s; want a.txt, b.eml", notices[0].Origin, notices[1].Origin)
	}
	if notices[1].Statuses["SoG_Delta"] != StatusDivert {
		t.Errorf("quoted-printable body not decoded: %v", notices[1].Statuses)
	}

	recent, err := LoadNoticeDir(dir, time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Errorf("since filter: got %d notices, want 1", len(recent))
	}
}

func TestLoadNoticeDir_Missing(t *testing.T) {
	if _, err := LoadNoticeDir(filepath.Join(t.TempDir(), "nope"), time.Time{}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

// tableResolver is a minimal Resolver over a literal map.
type tableResolver map[string][]string

func (r tableResolver) Resolve(name string) []string { return r[name] }

func notice(ts string, statuses map[string]Status) Notice {
	at, _ := time.Parse("2006-01-02 15:04", ts)
	return Notice{Timestamp: at, Statuses: statuses, Origin: ts}
}

func TestReconstruct_DivertThenBypass(t *testing.T) {
	r := tableResolver{
		"SoG_Delta":    {"CBCH.H1", "CBCH.H2"},
		"Barkley Cnyn": {"BACNH.H1"},
	}
	notices := []Notice{
		notice("2025-07-03 12:00", map[string]Status{"SoG_Delta": StatusBypass}),
		notice("2025-07-01 09:00", map[string]Status{"SoG_Delta": StatusDivert}),
		notice("2025-07-02 09:00", map[string]Status{"SoG_Delta": StatusDivert, "[1] Barkley Cnyn": StatusDivert}),
		notice("2025-07-02 10:00", map[string]Status{"Mystery Site": StatusDivert}),
	}
	asOf := types.NewDate(2025, time.July, 7)
	tl := Reconstruct(notices, r, asOf)

	// CBCH.H1, CBCH.H2: 07-01..07-03. BACNH.H1: 07-02..asOf (still open).
	if len(tl.Events) != 3 {
		t.Fatalf("events: got %v, want 3", tl.Events)
	}
	byLoc := map[string]types.DivertEvent{}
	for _, e := range tl.Events {
		byLoc[e.LocationCode] = e
	}
	if e := byLoc["CBCH.H1"]; e.Start != types.NewDate(2025, 7, 1) || e.End != types.NewDate(2025, 7, 3) {
		t.Errorf("CBCH.H1: got %s..%s", e.Start, e.End)
	}
	if e := byLoc["BACNH.H1"]; e.Start != types.NewDate(2025, 7, 2) || e.End != asOf {
		t.Errorf("BACNH.H1: got %s..%s, want open span closed at as-of", e.Start, e.End)
	}
	if tl.Diverted("CBCH.H2") {
		t.Error("CBCH.H2 should be back in bypass")
	}
	if !tl.Diverted("BACNH.H1") {
		t.Error("BACNH.H1 should still be diverted")
	}
	if len(tl.Unmapped) != 1 || tl.Unmapped[0] != "Mystery Site" {
		t.Errorf("Unmapped: got %v", tl.Unmapped)
	}
}

func TestReconstruct_IgnoresUntimedNotices(t *testing.T) {
	r := tableResolver{"SoG_Delta": {"CBCH.H1"}}
	tl := Reconstruct([]Notice{{Statuses: map[string]Status{"SoG_Delta": StatusDivert}}}, r, types.NewDate(2025, 7, 7))
	if len(tl.Events) != 0 {
		t.Errorf("events: got %v, want none", tl.Events)
	}
}

func TestReconstruct_IgnoresNoticesAfterAsOf(t *testing.T) {
	r := tableResolver{"SoG_Delta": {"CBCH.H1"}, "SoG_East": {"CBCH.H2"}}
	notices := []Notice{
		notice("2025-07-01 09:00", map[string]Status{"SoG_Delta": StatusDivert}),
		notice("2025-07-03 23:59", map[string]Status{"SoG_East": StatusBypass}),
		notice("2025-07-04 00:00", map[string]Status{"SoG_Delta": StatusBypass, "SoG_East": StatusDivert}),
	}
	asOf := types.NewDate(2025, time.July, 3)
	tl := Reconstruct(notices, r, asOf)

	if !tl.Diverted("CBCH.H1") {
		t.Error("CBCH.H1: a Bypass after as-of must not end the divert")
	}
	if tl.Diverted("CBCH.H2") {
		t.Error("CBCH.H2: a Divert after as-of must not open a span")
	}
	if len(tl.Events) != 1 {
		t.Fatalf("events: got %v, want 1", tl.Events)
	}
	if e := tl.Events[0]; e.LocationCode != "CBCH.H1" || e.End != asOf {
		t.Errorf("event: got %s %s..%s, want CBCH.H1 closed at as-of", e.LocationCode, e.Start, e.End)
	}
}
