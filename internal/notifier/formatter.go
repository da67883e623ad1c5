package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"VCPHunter/internal/model"
)

// MaxMessageLen is the Telegram sendMessage text limit.
const MaxMessageLen = 4096

// NoSetupsText is the block rendered when no setup was found.
const NoSetupsText = "😴 No VCP breakouts today.\nMarket resting, stay patient."

// ReportOptions tunes the scan report layout.
type ReportOptions struct {
	// MaxListed caps the listed setups; the rest are summarized in one line. 0 lists all.
	MaxListed int
}

// FormatScanReport renders the daily scan into Telegram HTML.
// Setups are listed in the order given.
func FormatScanReport(report model.ScanReport, opts ReportOptions) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>VCP Daily Scan</b> | %s\n", report.Date.Format("2006-01-02")))
	b.WriteString(strings.Repeat("=", 30) + "\n")
	b.WriteString(fmt.Sprintf("Universe: %d | Leaders: %d | Setups: %d",
		report.UniverseSize, report.Ranked, len(report.Setups)))

	if len(report.Setups) == 0 {
		b.WriteString("\n\n" + NoSetupsText)
		return b.String()
	}

	b.WriteString(fmt.Sprintf("\n\n🚨 Found %d potential setups:", len(report.Setups)))

	listed := report.Setups
	if opts.MaxListed > 0 && len(listed) > opts.MaxListed {
		listed = listed[:opts.MaxListed]
	}
	for _, s := range listed {
		b.WriteString("\n\n")
		b.WriteString(formatSetup(s))
	}
	if rest := len(report.Setups) - len(listed); rest > 0 {
		b.WriteString(fmt.Sprintf("\n\n<i>(%d more signals available)</i>", rest))
	}
	return b.String()
}

func formatSetup(s model.Setup) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚀 <b>%s</b> (RS %+.1f%%)\n", html.EscapeString(s.Symbol), s.Momentum*100))
	b.WriteString(fmt.Sprintf("Buy Stop: <code>$%s</code>\n", price(s.BuyPrice)))
	b.WriteString(fmt.Sprintf("Stop Loss: <code>$%s</code> (risk %.1f%%)\n", price(s.StopLoss), s.RiskPct*100))
	if s.Fundable() {
		b.WriteString(fmt.Sprintf("Size: <code>%d</code> shares", s.Quantity))
	} else {
		b.WriteString("Size: ⚠️ unfundable at current risk settings")
	}
	return b.String()
}

func price(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatErrorReport renders a run-fatal failure.
func FormatErrorReport(err error) string {
	return fmt.Sprintf("❌ <b>Scanner Error</b>\n%s", html.EscapeString(err.Error()))
}

// FormatRunFooter summarizes counters and skip reasons of a run.
func FormatRunFooter(s *model.RunSummary) string {
	var b strings.Builder
	id := s.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	b.WriteString(fmt.Sprintf("🧾 <b>Run</b> <code>%s</code> | %s | %.1fs\n", id, s.Status, s.Duration().Seconds()))
	b.WriteString(fmt.Sprintf("Universe: %d/%d | Scored: %d | Evaluated: %d | Setups: %d",
		s.UniverseAccepted, s.UniverseTotal, s.Scored, s.Evaluated, len(s.Setups)))

	counts := s.SkipCounts()
	stages := make([]string, 0, len(counts))
	for st := range counts {
		stages = append(stages, string(st))
	}
	sort.Strings(stages)
	for _, st := range stages {
		reasons := counts[model.Stage(st)]
		keys := make([]string, 0, len(reasons))
		for r := range reasons {
			keys = append(keys, string(r))
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%d", k, reasons[model.SkipReason(k)])
		}
		b.WriteString(fmt.Sprintf("\nSkipped %s: %s", st, strings.Join(parts, ", ")))
	}
	return b.String()
}

// Chunk splits text into pieces of at most max bytes. It breaks between
// blank-line separated blocks first, then between lines, and only cuts
// inside a line when the line alone is too long. Runes are never split.
func Chunk(text string, max int) []string {
	if text == "" {
		return nil
	}
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	add := func(piece, sep string) {
		if cur.Len() > 0 && cur.Len()+len(sep)+len(piece) <= max {
			cur.WriteString(sep)
			cur.WriteString(piece)
			return
		}
		flush()
		cur.WriteString(piece)
	}

	for _, block := range strings.Split(text, "\n\n") {
		if len(block) <= max {
			add(block, "\n\n")
			continue
		}
		for i, line := range strings.Split(block, "\n") {
			sep := "\n"
			if i == 0 {
				sep = "\n\n"
			}
			if len(line) <= max {
				add(line, sep)
				continue
			}
			flush()
			out = append(out, splitRunes(line, max)...)
		}
	}
	flush()
	return out
}

func splitRunes(s string, max int) []string {
	var parts []string
	for len(s) > 0 {
		n := 0
		for n < len(s) {
			_, size := utf8.DecodeRuneInString(s[n:])
			if n+size > max {
				break
			}
			n += size
		}
		if n == 0 {
			_, n = utf8.DecodeRuneInString(s)
		}
		parts = append(parts, s[:n])
		s = s[n:]
	}
	return parts
}
