package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/timberwatch/timberwatch/internal/model"
)

// MarkdownWriter renders a Daily as a markdown document.
//
// Design decision: We use the nao1215/markdown library for fluent,
// type-safe markdown generation rather than string concatenation, so
// tables and GitHub-flavored alerts stay well-formed as sections grow.
type MarkdownWriter struct {
	output io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter that writes to output.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// Write renders the full daily report and returns its length in bytes.
func (w *MarkdownWriter) Write(daily *Daily) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, daily)
	w.writeSummary(md, daily)
	w.writeDetections(md, daily)
	w.writeQueue(md, daily)
	w.writeNodes(md, daily)
	w.writeSyncPasses(md, daily)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Generated by timberwatch*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, daily *Daily) {
	md.H1("Timberwatch Daily Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Window start", daily.Since.Format("2006-01-02 15:04:05 MST")},
			{"Generated", daily.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Detections", strconv.Itoa(len(daily.Detections))},
			{"Monitored nodes", strconv.Itoa(len(daily.Nodes))},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, daily *Daily) {
	md.H2("Threat Summary")
	md.PlainText("")

	counts := daily.TierCounts()
	md.Table(markdown.TableSet{
		Header: []string{"Tier", "Count"},
		Rows: [][]string{
			{"🔴 Critical", strconv.Itoa(counts[model.TierCritical])},
			{"🟠 High", strconv.Itoa(counts[model.TierHigh])},
			{"🟡 Medium", strconv.Itoa(counts[model.TierMedium])},
			{"🔵 Low", strconv.Itoa(counts[model.TierLow])},
			{"⚪ None", strconv.Itoa(counts[model.TierNone])},
		},
	})
	md.PlainText("")

	switch {
	case counts[model.TierCritical] > 0:
		md.Cautionf(
			"%d critical detection(s) in the window. Verify ranger dispatch for each.",
			counts[model.TierCritical],
		)
	case counts[model.TierHigh] > 0:
		md.Warningf(
			"%d high-tier detection(s) in the window require review.",
			counts[model.TierHigh],
		)
	case daily.Actionable() > 0:
		md.Importantf(
			"%d detection(s) at medium tier await confirmation.",
			daily.Actionable(),
		)
	default:
		md.Tip("No actionable detections in the window.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeDetections(md *markdown.Markdown, daily *Daily) {
	md.H2("Detections")
	md.PlainText("")

	if len(daily.Detections) == 0 {
		md.PlainText("No detections recorded in the window.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(daily.Detections))
	for i, rec := range daily.Detections {
		rows[i] = []string{
			rec.DetectedAt.Format("2006-01-02 15:04"),
			rec.NodeID,
			rec.Label,
			strconv.Itoa(rec.Confidence),
			rec.Tier.String(),
			rec.Backend,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Detected", "Node", "Label", "Confidence", "Tier", "Backend"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeQueue(md *markdown.Markdown, daily *Daily) {
	md.H2("Offline Queue")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Status", "Items"},
		Rows: [][]string{
			{"Pending", strconv.Itoa(daily.Queue[model.SyncPending])},
			{"Synced", strconv.Itoa(daily.Queue[model.SyncSynced])},
			{"Failed", strconv.Itoa(daily.Queue[model.SyncFailed])},
		},
	})
	md.PlainText("")

	if failed := daily.Queue[model.SyncFailed]; failed > 0 {
		md.Warningf(
			"%d queue item(s) exhausted their retries and need manual review.",
			failed,
		)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeNodes(md *markdown.Markdown, daily *Daily) {
	md.H2("Node Health")
	md.PlainText("")

	if len(daily.Nodes) == 0 {
		md.PlainText("No nodes have reported yet.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(daily.Nodes))
	for i, node := range daily.Nodes {
		rows[i] = []string{
			node.NodeID,
			node.LastSeen.Format("2006-01-02 15:04"),
			strconv.Itoa(node.Battery) + "%",
			strconv.Itoa(node.RSSI),
			strconv.Itoa(node.AlertCount),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Node", "Last Seen", "Battery", "RSSI", "Alerts"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSyncPasses(md *markdown.Markdown, daily *Daily) {
	md.H2("Recent Sync Passes")
	md.PlainText("")

	if len(daily.SyncPasses) == 0 {
		md.PlainText("No sync passes recorded yet.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(daily.SyncPasses))
	for i, pass := range daily.SyncPasses {
		online := "offline"
		if pass.Online {
			online = "online"
		}
		rows[i] = []string{
			pass.StartedAt.Format("2006-01-02 15:04:05"),
			online,
			strconv.Itoa(pass.ItemsSynced),
			strconv.Itoa(pass.ItemsFailed),
			pass.Duration.Round(time.Millisecond).String(),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Started", "Network", "Synced", "Failed", "Duration"},
		Rows:   rows,
	})
	md.PlainText("")
}
