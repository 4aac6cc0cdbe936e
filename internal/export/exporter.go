package export

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hibiscus-tools/tr-hibiscus/internal/models"
)

var validStatuses = map[string]bool{
	models.StatusPending:  true,
	models.StatusExecuted: true,
	models.StatusCanceled: true,
	models.StatusCreated:  true,
}

// Options configure one export run.
type Options struct {
	OutputDir      string
	IncludePending bool
	SaveDetails    bool // keep one JSON file per exported event
	DebugDump      bool // dump every assembled event under debug/
	DryRun         bool // filter and report without writing anything
}

// Summary counts what one run did with the assembled events.
type Summary struct {
	Total            int
	Exported         int
	WithoutAmount    int
	CardVerification int
	AlreadyKnown     int
	Canceled         int
	PendingSkipped   int
	UnknownStatus    int
	DetailIncomplete int
	OutputFile       string
}

// Filtered is the number of events dropped before export.
func (s *Summary) Filtered() int {
	return s.WithoutAmount + s.CardVerification + s.AlreadyKnown +
		s.Canceled + s.PendingSkipped + s.UnknownStatus
}

// Print writes the run statistics in a human-readable form.
func (s *Summary) Print(w io.Writer, includePending bool) {
	fmt.Fprintln(w, "\n=== EXPORT STATISTICS ===")
	fmt.Fprintf(w, "Total events found: %d\n", s.Total)
	fmt.Fprintf(w, "Valid transactions exported: %d\n", s.Exported)
	fmt.Fprintln(w, "\n--- Filtered out events ---")
	fmt.Fprintf(w, "Events without amount (documents, notifications, ...): %d\n", s.WithoutAmount)
	fmt.Fprintf(w, "Card verification events: %d\n", s.CardVerification)
	fmt.Fprintf(w, "Already known transactions: %d\n", s.AlreadyKnown)
	fmt.Fprintf(w, "Canceled transactions: %d\n", s.Canceled)
	if !includePending {
		fmt.Fprintf(w, "Pending transactions (use --include-pending to include): %d\n", s.PendingSkipped)
	}
	fmt.Fprintf(w, "Unknown status transactions: %d\n", s.UnknownStatus)
	fmt.Fprintf(w, "\nTotal filtered out: %d\n", s.Filtered())
	if s.Total > 0 {
		fmt.Fprintf(w, "Export success rate: %d/%d (%.1f%%)\n", s.Exported, s.Total, float64(s.Exported)*100/float64(s.Total))
	}
	fmt.Fprintln(w, "=========================")
}

// Exporter turns assembled timeline events into a Hibiscus import file.
type Exporter struct {
	opts    Options
	history *History
	logger  *zap.Logger
}

func New(opts Options, history *History, logger *zap.Logger) *Exporter {
	return &Exporter{opts: opts, history: history, logger: logger}
}

// Export filters, orders and writes events. The XML file is only written
// when at least one event survives filtering; the history ledger is updated
// in the same run.
func (e *Exporter) Export(events []models.TransactionEvent) (*Summary, error) {
	e.logger.Info("exporting transactions", zap.Int("events", len(events)))

	summary := &Summary{Total: len(events)}
	valid := e.filter(events, summary)

	if e.opts.DebugDump {
		e.dumpAll(events)
	}

	if len(valid) == 0 {
		e.logger.Info("no new transactions to export")
		return summary, nil
	}

	sortChronologically(valid)

	data, err := marshalDocument(buildDocument(valid))
	if err != nil {
		return nil, err
	}

	summary.Exported = len(valid)
	if e.opts.DryRun {
		e.logger.Info("dry run, skipping file writes", zap.Int("events", len(valid)))
		return summary, nil
	}

	if err := os.MkdirAll(e.opts.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	stamp := time.Now().Format("2006-01-02T15.04.05")
	outFile := filepath.Join(e.opts.OutputDir, "hibiscus-"+stamp+".xml")
	if err := writeFileAtomic(outFile, data); err != nil {
		return nil, fmt.Errorf("writing export: %w", err)
	}
	summary.OutputFile = outFile

	if err := e.history.Save(); err != nil {
		e.logger.Warn("could not save history", zap.Error(err))
	}

	e.logger.Info("export written", zap.String("file", outFile), zap.Int("events", len(valid)))
	return summary, nil
}

// filter applies the drop rules in order: card verifications, events without
// an amount, already-known ids, unknown statuses (dumped for inspection),
// canceled, then pending unless included. Surviving non-pending events become
// known.
func (e *Exporter) filter(events []models.TransactionEvent, summary *Summary) []models.TransactionEvent {
	valid := make([]models.TransactionEvent, 0, len(events))

	for i := range events {
		ev := &events[i]

		if ev.EventType == "card_successful_verification" {
			e.logger.Debug("filtering card verification event", zap.String("event", ev.ID))
			summary.CardVerification++
			continue
		}
		if !ev.HasAmount() {
			summary.WithoutAmount++
			continue
		}
		if e.history.Knows(ev.ID) {
			e.logger.Debug("already seen transaction", zap.String("event", ev.ID))
			summary.AlreadyKnown++
			continue
		}

		status := transactionStatus(ev)
		if !validStatuses[status] {
			e.logger.Error("unknown transaction status",
				zap.String("event", ev.ID),
				zap.String("status", status),
			)
			summary.UnknownStatus++
			e.writeDebugFile(ev)
			continue
		}
		if status == models.StatusCanceled {
			summary.Canceled++
			continue
		}
		if status == models.StatusPending && !e.opts.IncludePending {
			e.logger.Debug("skipping pending transaction", zap.String("event", ev.ID))
			summary.PendingSkipped++
			continue
		}

		if status != models.StatusPending {
			e.history.Add(ev.ID)
		}
		if ev.DetailIncomplete {
			summary.DetailIncomplete++
		}
		valid = append(valid, *ev)

		if e.opts.SaveDetails {
			e.writeEventFile(ev)
		}
	}

	return valid
}

// transactionStatus prefers the list feed's status field and falls back to
// the detail document's Übersicht table.
func transactionStatus(ev *models.TransactionEvent) string {
	if ev.Status != "" {
		return ev.Status
	}
	if s := newDetailDoc(ev.Detail).statusStyle(); s != "" {
		return s
	}
	return "UNKNOWN"
}

// sortChronologically orders oldest first, falling back to the id when a
// timestamp does not parse.
func sortChronologically(events []models.TransactionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, erri := events[i].Time()
		tj, errj := events[j].Time()
		if erri != nil || errj != nil {
			return events[i].ID < events[j].ID
		}
		return ti.Before(tj)
	})
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func safeFilename(id string) string {
	return unsafeFilenameChars.ReplaceAllString(id, "_")
}

// writeEventFile keeps the full event (list entry plus detail document) next
// to the export for later inspection or compaction.
func (e *Exporter) writeEventFile(ev *models.TransactionEvent) {
	if e.opts.DryRun {
		return
	}

	dir := filepath.Join(e.opts.OutputDir, "details")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		e.logger.Warn("could not create details directory", zap.Error(err))
		return
	}

	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		e.logger.Warn("could not encode event", zap.String("event", ev.ID), zap.Error(err))
		return
	}
	path := filepath.Join(dir, safeFilename(ev.ID)+".json")
	if err := writeFileAtomic(path, data); err != nil {
		e.logger.Warn("could not save event file", zap.String("event", ev.ID), zap.Error(err))
		return
	}
	e.logger.Debug("saved event file", zap.String("path", path))
}

// writeDebugFile dumps an event the filter could not classify.
func (e *Exporter) writeDebugFile(ev *models.TransactionEvent) {
	if e.opts.DryRun {
		return
	}
	if err := os.MkdirAll(e.opts.OutputDir, 0o750); err != nil {
		e.logger.Warn("could not create output directory", zap.Error(err))
		return
	}

	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		e.logger.Warn("could not encode event", zap.String("event", ev.ID), zap.Error(err))
		return
	}
	path := filepath.Join(e.opts.OutputDir, "debug-"+safeFilename(ev.ID)+".json")
	if err := writeFileAtomic(path, data); err != nil {
		e.logger.Warn("could not save debug file", zap.String("event", ev.ID), zap.Error(err))
		return
	}
	e.logger.Info("saved debug file", zap.String("path", path))
}

// dumpAll writes every assembled event under debug/, sorted chronologically,
// plus a summary document.
func (e *Exporter) dumpAll(events []models.TransactionEvent) {
	if e.opts.DryRun {
		return
	}

	dir := filepath.Join(e.opts.OutputDir, "debug")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		e.logger.Error("could not create debug directory", zap.Error(err))
		return
	}

	sorted := make([]models.TransactionEvent, len(events))
	copy(sorted, events)
	sortChronologically(sorted)

	for i := range sorted {
		ev := &sorted[i]
		data, err := json.MarshalIndent(ev, "", "  ")
		if err != nil {
			e.logger.Warn("could not encode event", zap.String("event", ev.ID), zap.Error(err))
			continue
		}
		path := filepath.Join(dir, "transaction_"+safeFilename(ev.ID)+".json")
		if err := writeFileAtomic(path, data); err != nil {
			e.logger.Warn("could not save debug file", zap.String("event", ev.ID), zap.Error(err))
		}
	}

	summary := map[string]any{
		"totalEvents":     len(sorted),
		"exportTimestamp": time.Now().Format(time.RFC3339),
		"transactions":    sorted,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		e.logger.Warn("could not encode debug summary", zap.Error(err))
		return
	}
	if err := writeFileAtomic(filepath.Join(dir, "all_transactions_summary.json"), data); err != nil {
		e.logger.Warn("could not save debug summary", zap.Error(err))
		return
	}
	e.logger.Info("debug files saved", zap.String("dir", dir), zap.Int("events", len(sorted)))
}

// The Hibiscus import format: one objects root holding UmsatzImpl records
// whose field elements carry the Java type the importer instantiates.
type hibiscusDocument struct {
	XMLName xml.Name         `xml:"objects"`
	Objects []hibiscusObject `xml:"object"`
}

type hibiscusObject struct {
	Type   string `xml:"type,attr"`
	ID     int    `xml:"id,attr"`
	Fields []hibiscusField
}

type hibiscusField struct {
	XMLName xml.Name
	Type    string `xml:"type,attr"`
	Value   string `xml:",chardata"`
}

func (o *hibiscusObject) add(name, javaType, value string) {
	o.Fields = append(o.Fields, hibiscusField{
		XMLName: xml.Name{Local: name},
		Type:    javaType,
		Value:   value,
	})
}

func buildDocument(events []models.TransactionEvent) *hibiscusDocument {
	doc := &hibiscusDocument{Objects: make([]hibiscusObject, 0, len(events))}
	for i := range events {
		doc.Objects = append(doc.Objects, buildObject(&events[i], i))
	}
	return doc
}

func buildObject(ev *models.TransactionEvent, objectID int) hibiscusObject {
	b := classify(ev, newDetailDoc(ev.Detail))

	obj := hibiscusObject{
		Type: "de.willuhn.jameica.hbci.server.UmsatzImpl",
		ID:   objectID,
	}

	date := hibiscusDate(ev.Timestamp)
	obj.add("datum", "java.sql.Date", date)
	obj.add("valuta", "java.sql.Date", date)
	obj.add("empfaenger_konto", "java.lang.String", b.Konto)
	obj.add("empfaenger_name", "java.lang.String", b.Name)
	obj.add("zweck", "java.lang.String", b.Zweck)
	obj.add("art", "java.lang.String", b.Art)
	obj.add("betrag", "java.lang.Double", b.Betrag.String())
	if b.Kommentar != "" {
		obj.add("kommentar", "java.lang.String", b.Kommentar)
	}

	// Empty fields Hibiscus expects to be present.
	obj.add("primanota", "java.lang.String", "")
	obj.add("customerref", "java.lang.String", "")
	obj.add("checksum", "java.math.BigDecimal", "")
	obj.add("konto_id", "java.lang.Integer", "")
	obj.add("addkey", "java.lang.String", "")
	obj.add("txid", "java.lang.String", "")
	obj.add("saldo", "java.lang.Double", "")
	obj.add("gvcode", "java.lang.String", "")
	obj.add("empfaenger_blz", "java.lang.String", "")

	if transactionStatus(ev) == models.StatusPending {
		obj.add("flags", "java.lang.Integer", "2")
	}

	return obj
}

func marshalDocument(doc *hibiscusDocument) ([]byte, error) {
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(data)+1)
	out = append(out, xml.Header...)
	out = append(out, data...)
	out = append(out, '\n')
	return out, nil
}

// hibiscusDate converts an ISO timestamp to the dd.MM.yyyy HH:mm:ss form
// Hibiscus parses. Positional, so any zone suffix variant works.
func hibiscusDate(timestamp string) string {
	if len(timestamp) < 19 {
		return ""
	}
	return timestamp[8:10] + "." + timestamp[5:7] + "." + timestamp[0:4] + " " + timestamp[11:19]
}
