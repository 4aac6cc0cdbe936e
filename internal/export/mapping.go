package export

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hibiscus-tools/tr-hibiscus/internal/models"
)

// booking is what one timeline event contributes to its Hibiscus entry.
type booking struct {
	Konto     string // counterparty IBAN
	Name      string // counterparty name
	Zweck     string // purpose line
	Art       string // booking type
	Betrag    decimal.Decimal
	Kommentar string
}

// classify derives the booking fields for one event. The booking kind comes
// from the first row of the detail document's Übersicht table; events the
// chain does not recognize fall through to a generic mapping.
func classify(ev *models.TransactionEvent, doc *detailDoc) booking {
	b := booking{Art: doc.transactionType()}
	if ev.Amount != nil {
		b.Betrag = ev.Amount.Value
	}

	switch {
	case ev.EventType == "" && b.Art == "Überweisung" && ev.Subtitle == "Fertig":
		// Incoming transfer.
		b.Konto = doc.sectionText("Absender", "IBAN")
		b.Name = doc.sectionText("Absender", "Absender")
		b.Zweck = doc.noteText()

	case ev.EventType == "" && b.Art == "Überweisung" && ev.Subtitle == "Gesendet":
		// Outgoing transfer.
		b.Konto = doc.sectionText("Empfänger", "IBAN")
		b.Name = doc.sectionText("Empfänger", "Empfänger")
		b.Zweck = doc.noteText()

	case ev.EventType == "" && b.Art == "Kartenzahlung":
		b.Name = doc.overviewText("Händler")
		b.Zweck = ev.Title
		b.Kommentar = cardPaymentComment(doc)

	case ev.EventType == "" && ev.Title == "Zinsen":
		b.Zweck = strings.TrimSpace(ev.Title + " " + ev.Subtitle)
		b.Art = "Zinsen"
		b.Kommentar = interestComment(doc)

	case ev.EventType == "" && b.Art == "Sparplan":
		b.Zweck = ev.Title + " Sparplan"
		b.Kommentar = savingsPlanComment(doc)

	case ev.EventType == "" && b.Art == "Saveback":
		// The rewarded amount moves into the purpose line; the booking
		// itself must not change the account balance.
		b.Zweck = fmt.Sprintf("%s Saveback %s", ev.Title, formatEuro(b.Betrag))
		b.Betrag = decimal.Zero
		b.Kommentar = savebackComment(doc)

	case ev.EventType == "" && b.Art == "Round up":
		b.Zweck = ev.Title + " Round up"
		b.Kommentar = roundUpComment(doc)

	case ev.EventType == "" && ev.Subtitle == "Bardividende":
		b.Zweck = ev.Title + " Bardividende"
		b.Art = "Bardividende"
		b.Kommentar = dividendComment(doc)

	case ev.EventType == "" && ev.Subtitle == "Kauforder":
		b.Zweck = ev.Title + " Kauforder"
		b.Art = "Kauforder"
		b.Kommentar = orderComment(doc)

	case ev.EventType == "" && ev.Subtitle == "Verkaufsorder":
		b.Zweck = ev.Title + " Verkaufsorder"
		b.Art = "Verkaufsorder"
		b.Kommentar = orderComment(doc)

	case ev.EventType == "" && ev.Title == "Steuerkorrektur":
		b.Zweck = ev.Title
		b.Art = "Steuerkorrektur"

	default:
		b.Konto = doc.sectionText("Absender", "IBAN")
		if b.Konto == "" {
			b.Konto = doc.sectionText("Empfänger", "IBAN")
		}
		b.Name = doc.sectionText("Absender", "Name")
		if b.Name == "" {
			b.Name = doc.overviewText("Händler")
		}
		if b.Name == "" {
			b.Name = doc.sectionText("Empfänger", "Name")
		}
		b.Zweck = strings.TrimSpace(ev.Title + " " + ev.Subtitle)
	}

	return b
}

// formatEuro renders a decimal the way the app displays euro amounts,
// decimal comma included.
func formatEuro(value decimal.Decimal) string {
	return strings.ReplaceAll(value.StringFixed(2), ".", ",") + " €"
}

// commentBuilder assembles "Label: value" lines, skipping absent values.
type commentBuilder struct {
	sb strings.Builder
}

func (c *commentBuilder) add(label, value string) {
	if value == "" {
		return
	}
	c.sb.WriteString(label)
	c.sb.WriteString(": ")
	c.sb.WriteString(value)
	c.sb.WriteString("\n")
}

func (c *commentBuilder) line(s string) {
	c.sb.WriteString(s)
	c.sb.WriteString("\n")
}

func (c *commentBuilder) String() string { return c.sb.String() }

// cardPaymentComment only exists for foreign currency payments; the Betrag
// row marks those.
func cardPaymentComment(doc *detailDoc) string {
	betrag := doc.overviewText("Betrag")
	if betrag == "" {
		return ""
	}
	var b commentBuilder
	b.add("Betrag", betrag)
	b.add("Wechselkurs", doc.overviewText("Wechselkurs"))
	b.add("Gesamt", doc.overviewText("Gesamt"))
	return b.String()
}

func interestComment(doc *detailDoc) string {
	var b commentBuilder
	b.add("Zinsen", doc.overviewText("Zinsen"))
	b.add("Durchschnittssaldo", doc.overviewText("Durchschnittssaldo"))
	b.add("Angesammelt", doc.overviewText("Angesammelt"))
	b.add("Steuern", doc.overviewText("Steuern"))
	b.add("Gesamt", doc.overviewText("Gesamt"))
	if doc.hasDocument("Dokument", "Abrechnung") {
		b.line("Abrechnung verfügbar")
	}
	return b.String()
}

func savingsPlanComment(doc *detailDoc) string {
	var b commentBuilder
	b.add("Sparplan", doc.overviewText("Sparplan"))
	b.add("Zahlung", doc.overviewText("Zahlung"))
	b.add("Asset", doc.overviewText("Asset"))
	b.add("ISIN", doc.isin())
	b.add("Aktien", doc.transactionDetail("Aktien"))
	b.add("Aktienkurs", doc.transactionDetail("Aktienkurs"))
	b.add("Transaktionssumme", doc.transactionDetail("Summe"))
	b.add("Gebühr", doc.overviewText("Gebühr"))
	b.add("Summe", doc.overviewText("Summe"))
	b.add("Häufigkeit", doc.query(`$.sections[?(@.title=="Sparplan")].data[*].detail.subtitle`))
	return b.String()
}

func orderComment(doc *detailDoc) string {
	var b commentBuilder
	b.add("Asset", doc.overviewText("Asset"))
	b.add("ISIN", doc.isin())
	b.add("Aktien", doc.transactionDetail("Aktien"))
	b.add("Aktienkurs", doc.transactionDetail("Aktienkurs"))
	b.add("Transaktionssumme", doc.transactionDetail("Summe"))
	b.add("Gebühr", doc.overviewText("Gebühr"))
	b.add("Summe", doc.overviewText("Summe"))
	return b.String()
}

func roundUpComment(doc *detailDoc) string {
	var b commentBuilder
	b.add("Asset", doc.overviewText("Asset"))
	b.add("ISIN", doc.isin())
	b.add("Aktien", doc.overviewText("Transaktion"))
	b.add("Gebühr", doc.overviewText("Gebühr"))
	b.add("Summe", doc.overviewText("Gesamt"))
	return b.String()
}

func savebackComment(doc *detailDoc) string {
	var b commentBuilder
	b.add("Saveback", doc.overviewText("Saveback"))
	b.add("Asset", doc.overviewText("Asset"))
	b.add("ISIN", doc.isin())
	if prefix, text := doc.transactionDisplay(); prefix != "" && text != "" {
		b.add("Aktien", strings.TrimSpace(strings.ReplaceAll(prefix, " x ", "")))
		b.add("Aktienkurs", text)
	}
	b.add("Gebühr", doc.overviewText("Gebühr"))
	b.add("Gesamt", doc.overviewText("Gesamt"))
	if doc.hasDocument("Dokumente", "Abrechnung Ausführung") {
		b.line("Abrechnung verfügbar")
	}
	if doc.hasDocument("Dokumente", "Kosteninformation") {
		b.line("Kosteninformation verfügbar")
	}
	return b.String()
}

func dividendComment(doc *detailDoc) string {
	var b commentBuilder
	b.add("Wertpapier", doc.overviewText("Wertpapier"))
	b.add("ISIN", doc.isin())
	b.add("Aktien", doc.sectionText("Geschäft", "Aktien"))
	b.add("Dividende pro Aktie", doc.sectionText("Geschäft", "Dividende pro Aktie"))
	b.add("Steuer", doc.sectionText("Geschäft", "Steuer"))
	b.add("Gesamt", doc.sectionText("Geschäft", "Gesamt"))
	b.add("Dokumentdatum", doc.sectionText("Dokumente", "Dokumente"))
	return b.String()
}
