package export

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// detailDoc wraps a decoded detail document for path queries. The documents
// are deeply nested section tables keyed by German display titles, so every
// accessor is a JSONPath filter over the sections array.
type detailDoc struct {
	root any
}

func newDetailDoc(raw json.RawMessage) *detailDoc {
	if len(raw) == 0 {
		return &detailDoc{}
	}
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return &detailDoc{}
	}
	return &detailDoc{root: root}
}

// query returns the first string match for path, or "" when the path hits
// nothing. Filtered paths yield lists, plain paths the value itself.
func (d *detailDoc) query(path string) string {
	if d.root == nil {
		return ""
	}
	v, err := jsonpath.Get(path, d.root)
	if err != nil {
		return ""
	}
	return firstString(v)
}

func firstString(v any) string {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return ""
		}
		v = list[0]
	}
	s, _ := v.(string)
	return s
}

// sectionText pulls data[title].detail.text out of the named section table.
func (d *detailDoc) sectionText(section, title string) string {
	return d.query(fmt.Sprintf(`$.sections[?(@.title==%q)].data[?(@.title==%q)].detail.text`, section, title))
}

// overviewText reads from the Übersicht section, the table every detail
// document carries.
func (d *detailDoc) overviewText(title string) string {
	return d.sectionText("Übersicht", title)
}

// transactionType is the title of the first Übersicht row, which names the
// booking kind (Überweisung, Kartenzahlung, Sparplan, ...).
func (d *detailDoc) transactionType() string {
	return d.query(`$.sections[?(@.title=="Übersicht")].data[0].title`)
}

// statusStyle is the fallback status source for feeds that omit the status
// field on the list item.
func (d *detailDoc) statusStyle() string {
	return d.query(`$.sections[?(@.title=="Übersicht")].data[?(@.title=="Status")].detail.functionalStyle`)
}

// noteText is the free-text reference line of transfers.
func (d *detailDoc) noteText() string {
	return d.query(`$.sections[?(@.type=="note")].data.text`)
}

// isin comes from the header section's action payload on instrument events.
func (d *detailDoc) isin() string {
	return d.query(`$.sections[?(@.type=="header")].action.payload`)
}

// transactionDetail digs into the nested Transaktion sub-document that
// orders and savings plan executions embed under the Übersicht table.
func (d *detailDoc) transactionDetail(title string) string {
	return d.query(fmt.Sprintf(
		`$.sections[?(@.title=="Übersicht")].data[?(@.title=="Transaktion")].detail.action.payload.sections[*].data[?(@.title==%q)].detail.text`,
		title,
	))
}

// transactionDisplay reads the inline share display of saveback executions:
// the prefix carries the share count, the text the share price.
func (d *detailDoc) transactionDisplay() (prefix, text string) {
	base := `$.sections[?(@.title=="Übersicht")].data[?(@.title=="Transaktion")].detail.displayValue.`
	return d.query(base + "prefix"), d.query(base + "text")
}

// hasDocument reports whether the named document row exists. Document rows
// carry their date or label in detail.text.
func (d *detailDoc) hasDocument(section, title string) bool {
	return d.sectionText(section, title) != ""
}
