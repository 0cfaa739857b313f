// Package parser implements spec component C: deterministic, language-aware
// extraction of task metadata from an email body. Every field is optional —
// a field the body does not contain becomes a nil pointer, never an error,
// matching the defensive "no match, no panic" discipline this service's
// DTO-mapping layer already follows for other external payloads.
package parser

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vendorflow/taskintake/internal/domain/model"
)

var (
	orderIDRe   = regexp.MustCompile(`\[#(\d+)\]`)
	acceptURLRe = regexp.MustCompile(`https://projects\.moravia\.com/Task/[^\s<>"']+/detail/notification\?command=Accept`)
	cellRe      = regexp.MustCompile(`(?is)<t[dh][^>]*>(.*?)</t[dh]>`)
	tagRe       = regexp.MustCompile(`<[^>]*>`)
	parenRe     = regexp.MustCompile(`\([^)]*\)`)
	htmlLangRe  = regexp.MustCompile(`(?i)<html[^>]*\blang=["']?([a-zA-Z-]+)`)

	statusFallbackRe = regexp.MustCompile(`(?i)Status[:\s]*['"]?([A-Za-z ]+)['"]?`)
	amountFallbackRe = regexp.MustCompile(`(?i)amountWords[:\s]*['"]?([\d.,]+)`)
	plannedFallbackRe = regexp.MustCompile(`(?i)Planned\s*end[:\s]*['"]?([^'"\n<]+)`)
)

// dateLayouts is tried in order, per §4.C; all nine formats are strict.
var dateLayouts = []string{
	"02.01.2006 3:04 PM",
	"02.01.2006 3:04PM",
	"02/01/2006 3:04 PM",
	"02-01-2006 3:04 PM",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
}

// Input is the raw material handed to Parse: the HTML body (may be empty),
// a concatenation of subject+text+HTML used for the language-independent
// regexes, and the Content-Language header if the transport supplied one.
type Input struct {
	ContentLanguageHeader string
	HTMLBody              string
	RawText               string
	Mailbox               string
	UID                   uint32
	ReceivedAt            time.Time
}

// Parse extracts zero or more task offers from one email. Multiple accept
// URLs in a single message yield one offer per URL, sharing every other
// field; a message with no accept URL yields exactly one offer (useful for
// the on-hold-without-link case), never zero, so the acceptor's "otherwise
// drop silently" rule always has a shot at seeing status/url pairs.
func Parse(in Input) []model.TaskOffer {
	lang := detectLanguage(in.ContentLanguageHeader, htmlLangAttr(in.HTMLBody), in.RawText)
	lbl := labelsFor(lang)
	cells := extractCells(in.HTMLBody)

	orderID := matchOrderID(in.RawText)
	workflowName := adjacentCellValue(cells, lbl.Workflow)
	status := extractStatus(cells, lbl.Status, in.RawText)
	amountWords := extractAmount(cells, lbl.Amounts, in.RawText)
	plannedEndDate := extractPlannedEndDate(cells, lbl.PlannedEnd, in.RawText)

	urls := acceptURLRe.FindAllString(in.RawText, -1)
	if len(urls) == 0 {
		urls = acceptURLRe.FindAllString(in.HTMLBody, -1)
	}

	base := model.TaskOffer{
		OrderID:        orderID,
		WorkflowName:   workflowName,
		Status:         status,
		AmountWords:    amountWords,
		PlannedEndDate: plannedEndDate,
		Mailbox:        in.Mailbox,
		SourceUID:      in.UID,
		ReceivedAt:     in.ReceivedAt,
	}

	if len(urls) == 0 {
		return []model.TaskOffer{base}
	}

	offers := make([]model.TaskOffer, 0, len(urls))
	for _, u := range urls {
		u := u
		offer := base
		offer.AcceptURL = &u
		offers = append(offers, offer)
	}
	return offers
}

func htmlLangAttr(body string) string {
	m := htmlLangRe.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}

func matchOrderID(rawText string) *string {
	m := orderIDRe.FindStringSubmatch(rawText)
	if m == nil {
		return nil
	}
	return &m[1]
}

// extractCells flattens every <td>/<th> in the HTML body into its decoded,
// tag-stripped text, in document order, so label/value lookups are a plain
// "next cell" walk — no DOM library appears anywhere in the retrieval pack,
// so this is a small token scan in the same defensive style used elsewhere.
func extractCells(htmlBody string) []string {
	matches := cellRe.FindAllStringSubmatch(htmlBody, -1)
	cells := make([]string, 0, len(matches))
	for _, m := range matches {
		cells = append(cells, strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(m[1], ""))))
	}
	return cells
}

func adjacentCellValue(cells []string, labelVariants []string) *string {
	for i, cell := range cells {
		for _, label := range labelVariants {
			if strings.EqualFold(strings.TrimSpace(cell), label) {
				if i+1 < len(cells) {
					v := cells[i+1]
					return &v
				}
			}
		}
	}
	return nil
}

func extractStatus(cells []string, labelVariants []string, rawText string) string {
	if v := adjacentCellValue(cells, labelVariants); v != nil {
		return *v
	}
	if m := statusFallbackRe.FindStringSubmatch(rawText); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func extractAmount(cells []string, labelVariants []string, rawText string) *float64 {
	raw := adjacentCellValue(cells, labelVariants)
	if raw == nil {
		if m := amountFallbackRe.FindStringSubmatch(rawText); m != nil {
			v := m[1]
			raw = &v
		}
	}
	if raw == nil {
		return nil
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(*raw), ",", "")
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &n
}

func extractPlannedEndDate(cells []string, labelVariants []string, rawText string) *string {
	raw := adjacentCellValue(cells, labelVariants)
	if raw == nil {
		if m := plannedFallbackRe.FindStringSubmatch(rawText); m != nil {
			v := m[1]
			raw = &v
		}
	}
	if raw == nil {
		return nil
	}
	cleaned := strings.TrimSpace(parenRe.ReplaceAllString(*raw, ""))
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			out := t.Format("2006-01-02 15:04")
			return &out
		}
	}
	return nil
}
