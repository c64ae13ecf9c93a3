package docproc

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apexfin/invoice-pipeline/internal/entity"
)

// Field names used by the extractor. The first four are required; confidence
// is the fraction of required fields that matched.
const (
	FieldInvoiceNumber = "invoice_number"
	FieldDate          = "date"
	FieldAmount        = "amount"
	FieldVendorName    = "vendor_name"
	FieldSubtotal      = "subtotal"
	FieldTax           = "tax"
	FieldPONumber      = "po_number"
	FieldCurrency      = "currency"
	FieldDueDate       = "due_date"
	FieldPaymentTerms  = "payment_terms"
)

var requiredFields = []string{FieldInvoiceNumber, FieldDate, FieldAmount, FieldVendorName}

var optionalFields = []string{
	FieldSubtotal, FieldTax, FieldPONumber, FieldCurrency, FieldDueDate, FieldPaymentTerms,
}

// One pattern per field, first-match search. Submatch 1 is the value.
var fieldPatterns = map[string]*regexp.Regexp{
	FieldInvoiceNumber: regexp.MustCompile(
		`(?i)invoice\s*(?:#|no\.?|number)\s*:?\s*([A-Z0-9][-A-Z0-9]{2,20})`),
	FieldDate: regexp.MustCompile(
		`(?i)date(?:\s+of\s+issue)?:?\s*(\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}[-/]\d{1,2}[-/]\d{1,2}|\w+\s+\d{1,2},?\s+\d{4})`),
	FieldAmount: regexp.MustCompile(
		`(?i)(?:total|amount\s*due|grand\s*total|balance\s*due):?\s*[$€£]?\s*([\d,]+\.?\d{0,2})`),
	FieldVendorName: regexp.MustCompile(
		`(?m)^([A-Z][A-Za-z\s&,]+(?:Inc\.?|LLC|LLP|Ltd\.?|Corp\.?|Corporation|Company|Co\.?|PBC|L\.?L\.?C\.?|P\.?L\.?C\.?))`),
	FieldSubtotal: regexp.MustCompile(
		`(?i)(?:subtotal|sub-total|sub\s+total):?\s*[$€£]?\s*([\d,]+\.?\d{0,2})`),
	FieldTax: regexp.MustCompile(
		`(?i)(?:tax|vat|gst|sales\s*tax):?\s*[$€£]?\s*([\d,]+\.?\d{0,2})`),
	FieldPONumber: regexp.MustCompile(
		`(?i)p\.?o\.?\s*(?:#|no\.?|number)?:?\s*([A-Z0-9][-A-Z0-9]{2,20})`),
	FieldCurrency: regexp.MustCompile(
		`(?i)(USD|EUR|GBP|MYR|SGD|\$|€|£|RM)`),
	FieldDueDate: regexp.MustCompile(
		`(?i)(?:due\s*date|payment\s*due|pay\s*by):?\s*(\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}[-/]\d{1,2}[-/]\d{1,2}|\w+\s+\d{1,2},?\s+\d{4})`),
	FieldPaymentTerms: regexp.MustCompile(
		`(?i)(?:terms|payment\s*terms):?\s*(NET\s*\d+|DUE\s*ON\s*RECEIPT|\d+\s*DAYS)`),
}

// Ordered list of accepted date layouts; the first that parses wins.
var dateLayouts = []string{
	"1/2/2006", "2/1/2006", "2006-1-2",
	"1-2-2006", "2-1-2006",
	"January 2, 2006", "Jan 2, 2006",
	"2 January 2006", "2 Jan 2006",
}

var reAmountNoise = regexp.MustCompile(`[,$€£]|RM`)

// FieldExtractor turns normalized text into an InvoiceData record with a
// confidence score. Deterministic pattern matching, not learned recognition;
// low-confidence output is deferred to manual handling downstream.
type FieldExtractor struct {
	rawTextLimit int
}

func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{rawTextLimit: 1000}
}

// Extract applies one pattern per field against the text and assembles a
// record. Returns (nil, 0) when the text is blank, no invoice number
// matched, or the total amount parses to zero. Confidence is always in [0,1]
// and equals matched-required-fields / 4.
func (fe *FieldExtractor) Extract(text string) (*entity.InvoiceData, float64) {
	if strings.TrimSpace(text) == "" {
		return nil, 0
	}
	text = NormalizeSpacing(text)

	matched := map[string]string{}
	found := 0
	for _, name := range requiredFields {
		if m := fieldPatterns[name].FindStringSubmatch(text); m != nil {
			matched[name] = strings.TrimSpace(m[1])
			found++
		}
	}
	for _, name := range optionalFields {
		if m := fieldPatterns[name].FindStringSubmatch(text); m != nil {
			matched[name] = strings.TrimSpace(m[1])
		}
	}

	confidence := float64(found) / float64(len(requiredFields))

	total := ParseAmount(matched[FieldAmount])
	if matched[FieldInvoiceNumber] == "" || total == 0 {
		return nil, 0
	}

	tax := ParseAmount(matched[FieldTax])
	subtotal := ParseAmount(matched[FieldSubtotal])
	if subtotal == 0 && total > 0 {
		// No usable subtotal on the document; derive one so the amount
		// consistency check has something to work with.
		subtotal = total - tax
	}

	issueDate := time.Now().UTC().Truncate(24 * time.Hour)
	if d, ok := ParseDate(matched[FieldDate]); ok {
		issueDate = d
	}
	var dueDate *time.Time
	if d, ok := ParseDate(matched[FieldDueDate]); ok {
		dueDate = &d
	}

	excerpt := text
	if len(excerpt) > fe.rawTextLimit {
		excerpt = excerpt[:fe.rawTextLimit]
	}

	return &entity.InvoiceData{
		VendorName:    matched[FieldVendorName],
		InvoiceNumber: matched[FieldInvoiceNumber],
		InvoiceDate:   issueDate,
		DueDate:       dueDate,
		PaymentTerms:  matched[FieldPaymentTerms],
		PONumber:      matched[FieldPONumber],
		Subtotal:      subtotal,
		TaxAmount:     tax,
		TotalAmount:   total,
		Currency:      ParseCurrency(matched[FieldCurrency]),
		Confidence:    confidence,
		RawText:       excerpt,
	}, confidence
}

// ParseAmount strips currency symbols and thousands separators and parses
// the remainder. Unparsable amounts come back as 0.
func ParseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	cleaned := reAmountNoise.ReplaceAllString(s, "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseDate walks the fixed layout list; first successful layout wins.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseCurrency maps a matched currency token to an ISO code. Defaults USD.
func ParseCurrency(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "$", "usd":
		return "USD"
	case "€", "eur":
		return "EUR"
	case "£", "gbp":
		return "GBP"
	case "rm", "myr":
		return "MYR"
	case "sgd":
		return "SGD"
	default:
		return "USD"
	}
}
