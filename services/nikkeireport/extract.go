package nikkeireport

import (
	"github.com/PuerkitoBio/goquery"

	"nikkeireport-backend/lib/htmlutil"
	"nikkeireport-backend/lib/textutil"
)

// Record is one scraped report row. Every field is stored as displayed on
// the page, textutil.NotAvailable standing in for anything unreadable.
type Record struct {
	TargetDate   string
	Code         string
	Sector       string
	Name         string
	Price        string
	Per          string
	YieldRate    string
	Pbr          string
	Roe          string
	EarningYield string
}

// positional selectors into the report page. the markup carries no stable
// classes around these values, so position is all there is to hold onto.
const (
	selSector = `#CONTENTS_MAIN > div:nth-of-type(1) > span:nth-of-type(1) > a`
	selName   = `#CONTENTS_MAIN > div:nth-of-type(3) > div > div > h1`
	selPrice  = `#CONTENTS_MAIN > div:nth-of-type(4) > dl:nth-of-type(1) > dd`

	selPer       = `#JSID_stockInfo > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(2) > ul > li:nth-of-type(2) > span:nth-of-type(2)`
	selYieldRate = `#JSID_stockInfo > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(2) > ul > li:nth-of-type(3) > span:nth-of-type(2)`

	selPbr          = `#JSID_stockInfo > div:nth-of-type(3) > div > div:nth-of-type(1) > ul > li:nth-of-type(1) > span:nth-of-type(2)`
	selRoe          = `#JSID_stockInfo > div:nth-of-type(3) > div > div:nth-of-type(1) > ul > li:nth-of-type(2) > span:nth-of-type(2)`
	selEarningYield = `#JSID_stockInfo > div:nth-of-type(3) > div > div:nth-of-type(1) > ul > li:nth-of-type(3) > span:nth-of-type(2)`
)

func field(doc *goquery.Document, selector string) string {
	text, ok := htmlutil.Lookup(doc, selector)
	if !ok {
		return textutil.NotAvailable
	}
	return text
}

// BuildRecord reads all report fields off a parsed page. A field whose
// markup is missing or rearranged degrades to NotAvailable; the record
// itself is always produced. The yield-like fields (dividend yield, ROE,
// earnings yield) carry a percent suffix, the rest are stored as extracted.
func BuildRecord(doc *goquery.Document, code, targetDate string) Record {
	return Record{
		TargetDate:   targetDate,
		Code:         code,
		Sector:       field(doc, selSector),
		Name:         field(doc, selName),
		Price:        field(doc, selPrice),
		Per:          field(doc, selPer),
		YieldRate:    textutil.EnsurePercent(field(doc, selYieldRate)),
		Pbr:          field(doc, selPbr),
		Roe:          textutil.EnsurePercent(field(doc, selRoe)),
		EarningYield: textutil.EnsurePercent(field(doc, selEarningYield)),
	}
}
