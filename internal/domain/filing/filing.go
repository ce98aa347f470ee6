// Package filing holds the core domain types for SEC filing ingestion:
// filing kinds, the section taxonomy per form, parsed documents, passages,
// and the per-company index state.
package filing

// Type is an SEC form type supported by the indexing pipeline.
type Type string

const (
	// Type10K is the annual report form.
	Type10K Type = "10-K"
	// Type10Q is the quarterly report form.
	Type10Q Type = "10-Q"
	// Type8K is the current report form.
	Type8K Type = "8-K"
)

// Types lists every supported form type in indexing order.
var Types = []Type{Type10K, Type10Q, Type8K}

// ParseType returns the Type matching s, or false for unknown forms.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case Type10K, Type10Q, Type8K:
		return Type(s), true
	}
	return "", false
}

// Category classifies a filing section by subject matter.
type Category string

const (
	CategoryRiskFactors         Category = "risk_factors"
	CategoryFinancialDiscussion Category = "financial_discussion"
	CategoryBusinessOverview    Category = "business_overview"
	CategoryFinancialStatements Category = "financial_statements"
	CategoryFinancialData       Category = "financial_data"
	CategoryLegal               Category = "legal"
	CategoryRegulatory          Category = "regulatory"
	CategoryMarketInfo          Category = "market_info"
	CategoryEventsTransactions  Category = "events_transactions"
	CategoryCorporateGovernance Category = "corporate_governance"
	CategoryGuidanceOutlook     Category = "guidance_outlook"
	CategoryGeneral             Category = "general"
)

// Categories lists the filterable section categories exposed to search.
var Categories = []Category{
	CategoryRiskFactors,
	CategoryFinancialDiscussion,
	CategoryBusinessOverview,
	CategoryFinancialStatements,
	CategoryLegal,
	CategoryRegulatory,
	CategoryMarketInfo,
	CategoryEventsTransactions,
	CategoryCorporateGovernance,
	CategoryGuidanceOutlook,
}

// SectionSpec is one entry of a form's item taxonomy.
type SectionSpec struct {
	Name     string
	Category Category
}

// Item taxonomies per form type (SEC Regulation S-K / Form 8-K instructions).
// Keys are the item codes captured by the parser's header regex.
var (
	sections10K = map[string]SectionSpec{
		"1":  {Name: "Item 1 - Business", Category: CategoryBusinessOverview},
		"1A": {Name: "Item 1A - Risk Factors", Category: CategoryRiskFactors},
		"1B": {Name: "Item 1B - Unresolved Staff Comments", Category: CategoryRegulatory},
		"1C": {Name: "Item 1C - Cybersecurity", Category: CategoryRiskFactors},
		"2":  {Name: "Item 2 - Properties", Category: CategoryBusinessOverview},
		"3":  {Name: "Item 3 - Legal Proceedings", Category: CategoryLegal},
		"5":  {Name: "Item 5 - Market Information", Category: CategoryMarketInfo},
		"6":  {Name: "Item 6 - Selected Financial Data", Category: CategoryFinancialData},
		"7":  {Name: "Item 7 - MD&A", Category: CategoryFinancialDiscussion},
		"7A": {Name: "Item 7A - Market Risk Disclosures", Category: CategoryRiskFactors},
		"8":  {Name: "Item 8 - Financial Statements", Category: CategoryFinancialStatements},
		"9":  {Name: "Item 9 - Accountant Disagreements", Category: CategoryRegulatory},
		"9A": {Name: "Item 9A - Controls and Procedures", Category: CategoryRegulatory},
		"9B": {Name: "Item 9B - Other Information", Category: CategoryRegulatory},
	}

	// 10-Q items are keyed by bare item code. Part I and Part II share codes
	// ("Item 1", "Item 1A"); keep-last matching means the Part II occurrence
	// wins, which is the one carrying legal proceedings and risk factors.
	sections10Q = map[string]SectionSpec{
		"1":  {Name: "Item 1 - Financial Statements / Legal Proceedings", Category: CategoryFinancialStatements},
		"1A": {Name: "Item 1A - Risk Factors", Category: CategoryRiskFactors},
		"2":  {Name: "Item 2 - MD&A", Category: CategoryFinancialDiscussion},
		"3":  {Name: "Item 3 - Market Risk", Category: CategoryRiskFactors},
		"4":  {Name: "Item 4 - Controls", Category: CategoryRegulatory},
		"5":  {Name: "Item 5 - Other Information", Category: CategoryEventsTransactions},
		"6":  {Name: "Item 6 - Exhibits", Category: CategoryRegulatory},
	}

	sections8K = map[string]SectionSpec{
		"1.01": {Name: "Item 1.01 - Material Agreement", Category: CategoryEventsTransactions},
		"1.02": {Name: "Item 1.02 - Termination of Agreement", Category: CategoryEventsTransactions},
		"1.05": {Name: "Item 1.05 - Cybersecurity Incident", Category: CategoryRiskFactors},
		"2.01": {Name: "Item 2.01 - Acquisition/Disposition", Category: CategoryEventsTransactions},
		"2.02": {Name: "Item 2.02 - Earnings Results", Category: CategoryFinancialDiscussion},
		"2.05": {Name: "Item 2.05 - Exit/Disposal Activities", Category: CategoryEventsTransactions},
		"5.02": {Name: "Item 5.02 - Officer/Director Changes", Category: CategoryCorporateGovernance},
		"5.03": {Name: "Item 5.03 - Bylaws Amendment", Category: CategoryCorporateGovernance},
		"7.01": {Name: "Item 7.01 - Reg FD Disclosure", Category: CategoryGuidanceOutlook},
		"8.01": {Name: "Item 8.01 - Other Events", Category: CategoryGuidanceOutlook},
		"9.01": {Name: "Item 9.01 - Exhibits", Category: CategoryRegulatory},
	}
)

// SectionMap returns the item taxonomy for a form type. Unknown forms get an
// empty map, which forces the parser into fallback mode.
func SectionMap(t Type) map[string]SectionSpec {
	switch t {
	case Type10K:
		return sections10K
	case Type10Q:
		return sections10Q
	case Type8K:
		return sections8K
	}
	return nil
}

// ParseQuality flags whether section detection succeeded.
type ParseQuality string

const (
	// QualitySectioned means item headers were detected and the document was
	// split along the taxonomy.
	QualitySectioned ParseQuality = "sectioned"
	// QualityFallback means detection failed and the whole document is
	// carried as a single section.
	QualityFallback ParseQuality = "fallback"
)

// Section is one structurally delimited region of a filing.
// Text excludes the rendered tables held in Tables.
type Section struct {
	ID       string
	Name     string
	Category Category
	Text     string
	Tables   []string
}

// ParsedDocument is the output of the section parser, consumed immediately
// by the chunker and never persisted.
type ParsedDocument struct {
	Type     Type
	Sections []Section
	Quality  ParseQuality
}

// Filing is one entry from the EDGAR submissions listing.
type Filing struct {
	Type            Type
	Date            string // YYYY-MM-DD
	AccessionNumber string
	URL             string
	Description     string
}
