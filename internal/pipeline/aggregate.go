package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
	"github.com/veridoc/veridoc/internal/services"
)

// Aggregator builds per-case verification summaries from document stage
// results.
type Aggregator struct {
	Docs   services.DocumentRepository
	Cases  services.CaseRepository
	Logger *lib.Logger
}

// categoryIndicator maps an explicit classifier category tag to a summary
// category. Tags win over document-type keywords.
var categoryIndicators = []struct {
	tag      string
	category models.Category
}{
	{"identity_proof", models.CategoryIDProof},
	{"address_proof", models.CategoryAddressProof},
	{"financial_statement", models.CategoryFinancialStatement},
}

// categoryKeywords maps document-type substrings to a summary category.
// Order matters: the first matching group wins.
var categoryKeywords = []struct {
	keywords []string
	category models.Category
}{
	{[]string{"passport", "license", "id", "voter", "pan", "aadhar"}, models.CategoryIDProof},
	{[]string{"utility", "bill", "statement", "address"}, models.CategoryAddressProof},
	{[]string{"bank", "financial", "account"}, models.CategoryFinancialStatement},
}

// fieldChains lists, per category, the summary field name and the extracted
// field names that can supply it, in preference order.
var fieldChains = map[models.Category][]struct {
	field string
	chain []string
}{
	models.CategoryIDProof: {
		{"name", []string{"full_name", "name", "holder_name"}},
		{"dob", []string{"date_of_birth", "dob", "birth_date"}},
		{"father_name", []string{"father_name", "fathers_name"}},
		{"document_number", []string{"pan_number", "document_number", "id_number", "passport_number"}},
		{"expiry_date", []string{"expiry_date", "valid_until"}},
		{"issuing_authority", []string{"issuing_authority", "issued_by"}},
	},
	models.CategoryAddressProof: {
		{"name", []string{"name", "customer_name", "account_holder"}},
		{"address", []string{"address", "full_address", "service_address"}},
		{"date", []string{"date", "statement_date", "bill_date"}},
		{"issuing_organization", []string{"issuing_organization", "provider", "utility_company"}},
	},
	models.CategoryFinancialStatement: {
		{"name", []string{"name", "account_holder", "customer_name"}},
		{"account_number", []string{"account_number", "account_no"}},
		{"statement_date", []string{"statement_date", "date"}},
		{"balance", []string{"balance", "closing_balance"}},
	},
}

// GenerateSummary aggregates every document linked to a case and caches the
// result on the case record. Split parents contribute nothing; their pages
// carry the real results. Documents missing from the store are logged and
// skipped rather than failing the whole summary.
func (a *Aggregator) GenerateSummary(caseID string) (*models.CaseSummary, error) {
	record, err := a.Cases.Get(caseID)
	if err != nil {
		return nil, err
	}

	summary := newEmptySummary()
	var allNames, allAddresses []string
	verifiedByCategory := map[models.Category]bool{}

	for _, docID := range record.Documents {
		doc, err := a.Docs.Get(docID)
		if err != nil {
			if lib.IsCategory(err, lib.CategoryNotFound) {
				a.Logger.Warn("Linked document missing from store", "case_id", caseID, "document_id", docID)
				continue
			}
			return nil, err
		}
		if doc.IsSplitParent() {
			continue
		}

		category, defaulted := a.mapCategory(doc)
		cat := summary.Category(category)
		cat.Documents = append(cat.Documents, docID)
		if defaulted {
			cat.Defaulted = append(cat.Defaulted, docID)
			a.Logger.Warn("No category indicator matched, defaulting to id_proof",
				"case_id", caseID, "document_id", docID)
		}

		extraction := doc.Stage(models.StageExtraction)
		if extraction.Status == models.StageStatusSuccess {
			verifiedByCategory[category] = true
		}

		fields := extractedFields(extraction)
		keyData := applyFieldChains(category, fields)
		if name := keyData["name"]; name != "" {
			allNames = append(allNames, name)
		}
		if category == models.CategoryAddressProof {
			if address := keyData["address"]; address != "" {
				allAddresses = append(allAddresses, address)
			}
		}

		// First non-empty value wins; later documents never overwrite
		for field, value := range keyData {
			if value != "" && cat.ExtractedData[field] == "" {
				cat.ExtractedData[field] = value
			}
		}
	}

	for _, category := range models.Categories() {
		summary.Category(category).Verified = verifiedByCategory[category]
	}

	summary.ConsistencyChecks = models.ConsistencyChecks{
		Name:    checkConsistency(allNames, "name"),
		Address: checkConsistency(allAddresses, "address"),
	}
	summary.VerificationStatus = deriveVerification(summary)

	if len(record.Documents) == 0 {
		summary.Message = "case has no linked documents"
	}
	summary.GeneratedAt = time.Now().UTC()

	if _, err := a.Cases.SaveSummary(caseID, summary); err != nil {
		return nil, err
	}

	a.Logger.Info("Case summary generated",
		"case_id", caseID,
		"documents", len(record.Documents),
		"verification_status", summary.VerificationStatus)
	return summary, nil
}

func newEmptySummary() *models.CaseSummary {
	summary := &models.CaseSummary{}
	for _, category := range models.Categories() {
		cat := summary.Category(category)
		cat.Documents = []string{}
		cat.ExtractedData = map[string]string{}
	}
	return summary
}

// mapCategory decides which summary category a document belongs to. Explicit
// classifier tags win; document-type keywords are the fallback; anything
// unrecognized lands in id_proof and is reported as defaulted.
func (a *Aggregator) mapCategory(doc *models.DocumentRecord) (models.Category, bool) {
	classification := doc.Stage(models.StageClassification)
	tags := stringSlice(classification.Data["categories"])
	for _, indicator := range categoryIndicators {
		for _, tag := range tags {
			if tag == indicator.tag {
				return indicator.category, false
			}
		}
	}

	docType, _ := classification.Data["document_type"].(string)
	docTypeLower := strings.ToLower(docType)
	for _, group := range categoryKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(docTypeLower, keyword) {
				return group.category, false
			}
		}
	}
	return models.CategoryIDProof, true
}

// applyFieldChains resolves each summary field from the first extracted field
// in its chain that carries a value
func applyFieldChains(category models.Category, fields map[string]string) map[string]string {
	out := map[string]string{}
	for _, entry := range fieldChains[category] {
		for _, key := range entry.chain {
			if v := strings.TrimSpace(fields[key]); v != "" {
				out[entry.field] = v
				break
			}
		}
	}
	return out
}

// extractedFields pulls the extraction field map out of a stage block. JSON
// round-trips turn map[string]string into map[string]any, so both shapes are
// accepted.
func extractedFields(block models.StageBlock) map[string]string {
	raw, ok := block.Data["extracted_fields"]
	if !ok {
		return map[string]string{}
	}
	switch typed := raw.(type) {
	case map[string]string:
		return typed
	case map[string]any:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return map[string]string{}
	}
}

// stringSlice converts a stage data value into []string, tolerating the
// []any shape JSON reloads produce
func stringSlice(raw any) []string {
	switch typed := raw.(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, v := range typed {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// checkConsistency compares one field's values across documents. Values are
// compared lowercased and trimmed: one distinct value is consistent, two is
// minor variance, more is inconsistent.
func checkConsistency(values []string, field string) models.ConsistencyCheck {
	if len(values) == 0 {
		return models.ConsistencyCheck{
			Status:  models.ConsistencyNoData,
			Message: fmt.Sprintf("no %s values extracted", field),
		}
	}

	seen := map[string]bool{}
	var unique []string
	for _, v := range values {
		normalized := strings.ToLower(strings.TrimSpace(v))
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		unique = append(unique, normalized)
	}

	switch {
	case len(unique) == 1:
		return models.ConsistencyCheck{
			Status: models.ConsistencyConsistent,
			Values: []string{values[0]},
		}
	case len(unique) <= 2:
		return models.ConsistencyCheck{
			Status:  models.ConsistencyMinorVariance,
			Values:  unique,
			Message: fmt.Sprintf("minor differences in extracted %s values", field),
		}
	default:
		return models.ConsistencyCheck{
			Status:  models.ConsistencyInconsistent,
			Values:  unique,
			Message: fmt.Sprintf("multiple different %s values found", field),
		}
	}
}

// deriveVerification applies the case verdict rule: identity plus address
// proof means complete, either alone means partial
func deriveVerification(summary *models.CaseSummary) models.VerificationStatus {
	idVerified := summary.IDProof.Verified
	addressVerified := summary.AddressProof.Verified

	switch {
	case idVerified && addressVerified:
		return models.VerificationComplete
	case idVerified || addressVerified:
		return models.VerificationPartial
	default:
		return models.VerificationIncomplete
	}
}
