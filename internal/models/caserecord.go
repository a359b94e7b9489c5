package models

import "time"

// CaseRecord groups documents for compliance review. A case is a label, not a
// container: documents live independently and may belong to multiple cases.
type CaseRecord struct {
	CaseID      string       `json:"case_id"`
	Description string       `json:"description,omitempty"`
	Status      CaseStatus   `json:"status"`
	Documents   []string     `json:"documents"` // linked document IDs
	CaseSummary *CaseSummary `json:"case_summary,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	LastUpdated time.Time    `json:"last_updated"`
}

// CaseStatus defines the review state of a case
type CaseStatus string

const (
	CaseStatusActive CaseStatus = "active"
	CaseStatusClosed CaseStatus = "closed"
)

// HasDocument reports whether the document is already linked
func (c *CaseRecord) HasDocument(documentID string) bool {
	for _, id := range c.Documents {
		if id == documentID {
			return true
		}
	}
	return false
}

// Category is one of the canonical compliance document categories
type Category string

const (
	CategoryIDProof            Category = "id_proof"
	CategoryAddressProof       Category = "address_proof"
	CategoryFinancialStatement Category = "financial_statement"
)

// Categories returns the canonical categories in reporting order
func Categories() []Category {
	return []Category{CategoryIDProof, CategoryAddressProof, CategoryFinancialStatement}
}

// CategorySummary aggregates every case document mapped into one category
type CategorySummary struct {
	Documents     []string          `json:"documents"`
	Verified      bool              `json:"verified"`
	ExtractedData map[string]string `json:"extracted_data"`
	// Defaulted lists documents that fell through to the catch-all id_proof
	// rule because no category indicator matched their document type.
	Defaulted []string `json:"defaulted,omitempty"`
}

// ConsistencyStatus classifies cross-document agreement on one field
type ConsistencyStatus string

const (
	ConsistencyNoData        ConsistencyStatus = "no_data"
	ConsistencyConsistent    ConsistencyStatus = "consistent"
	ConsistencyMinorVariance ConsistencyStatus = "minor_variance"
	ConsistencyInconsistent  ConsistencyStatus = "inconsistent"
)

// ConsistencyCheck is the result of comparing one field across documents
type ConsistencyCheck struct {
	Status  ConsistencyStatus `json:"status"`
	Values  []string          `json:"values,omitempty"`
	Message string            `json:"message,omitempty"`
}

// VerificationStatus is the overall case verdict
type VerificationStatus string

const (
	VerificationComplete   VerificationStatus = "complete"
	VerificationPartial    VerificationStatus = "partial"
	VerificationIncomplete VerificationStatus = "incomplete"
)

// ConsistencyChecks holds the cross-document field comparisons
type ConsistencyChecks struct {
	Name    ConsistencyCheck `json:"name_consistency"`
	Address ConsistencyCheck `json:"address_consistency"`
}

// CaseSummary is the aggregated per-case verification result
type CaseSummary struct {
	IDProof            CategorySummary    `json:"id_proof"`
	AddressProof       CategorySummary    `json:"address_proof"`
	FinancialStatement CategorySummary    `json:"financial_statement"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	ConsistencyChecks  ConsistencyChecks  `json:"consistency_checks"`
	Message            string             `json:"message,omitempty"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

// Category returns the summary block for a canonical category
func (s *CaseSummary) Category(c Category) *CategorySummary {
	switch c {
	case CategoryIDProof:
		return &s.IDProof
	case CategoryAddressProof:
		return &s.AddressProof
	case CategoryFinancialStatement:
		return &s.FinancialStatement
	default:
		return nil
	}
}
