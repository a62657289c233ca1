// Package rules implements the rule-based eligibility validator: a fixed,
// ordered list of declarative SFDR checks evaluated against a classification
// request, plus the deterministic article recommendation tree.
//
// The rule list is built once at startup and never mutated, so a single
// RuleSet is safe for unsynchronized concurrent use.
package rules

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sustainfi/sfdr-engine/internal/domain/fund"
)

// ValidatorVersion is stamped into every ValidationResult so audit records
// identify the rule revision that produced them.
const ValidatorVersion = "sfdr-rules/1.2"

// Eligibility thresholds under the disclosure regulation.
const (
	MinSustainableAllocation = 80.0 // percent, Article 9 floor
	MinObjectiveNarrative    = 50   // characters
	MinMethodology           = 20   // characters
	MinRiskProcess           = 30   // characters
)

// Severity grades a validation issue.
type Severity string

// Issue severities.
const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Issue is one finding produced by a rule.
type Issue struct {
	Code                string   `json:"code"`
	Message             string   `json:"message"`
	Severity            Severity `json:"severity"`
	Field               string   `json:"field,omitempty"`
	RegulatoryReference string   `json:"regulatory_reference"`
	SuggestedAction     string   `json:"suggested_action,omitempty"`
}

// Result is the outcome of running every rule against one request.
type Result struct {
	IsValid          bool      `json:"is_valid"`
	Issues           []Issue   `json:"issues"`
	ValidatedAt      time.Time `json:"validated_at"`
	ValidatorVersion string    `json:"validator_version"`
}

// Rule is a pure, deterministic check. Evaluate must not depend on any other
// rule's outcome and must return the same issues for the same request.
type Rule struct {
	Code        string
	Description string
	Reference   string
	Severity    Severity
	Evaluate    func(req *fund.ClassificationRequest) []Issue
}

// RuleSet holds the ordered rule list. Construct once with NewRuleSet and
// share by reference.
type RuleSet struct {
	rules []Rule
	now   func() time.Time
}

// NewRuleSet builds the fixed SFDR rule list.
func NewRuleSet() *RuleSet {
	return &RuleSet{rules: sfdrRules(), now: time.Now}
}

// Rules returns a copy of the rule list, in evaluation order.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Validate runs every rule exactly once against the request and concatenates
// the issues in rule order. IsValid is true when no issue carries ERROR
// severity.
func (s *RuleSet) Validate(req *fund.ClassificationRequest) Result {
	res := Result{
		Issues:           []Issue{},
		ValidatedAt:      s.now().UTC(),
		ValidatorVersion: ValidatorVersion,
	}
	for _, r := range s.rules {
		res.Issues = append(res.Issues, r.Evaluate(req)...)
	}

	res.IsValid = true
	for _, iss := range res.Issues {
		if iss.Severity == SeverityError {
			res.IsValid = false
			break
		}
	}
	return res
}

// sfdrRules returns the declarative rule list. Order is fixed for
// deterministic issue ordering; correctness does not depend on it.
func sfdrRules() []Rule {
	return []Rule{
		{
			Code:        "METADATA_ENTITY_ID_REQUIRED",
			Description: "Fund entity identifier must be a well-formed UUID",
			Reference:   "SFDR Art. 4(1)",
			Severity:    SeverityError,
			Evaluate: func(req *fund.ClassificationRequest) []Issue {
				if _, err := uuid.Parse(req.Fund.EntityID); err != nil {
					return []Issue{{
						Code:                "METADATA_ENTITY_ID_REQUIRED",
						Message:             "fund entity_id must be a valid UUID",
						Severity:            SeverityError,
						Field:               "fund.entity_id",
						RegulatoryReference: "SFDR Art. 4(1)",
						SuggestedAction:     "provide the UUID issued by the fund register",
					}}
				}
				return nil
			},
		},
		{
			Code:        "METADATA_FUND_NAME_REQUIRED",
			Description: "Fund name must be present",
			Reference:   "SFDR Art. 4(1)",
			Severity:    SeverityError,
			Evaluate: func(req *fund.ClassificationRequest) []Issue {
				if req.Fund.Name == "" {
					return []Issue{{
						Code:                "METADATA_FUND_NAME_REQUIRED",
						Message:             "fund name is required",
						Severity:            SeverityError,
						Field:               "fund.name",
						RegulatoryReference: "SFDR Art. 4(1)",
					}}
				}
				return nil
			},
		},
		{
			Code:        "ART9_MINIMUM_ALLOCATION",
			Description: "A sustainable-investment objective requires a minimum allocation",
			Reference:   "SFDR Art. 9(1)",
			Severity:    SeverityError,
			Evaluate: func(req *fund.ClassificationRequest) []Issue {
				if req.Sustainability.HasObjective && req.Sustainability.InvestmentMinimum < MinSustainableAllocation {
					return []Issue{{
						Code:     "ART9_MINIMUM_ALLOCATION",
						Message:  fmt.Sprintf("sustainable-investment minimum %.1f%% is below the %.0f%% floor", req.Sustainability.InvestmentMinimum, MinSustainableAllocation),
						Severity: SeverityError,
						Field:    "sustainability.investment_minimum",
						RegulatoryReference: "SFDR Art. 9(1)",
						SuggestedAction:     "raise the committed allocation or withdraw the objective declaration",
					}}
				}
				return nil
			},
		},
		{
			Code:        "ART9_OBJECTIVE_NARRATIVE",
			Description: "A sustainable-investment objective requires a substantive narrative",
			Reference:   "SFDR Art. 9(1), RTS Annex III",
			Severity:    SeverityError,
			Evaluate: func(req *fund.ClassificationRequest) []Issue {
				if req.Sustainability.HasObjective && len(req.Sustainability.ObjectiveNarrative) < MinObjectiveNarrative {
					return []Issue{{
						Code:     "ART9_OBJECTIVE_NARRATIVE",
						Message:  fmt.Sprintf("objective narrative must be at least %d characters", MinObjectiveNarrative),
						Severity: SeverityError,
						Field:    "sustainability.objective_narrative",
						RegulatoryReference: "SFDR Art. 9(1), RTS Annex III",
					}}
				}
				return nil
			},
		},
		{
			Code:        "ART9_MEASUREMENT_METHODOLOGY",
			Description: "A sustainable-investment objective requires a measurement methodology",
			Reference:   "SFDR Art. 9(3)",
			Severity:    SeverityError,
			Evaluate: func(req *fund.ClassificationRequest) []Issue {
				if req.Sustainability.HasObjective && len(req.Sustainability.MeasurementMethodology) < MinMethodology {
					return []Issue{{
						Code:     "ART9_MEASUREMENT_METHODOLOGY",
						Message:  "measurement methodology is missing or too short",
						Severity: SeverityError,
						Field:    "sustainability.measurement_methodology",
						RegulatoryReference: "SFDR Art. 9(3)",
						SuggestedAction:     "describe how objective attainment is measured",
					}}
				}
				return nil
			},
		},
		{
			Code:        "ART8_RISK_PROCESS_NARRATIVE",
			Description: "ESG integration requires a sustainability-risk process description",
			Reference:   "SFDR Art. 6(1)(a)",
			Severity:    SeverityError,
			Evaluate: func(req *fund.ClassificationRequest) []Issue {
				if req.ESG.Integrated && len(req.Risk.ProcessDescription) < MinRiskProcess {
					return []Issue{{
						Code:     "ART8_RISK_PROCESS_NARRATIVE",
						Message:  fmt.Sprintf("sustainability-risk process description must be at least %d characters", MinRiskProcess),
						Severity: SeverityError,
						Field:    "risk.process_description",
						RegulatoryReference: "SFDR Art. 6(1)(a)",
					}}
				}
				return nil
			},
		},
		{
			Code:        "PAI_INDICATORS_REQUIRED",
			Description: "Adverse-impact consideration requires at least one indicator",
			Reference:   "SFDR Art. 7(1)(a)",
			Severity:    SeverityWarning,
			Evaluate: func(req *fund.ClassificationRequest) []Issue {
				if req.Risk.PAIConsidered && len(req.Risk.PAIIndicators) == 0 {
					return []Issue{{
						Code:     "PAI_INDICATORS_REQUIRED",
						Message:  "principal adverse impacts are considered but no indicators are selected",
						Severity: SeverityWarning,
						Field:    "risk.pai_indicators",
						RegulatoryReference: "SFDR Art. 7(1)(a)",
						SuggestedAction:     "select the indicators tracked in periodic reports",
					}}
				}
				return nil
			},
		},
		{
			Code:        "TAXONOMY_OBJECTIVES_REQUIRED",
			Description: "A taxonomy-alignment claim requires environmental objectives",
			Reference:   "Taxonomy Regulation Art. 9",
			Severity:    SeverityWarning,
			Evaluate: func(req *fund.ClassificationRequest) []Issue {
				if req.Taxonomy.Claimed && len(req.Taxonomy.EnvironmentalObjectives) == 0 {
					return []Issue{{
						Code:     "TAXONOMY_OBJECTIVES_REQUIRED",
						Message:  "taxonomy alignment is claimed but no environmental objectives are listed",
						Severity: SeverityWarning,
						Field:    "taxonomy.environmental_objectives",
						RegulatoryReference: "Taxonomy Regulation Art. 9",
					}}
				}
				return nil
			},
		},
		{
			Code:        "PROMOTION_WITHOUT_INTEGRATION",
			Description: "ESG marketing without declared ESG integration",
			Reference:   "SFDR Art. 8(1)",
			Severity:    SeverityWarning,
			Evaluate: func(req *fund.ClassificationRequest) []Issue {
				if req.Fund.MarketedAsESG && !req.ESG.Integrated {
					return []Issue{{
						Code:     "PROMOTION_WITHOUT_INTEGRATION",
						Message:  "fund is marketed as ESG but declares no ESG integration",
						Severity: SeverityWarning,
						Field:    "esg.integrated",
						RegulatoryReference: "SFDR Art. 8(1)",
						SuggestedAction:     "declare the integration approach or adjust marketing materials",
					}}
				}
				return nil
			},
		},
		{
			Code:        "DOCUMENTS_RECOMMENDED",
			Description: "Disclosure documents improve classification evidence",
			Reference:   "RTS Annex II",
			Severity:    SeverityInfo,
			Evaluate: func(req *fund.ClassificationRequest) []Issue {
				if len(req.Documents) == 0 {
					return []Issue{{
						Code:     "DOCUMENTS_RECOMMENDED",
						Message:  "no disclosure documents attached; classification relies on declared fields only",
						Severity: SeverityInfo,
						Field:    "documents",
						RegulatoryReference: "RTS Annex II",
					}}
				}
				return nil
			},
		},
	}
}
