// Package fund defines the classification request model: the disclosure
// profile a fund submits for SFDR categorization. The engine treats the
// request as read-only; it is owned by the caller.
package fund

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// ReviewFrequency values accepted for sustainability-risk review cycles.
const (
	ReviewContinuous = "continuous"
	ReviewQuarterly  = "quarterly"
	ReviewAnnual     = "annual"
)

// ClassificationRequest is the immutable input to one classification run.
type ClassificationRequest struct {
	Fund           Metadata                `json:"fund"`
	ESG            ESGIntegration          `json:"esg"`
	Sustainability SustainabilityObjective `json:"sustainability"`
	Taxonomy       TaxonomyAlignment       `json:"taxonomy"`
	Risk           RiskIntegration         `json:"risk"`
	Documents      []Document              `json:"documents,omitempty"`
}

// Metadata identifies the fund and its investment profile.
type Metadata struct {
	EntityID           string   `json:"entity_id"` // UUID issued by the fund register
	Name               string   `json:"name"`
	ISIN               string   `json:"isin,omitempty"`
	Domicile           string   `json:"domicile,omitempty"`
	AssetClasses       []string `json:"asset_classes,omitempty"`
	InvestmentStrategy string   `json:"investment_strategy,omitempty"`
	MarketedAsESG      bool     `json:"marketed_as_esg"` // promotional marketing flag
}

// ESGIntegration declares how environmental/social characteristics are
// integrated into the investment process.
type ESGIntegration struct {
	Integrated               bool     `json:"integrated"`
	Approach                 string   `json:"approach,omitempty"`
	CharacteristicsPromoted  []string `json:"characteristics_promoted,omitempty"`
	ExclusionPoliciesApplied bool     `json:"exclusion_policies_applied"`
}

// SustainabilityObjective declares a sustainable-investment objective.
type SustainabilityObjective struct {
	HasObjective           bool    `json:"has_objective"`
	ObjectiveNarrative     string  `json:"objective_narrative,omitempty"`
	InvestmentMinimum      float64 `json:"investment_minimum"` // percent of NAV, 0-100
	MeasurementMethodology string  `json:"measurement_methodology,omitempty"`
}

// TaxonomyAlignment declares EU taxonomy alignment.
type TaxonomyAlignment struct {
	Claimed                 bool     `json:"claimed"`
	AlignmentMinimum        float64  `json:"alignment_minimum"` // percent, 0-100
	EnvironmentalObjectives []string `json:"environmental_objectives,omitempty"`
}

// RiskIntegration describes the sustainability-risk process and principal
// adverse impact (PAI) consideration.
type RiskIntegration struct {
	ProcessDescription string   `json:"process_description,omitempty"`
	ReviewFrequency    string   `json:"review_frequency,omitempty"`
	PAIConsidered      bool     `json:"pai_considered"`
	PAIIndicators      []string `json:"pai_indicators,omitempty"`
}

// Document is a disclosure document attached to the request. Content is the
// extracted text; binary extraction happens upstream.
type Document struct {
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"` // prospectus, annex, factsheet
	Content  string `json:"content,omitempty"`
	Language string `json:"language,omitempty"`
}

// ContinuousRiskReview reports whether the risk process is reviewed continuously.
func (r *ClassificationRequest) ContinuousRiskReview() bool {
	return strings.EqualFold(r.Risk.ReviewFrequency, ReviewContinuous)
}

// Hash returns a stable content hash of the request, used as the decision
// cache key. Identical requests hash identically because struct field order
// fixes the JSON encoding.
func (r *ClassificationRequest) Hash() string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
