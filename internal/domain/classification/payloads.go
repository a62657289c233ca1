package classification

// StructuredData is the output of the document-structuring step: disclosure
// text broken into labeled sections plus coarse quality measures. It is one
// of the closed set of step payloads the executor dispatches on.
type StructuredData struct {
	Sections     []DocumentSection `json:"sections"`
	ESGSignals   []string          `json:"esg_signals,omitempty"`
	Completeness float64           `json:"completeness"` // 0-100, share of expected sections present
	Language     string            `json:"language,omitempty"`
}

// DocumentSection is one labeled slice of disclosure text.
type DocumentSection struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Source string `json:"source,omitempty"` // originating document name
}

// Section returns the body of the section with the given title, if present.
func (s *StructuredData) Section(title string) (string, bool) {
	for _, sec := range s.Sections {
		if sec.Title == title {
			return sec.Body, true
		}
	}
	return "", false
}

// InferenceResult is the output of the category-inference step: a provisional
// article with the signals that produced it.
type InferenceResult struct {
	Classification Article  `json:"classification"`
	Rationale      string   `json:"rationale,omitempty"`
	Signals        []string `json:"signals,omitempty"`
	Certainty      float64  `json:"certainty"` // 0-100
}

// ImpactAssessment is the output of the PAI indicator analysis step.
type ImpactAssessment struct {
	IndicatorsCovered []string `json:"indicators_covered,omitempty"`
	IndicatorsMissing []string `json:"indicators_missing,omitempty"`
	CoverageRatio     float64  `json:"coverage_ratio"` // 0-1
}

// TaxonomyAssessment is the output of the taxonomy-alignment check step.
type TaxonomyAssessment struct {
	AlignmentClaimed   bool     `json:"alignment_claimed"`
	AlignmentMinimum   float64  `json:"alignment_minimum"`
	ObjectivesDeclared []string `json:"objectives_declared,omitempty"`
	Consistent         bool     `json:"consistent"`
	Findings           []string `json:"findings,omitempty"`
}
