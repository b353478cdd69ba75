package models

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// SEOReport is the fixed external contract for the analysis output. The LLM
// is asked to produce JSON constrained to this shape; the result is validated
// with go-playground/validator before a report may be persisted. List-length
// caps are enforced at validation time - violating them is a schema error,
// never a silent truncation. Required sections are pointers so a missing
// section is distinguishable from an empty one.
type SEOReport struct {
	Meta             *ReportMeta       `json:"meta" validate:"required"`
	Inventory        *Inventory        `json:"inventory" validate:"required"`
	ContentAnalysis  *ContentAnalysis  `json:"content_analysis" validate:"required"`
	Keywords         *Keywords         `json:"keywords" validate:"required"`
	Competitors      []Competitor      `json:"competitors" validate:"max=15,dive"`
	SocialPresence   *SocialPresence   `json:"social_presence" validate:"required"`
	BacklinkAnalysis *BacklinkAnalysis `json:"backlink_analysis" validate:"required"`
	Recommendations  []Recommendation  `json:"recommendations,omitempty" validate:"omitempty,max=25,dive"`
	Summary          *ReportSummary    `json:"summary,omitempty"`
}

// ReportMeta identifies the analyzed entity and the analysis run.
type ReportMeta struct {
	EntityName       string  `json:"entity_name" validate:"required"`
	EntityType       string  `json:"entity_type" validate:"required,oneof=person business product course website unknown"`
	AnalysisDate     string  `json:"analysis_date" validate:"required"`
	DataSourcesCount int     `json:"data_sources_count" validate:"gte=0"`
	ConfidenceScore  float64 `json:"confidence_score" validate:"gte=0,lte=1"`
}

// DateRange bounds the observed source dates.
type DateRange struct {
	Earliest string `json:"earliest,omitempty"`
	Latest   string `json:"latest,omitempty"`
}

// SourceItem describes one discovered source.
type SourceItem struct {
	Domain       string   `json:"domain" validate:"required"`
	URL          string   `json:"url" validate:"required"`
	Title        string   `json:"title" validate:"required"`
	Description  string   `json:"description,omitempty"`
	QualityScore *float64 `json:"quality_score,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// SourceTypes buckets sources by category.
type SourceTypes struct {
	SocialMedia  []SourceItem `json:"social_media,omitempty" validate:"omitempty,dive"`
	Professional []SourceItem `json:"professional,omitempty" validate:"omitempty,dive"`
	Educational  []SourceItem `json:"educational,omitempty" validate:"omitempty,dive"`
	Community    []SourceItem `json:"community,omitempty" validate:"omitempty,dive"`
	News         []SourceItem `json:"news,omitempty" validate:"omitempty,dive"`
	Official     []SourceItem `json:"official,omitempty" validate:"omitempty,dive"`
	Media        []SourceItem `json:"media,omitempty" validate:"omitempty,dive"`
	Review       []SourceItem `json:"review,omitempty" validate:"omitempty,dive"`
	Other        []SourceItem `json:"other,omitempty" validate:"omitempty,dive"`
}

// Inventory summarizes the scraped source set. The domain list may be empty
// when the scrape found nothing usable.
type Inventory struct {
	TotalSources  int          `json:"total_sources" validate:"gte=0"`
	UniqueDomains []string     `json:"unique_domains"`
	SourceTypes   *SourceTypes `json:"source_types,omitempty"`
	DateRange     DateRange    `json:"date_range"`
}

// Evidence ties a claim back to a source URL.
type Evidence struct {
	URL            string  `json:"url" validate:"required"`
	Quote          string  `json:"quote,omitempty"`
	RelevanceScore float64 `json:"relevance_score" validate:"gte=0,lte=1"`
}

// ContentTheme is one recurring topic found across sources.
type ContentTheme struct {
	Theme     string     `json:"theme" validate:"required"`
	Frequency int        `json:"frequency" validate:"gte=0"`
	Intent    string     `json:"intent,omitempty" validate:"omitempty,oneof=informational navigational transactional"`
	Subthemes []string   `json:"subthemes,omitempty"`
	Evidence  []Evidence `json:"evidence" validate:"dive"`
}

// Sentiment carries the overall tone across sources.
type Sentiment struct {
	Overall string `json:"overall" validate:"required,oneof=positive neutral negative mixed"`
}

// ContentAnalysis groups themes and sentiment.
type ContentAnalysis struct {
	ContentThemes []ContentTheme `json:"content_themes" validate:"dive"`
	Sentiment     *Sentiment     `json:"sentiment" validate:"required"`
}

// ContentKeyword is one ranked keyword with supporting evidence.
type ContentKeyword struct {
	Keyword  string     `json:"keyword" validate:"required"`
	Intent   string     `json:"intent,omitempty" validate:"omitempty,oneof=informational navigational transactional commercial"`
	Evidence []Evidence `json:"evidence" validate:"dive"`
}

// KeywordTheme groups up to eight keywords under a theme.
type KeywordTheme struct {
	Theme    string     `json:"theme" validate:"required"`
	Keywords []string   `json:"keywords" validate:"max=8"`
	Evidence []Evidence `json:"evidence" validate:"dive"`
}

// Keywords caps content keywords at 25 and themes at 8.
type Keywords struct {
	ContentKeywords []ContentKeyword `json:"content_keywords" validate:"max=25,dive"`
	KeywordThemes   []KeywordTheme   `json:"keyword_themes" validate:"max=8,dive"`
}

// Competitor describes one competing entity.
type Competitor struct {
	Name             string     `json:"name,omitempty"`
	Domain           string     `json:"domain" validate:"required"`
	StrengthScore    float64    `json:"strength_score" validate:"gte=0,lte=10"`
	OverlapKeywords  []string   `json:"overlap_keywords"`
	UniqueAdvantages []string   `json:"unique_advantages"`
	Relationship     string     `json:"relationship" validate:"required,oneof=competitor employer partner unknown"`
	Evidence         []Evidence `json:"evidence" validate:"dive"`
}

// Platform is one discovered social platform presence.
type Platform struct {
	Platform string     `json:"platform" validate:"required"`
	URL      string     `json:"url,omitempty"`
	Evidence []Evidence `json:"evidence" validate:"dive"`
}

// SocialPresence lists platform presences.
type SocialPresence struct {
	Platforms []Platform `json:"platforms" validate:"dive"`
}

// BacklinkSource is one referring page.
type BacklinkSource struct {
	SourceType  string     `json:"source_type" validate:"required,oneof=direct_mentions professional_references educational_citations community_mentions press_coverage directory_listings social_shares other"`
	Domain      string     `json:"domain" validate:"required"`
	URL         string     `json:"url" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description,omitempty"`
	LinkType    string     `json:"link_type,omitempty" validate:"omitempty,oneof=dofollow nofollow unknown"`
	Evidence    []Evidence `json:"evidence" validate:"dive"`
}

// BacklinkAnalysis summarizes referring domains.
type BacklinkAnalysis struct {
	TotalBacklinks   int              `json:"total_backlinks" validate:"gte=0"`
	ReferringDomains int              `json:"referring_domains" validate:"gte=0"`
	BacklinkSources  []BacklinkSource `json:"backlink_sources" validate:"dive"`
}

// Recommendation is one actionable improvement suggestion.
type Recommendation struct {
	Category            string     `json:"category" validate:"required,oneof=content social_media community_building brand_development competitor_analysis educational_content"`
	Priority            string     `json:"priority" validate:"required,oneof=high medium low"`
	Title               string     `json:"title" validate:"required"`
	Description         string     `json:"description" validate:"required"`
	ExpectedImpact      string     `json:"expected_impact" validate:"required,oneof=high medium low"`
	EffortRequired      string     `json:"effort_required" validate:"required,oneof=high medium low"`
	Evidence            []Evidence `json:"evidence" validate:"dive"`
	ImplementationSteps []string   `json:"implementation_steps"`
	DataDrivenInsights  []string   `json:"data_driven_insights,omitempty"`
	SpecificQuotes      []string   `json:"specific_quotes,omitempty"`
}

// ReportSummary is the optional executive summary.
type ReportSummary struct {
	OverallScore          *float64 `json:"overall_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	KeyStrengths          []string `json:"key_strengths,omitempty"`
	CriticalIssues        []string `json:"critical_issues,omitempty"`
	QuickWins             []string `json:"quick_wins,omitempty"`
	LongTermOpportunities []string `json:"long_term_opportunities,omitempty"`
}

var reportValidator = validator.New()

// Validate checks the report against the fixed schema contract. Returns a
// SchemaValidationError describing every violated constraint.
func (r *SEOReport) Validate() error {
	if err := reportValidator.Struct(r); err != nil {
		return NewSchemaValidationError("seo report", err)
	}
	return nil
}

// ParseSEOReport decodes and validates an LLM response body.
func ParseSEOReport(data []byte) (*SEOReport, error) {
	var report SEOReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, NewSchemaValidationError("seo report", err)
	}
	if err := report.Validate(); err != nil {
		return nil, err
	}
	return &report, nil
}
