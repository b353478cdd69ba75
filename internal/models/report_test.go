package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalReport() *SEOReport {
	return &SEOReport{
		Meta: &ReportMeta{
			EntityName:       "Jane Doe",
			EntityType:       "person",
			AnalysisDate:     "2025-05-01",
			DataSourcesCount: 2,
			ConfidenceScore:  0.7,
		},
		Inventory: &Inventory{
			TotalSources:  2,
			UniqueDomains: []string{"example.com", "other.com"},
		},
		ContentAnalysis: &ContentAnalysis{
			Sentiment: &Sentiment{Overall: "neutral"},
		},
		Keywords:         &Keywords{},
		SocialPresence:   &SocialPresence{},
		BacklinkAnalysis: &BacklinkAnalysis{},
	}
}

func TestSEOReport_Validate_Minimal(t *testing.T) {
	assert.NoError(t, minimalReport().Validate())
}

func TestSEOReport_Validate_MissingSections(t *testing.T) {
	report := minimalReport()
	report.Meta = nil
	err := report.Validate()
	require.Error(t, err)
	assert.True(t, IsSchemaValidationError(err))

	report = minimalReport()
	report.Inventory = nil
	assert.Error(t, report.Validate())

	report = minimalReport()
	report.ContentAnalysis.Sentiment = nil
	assert.Error(t, report.Validate())
}

func TestSEOReport_Validate_Bounds(t *testing.T) {
	report := minimalReport()
	report.Meta.ConfidenceScore = 1.5
	assert.Error(t, report.Validate())

	report = minimalReport()
	report.Meta.EntityType = "charity"
	assert.Error(t, report.Validate())

	report = minimalReport()
	report.ContentAnalysis.Sentiment.Overall = "ecstatic"
	assert.Error(t, report.Validate())
}

func TestSEOReport_Validate_ListCaps(t *testing.T) {
	report := minimalReport()
	for i := 0; i < 26; i++ {
		report.Keywords.ContentKeywords = append(report.Keywords.ContentKeywords, ContentKeyword{Keyword: "kw"})
	}
	assert.Error(t, report.Validate())

	report = minimalReport()
	for i := 0; i < 16; i++ {
		report.Competitors = append(report.Competitors, Competitor{
			Domain:       "rival.com",
			Relationship: "competitor",
		})
	}
	assert.Error(t, report.Validate())

	report = minimalReport()
	theme := KeywordTheme{Theme: "topic"}
	for i := 0; i < 9; i++ {
		theme.Keywords = append(theme.Keywords, "kw")
	}
	report.Keywords.KeywordThemes = []KeywordTheme{theme}
	assert.Error(t, report.Validate())
}

func TestParseSEOReport(t *testing.T) {
	body := `{
		"meta": {
			"entity_name": "Acme",
			"entity_type": "business",
			"analysis_date": "2025-05-01",
			"data_sources_count": 1,
			"confidence_score": 0.8
		},
		"inventory": {"total_sources": 1, "unique_domains": ["acme.com"]},
		"content_analysis": {"content_themes": [], "sentiment": {"overall": "positive"}},
		"keywords": {"content_keywords": [], "keyword_themes": []},
		"social_presence": {"platforms": []},
		"backlink_analysis": {"total_backlinks": 0, "referring_domains": 0, "backlink_sources": []}
	}`

	report, err := ParseSEOReport([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "Acme", report.Meta.EntityName)

	_, err = ParseSEOReport([]byte("not json"))
	require.Error(t, err)
	assert.True(t, IsSchemaValidationError(err))

	_, err = ParseSEOReport([]byte(`{"meta": null}`))
	require.Error(t, err)
	assert.True(t, IsSchemaValidationError(err))
}
