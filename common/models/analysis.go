package models

// Document type classifications derived by the analyzer.
const (
	DocSingleImage        = "single_image"
	DocSinglePageDocument = "single_page_document"
	DocLongDocument       = "long_document"
	DocFormDocument       = "form_document"
	DocMixedContent       = "mixed_content"
	DocImageHeavy         = "image_heavy"
	DocTextHeavy          = "text_heavy"
	DocGeneralDocument    = "general_document"
	DocUnknown            = "unknown"
)

// Analysis is the analyzer's view of a PDF blob.
type Analysis struct {
	PageCount            int               `json:"pageCount"`
	FileSize             int64             `json:"fileSize"`
	CompressionPotential float64           `json:"compressionPotential"`
	DocumentType         string            `json:"documentType"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	ImageCount           int               `json:"imageCount"`
	FontCount            int               `json:"fontCount"`
	TextDensity          string            `json:"textDensity"`
	ColorProfile         string            `json:"colorProfile"`
}

// RecommendedSettings are compression settings derived from an analysis.
type RecommendedSettings struct {
	CompressionLevel     string `json:"compressionLevel"`
	ImageQuality         int    `json:"imageQuality"`
	TargetSize           string `json:"targetSize,omitempty"`
	OptimizationStrategy string `json:"optimizationStrategy"`
}
