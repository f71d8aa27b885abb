package service

import (
	"bytes"
	"fmt"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"

	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

// Analyzer derives structure, document type and compression potential from
// a PDF blob. A structured walk through the PDF reader is attempted first;
// malformed documents fall back to a byte-scan heuristic.
type Analyzer struct {
	log *logger.Logger
}

// NewAnalyzer creates the analyzer.
func NewAnalyzer(log *logger.Logger) *Analyzer {
	return &Analyzer{log: log.WithService("PDFAnalyzer")}
}

// Analyze inspects a blob and returns its analysis. It never fails hard:
// a document that cannot be parsed is classified as unknown.
func (a *Analyzer) Analyze(blob models.Blob) *models.Analysis {
	analysis := &models.Analysis{
		FileSize:     blob.Size(),
		DocumentType: models.DocUnknown,
		TextDensity:  "unknown",
		ColorProfile: "unknown",
	}

	if parsed := a.parse(blob.Data); parsed != nil {
		analysis.PageCount = parsed.pageCount
		analysis.ImageCount = parsed.imageCount
		analysis.FontCount = parsed.fontCount
		analysis.Metadata = parsed.metadata
	} else {
		a.scanHeuristics(blob.Data, analysis)
	}

	a.scanColorProfile(blob.Data, analysis)
	a.classify(blob.Data, analysis)
	a.deriveDensity(analysis)
	a.derivePotential(analysis)

	return analysis
}

type parsedPDF struct {
	pageCount  int
	imageCount int
	fontCount  int
	metadata   map[string]string
}

// parse walks the document through the PDF reader. The reader panics on
// malformed structures, so the walk runs under recover.
func (a *Analyzer) parse(data []byte) (result *parsedPDF) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Debug("pdf walk failed", "panic", fmt.Sprint(r))
			result = nil
		}
	}()

	reader, err := pdf.NewReader(filebuffer.New(data), int64(len(data)))
	if err != nil {
		a.log.Debug("pdf reader rejected document", "error", err)
		return nil
	}

	parsed := &parsedPDF{
		pageCount: reader.NumPage(),
		metadata:  map[string]string{},
	}

	info := reader.Trailer().Key("Info")
	if info.Kind() == pdf.Dict {
		for _, key := range []string{"Title", "Author", "Subject", "Creator", "Producer"} {
			if v := info.Key(key); v.Kind() == pdf.String {
				parsed.metadata[key] = v.RawString()
			}
		}
	}

	fonts := map[string]bool{}
	for i := 1; i <= parsed.pageCount; i++ {
		resources := reader.Page(i).V.Key("Resources")
		if resources.Kind() != pdf.Dict {
			continue
		}

		xobjects := resources.Key("XObject")
		if xobjects.Kind() == pdf.Dict {
			for _, name := range xobjects.Keys() {
				if xobjects.Key(name).Key("Subtype").Name() == "Image" {
					parsed.imageCount++
				}
			}
		}

		pageFonts := resources.Key("Font")
		if pageFonts.Kind() == pdf.Dict {
			for _, name := range pageFonts.Keys() {
				base := pageFonts.Key(name).Key("BaseFont").Name()
				if base == "" {
					base = name
				}
				fonts[base] = true
			}
		}
	}
	parsed.fontCount = len(fonts)

	return parsed
}

// scanHeuristics estimates structure by counting marker occurrences.
func (a *Analyzer) scanHeuristics(data []byte, analysis *models.Analysis) {
	analysis.PageCount = bytes.Count(data, []byte("/Type /Page")) + bytes.Count(data, []byte("/Type/Page"))
	// The count above also matches /Type /Pages nodes; subtract them.
	analysis.PageCount -= bytes.Count(data, []byte("/Type /Pages")) + bytes.Count(data, []byte("/Type/Pages"))
	if analysis.PageCount < 0 {
		analysis.PageCount = 0
	}
	analysis.ImageCount = bytes.Count(data, []byte("/Subtype /Image")) + bytes.Count(data, []byte("/Subtype/Image"))
	analysis.FontCount = bytes.Count(data, []byte("/BaseFont"))
}

func (a *Analyzer) scanColorProfile(data []byte, analysis *models.Analysis) {
	switch {
	case bytes.Contains(data, []byte("/DeviceCMYK")):
		analysis.ColorProfile = "cmyk"
	case bytes.Contains(data, []byte("/DeviceRGB")):
		analysis.ColorProfile = "rgb"
	}
}

func (a *Analyzer) classify(data []byte, analysis *models.Analysis) {
	hasForms := bytes.Contains(data, []byte("/AcroForm")) || bytes.Contains(data, []byte("/XFA"))

	switch {
	case analysis.PageCount == 0:
		analysis.DocumentType = models.DocUnknown
	case hasForms:
		analysis.DocumentType = models.DocFormDocument
	case analysis.PageCount == 1 && analysis.ImageCount > 0 && analysis.FontCount == 0:
		analysis.DocumentType = models.DocSingleImage
	case analysis.PageCount == 1:
		analysis.DocumentType = models.DocSinglePageDocument
	case analysis.PageCount > 20:
		analysis.DocumentType = models.DocLongDocument
	case analysis.ImageCount > 5 && analysis.ImageCount > analysis.FontCount*2:
		analysis.DocumentType = models.DocImageHeavy
	case analysis.FontCount > 0 && analysis.ImageCount == 0:
		analysis.DocumentType = models.DocTextHeavy
	case analysis.FontCount > 0 && analysis.ImageCount > 0:
		analysis.DocumentType = models.DocMixedContent
	default:
		analysis.DocumentType = models.DocGeneralDocument
	}
}

func (a *Analyzer) deriveDensity(analysis *models.Analysis) {
	if analysis.PageCount == 0 {
		return
	}
	perPage := float64(analysis.FontCount) / float64(analysis.PageCount)
	switch {
	case analysis.FontCount == 0:
		analysis.TextDensity = "low"
	case perPage < 1:
		analysis.TextDensity = "medium"
	default:
		analysis.TextDensity = "high"
	}
}

func (a *Analyzer) derivePotential(analysis *models.Analysis) {
	potential := 0.3
	if analysis.ImageCount > 0 {
		potential += 0.3
	}
	if analysis.PageCount > 0 && analysis.ImageCount > analysis.PageCount {
		potential += 0.2
	}
	if analysis.FileSize > 5*1024*1024 {
		potential += 0.1
	}
	if potential > 0.95 {
		potential = 0.95
	}
	analysis.CompressionPotential = potential
}

// Compression level ordering used when merging overrides: a later rule may
// raise a level but never lower it.
var levelRank = map[string]int{"low": 0, "medium": 1, "high": 2, "maximum": 3}

// RecommendedSettings maps an analysis to compression settings.
func (a *Analyzer) RecommendedSettings(analysis *models.Analysis) models.RecommendedSettings {
	var rec models.RecommendedSettings

	switch {
	case analysis.CompressionPotential > 0.8:
		rec = models.RecommendedSettings{CompressionLevel: "high", ImageQuality: 70, OptimizationStrategy: "aggressive"}
	case analysis.CompressionPotential > 0.6:
		rec = models.RecommendedSettings{CompressionLevel: "medium", ImageQuality: 80, OptimizationStrategy: "balanced"}
	default:
		rec = models.RecommendedSettings{CompressionLevel: "low", ImageQuality: 90, OptimizationStrategy: "conservative"}
	}

	switch analysis.DocumentType {
	case models.DocImageHeavy:
		rec.ImageQuality = 75
		rec.OptimizationStrategy = "image_optimized"
	case models.DocTextHeavy:
		rec.CompressionLevel = "high"
		rec.ImageQuality = 90
		rec.OptimizationStrategy = "text_optimized"
	case models.DocLongDocument:
		rec.OptimizationStrategy = "batch_optimized"
	}

	switch {
	case analysis.FileSize > 10*1024*1024:
		if levelRank["high"] > levelRank[rec.CompressionLevel] {
			rec.CompressionLevel = "high"
		}
		rec.TargetSize = "50%"
	case analysis.FileSize > 5*1024*1024:
		if levelRank["medium"] > levelRank[rec.CompressionLevel] {
			rec.CompressionLevel = "medium"
		}
		rec.TargetSize = "70%"
	}

	return rec
}
