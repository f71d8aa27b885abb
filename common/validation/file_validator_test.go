package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/common/cryptox"
	"github.com/docuforge/docuforge/common/logger"
)

func newTestValidator() *FileValidator {
	return NewFileValidator(cryptox.NewProvider(), logger.Discard())
}

func pdfBytes(version string, extra string) []byte {
	return []byte("%PDF-" + version + "\n" + extra)
}

func TestValidateCleanPDF(t *testing.T) {
	v := newTestValidator()

	res := v.Validate("report.pdf", "application/pdf", pdfBytes("1.7", "1 0 obj"), DefaultOptions())

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "1.7", res.FileInfo.PDFVersion)
	assert.Equal(t, ".pdf", res.FileInfo.Extension)
}

func TestValidateRejections(t *testing.T) {
	v := newTestValidator()
	opts := DefaultOptions()

	tests := []struct {
		name     string
		fileName string
		mimeType string
		data     []byte
		errPart  string
	}{
		{"empty name", "  ", "application/pdf", pdfBytes("1.7", ""), "name is required"},
		{"long name", strings.Repeat("a", 256) + ".pdf", "application/pdf", pdfBytes("1.7", ""), "255 characters"},
		{"empty file", "a.pdf", "application/pdf", nil, "file is empty"},
		{"wrong mime", "a.pdf", "text/html", []byte("<html>"), "not accepted"},
		{"wrong extension", "a.txt", "application/pdf", pdfBytes("1.7", ""), `".txt" is not accepted`},
		{"fake pdf", "a.pdf", "application/pdf", []byte("MZ not a pdf"), "PDF signature"},
		{"path traversal", "../../etc/passwd.pdf", "application/pdf", pdfBytes("1.7", ""), "unsafe characters"},
		{"script tag", "<script>alert(1).pdf", "application/pdf", pdfBytes("1.7", ""), "unsafe characters"},
		{"executable disguise", "invoice.pdf.exe", "application/pdf", pdfBytes("1.7", ""), "executable extension"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(tc.fileName, tc.mimeType, tc.data, opts)
			require.False(t, res.IsValid)
			joined := strings.Join(res.Errors, "; ")
			assert.Contains(t, joined, tc.errPart)
		})
	}
}

func TestValidateOversizedFile(t *testing.T) {
	v := newTestValidator()
	opts := DefaultOptions()
	opts.MaxSize = 64

	data := append(pdfBytes("1.7", ""), make([]byte, 128)...)
	res := v.Validate("big.pdf", "application/pdf", data, opts)

	require.False(t, res.IsValid)
	assert.Contains(t, strings.Join(res.Errors, "; "), "64 byte maximum")
}

func TestValidateWarningsNeverFail(t *testing.T) {
	v := newTestValidator()
	opts := DefaultOptions()

	tests := []struct {
		name     string
		fileName string
		mimeType string
		data     []byte
		warnPart string
	}{
		{"no mime type", "a.pdf", "", pdfBytes("1.7", ""), "no declared content type"},
		{"multiple dots", "report.v2.pdf", "application/pdf", pdfBytes("1.7", ""), "multiple dots"},
		{"old pdf version", "a.pdf", "application/pdf", pdfBytes("1.2", ""), "older than 1.3"},
		{"encrypted pdf", "a.pdf", "application/pdf", pdfBytes("1.7", "/Encrypt 40"), "encrypted"},
		{"forms", "a.pdf", "application/pdf", pdfBytes("1.7", "/AcroForm <<>>"), "interactive forms"},
		{"javascript", "a.pdf", "application/pdf", pdfBytes("1.7", "/JavaScript (x)"), "JavaScript"},
		{"embedded exe signature", "a.pdf", "application/pdf", append(pdfBytes("1.7", ""), 0x7F, 0x45, 0x4C, 0x46), "executable code"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(tc.fileName, tc.mimeType, tc.data, opts)
			if tc.mimeType != "" {
				assert.True(t, res.IsValid, "warnings must not fail the file: %v", res.Errors)
			}
			assert.Contains(t, strings.Join(res.Warnings, "; "), tc.warnPart)
		})
	}
}

func TestValidateFileInfoFlags(t *testing.T) {
	v := newTestValidator()

	res := v.Validate("form.pdf", "application/pdf",
		pdfBytes("1.7", "/Encrypt /AcroForm /JavaScript"), DefaultOptions())

	assert.True(t, res.FileInfo.Encrypted)
	assert.True(t, res.FileInfo.HasForms)
	assert.True(t, res.FileInfo.HasJavaScript)
	assert.Equal(t, "1.7", res.FileInfo.PDFVersion)
}

func TestValidateImageMismatchWarns(t *testing.T) {
	v := newTestValidator()
	opts := Options{
		MaxSize:            1 << 20,
		MinSize:            1,
		AcceptedTypes:      []string{"image/png"},
		AcceptedExtensions: []string{".png"},
	}

	res := v.Validate("pic.png", "image/png", []byte("not a png"), opts)

	assert.True(t, res.IsValid, "image signature mismatch is a warning, not an error")
	assert.Contains(t, strings.Join(res.Warnings, "; "), "PNG")
}
