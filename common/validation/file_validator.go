package validation

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/docuforge/docuforge/common/cryptox"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

// Options bound what a candidate file is allowed to be.
type Options struct {
	MaxSize            int64
	MinSize            int64
	AcceptedTypes      []string
	AcceptedExtensions []string
}

// DefaultOptions accepts PDFs up to 100 MB.
func DefaultOptions() Options {
	return Options{
		MaxSize:            100 * 1024 * 1024,
		MinSize:            1,
		AcceptedTypes:      []string{"application/pdf"},
		AcceptedExtensions: []string{".pdf"},
	}
}

// FileInfo is what the validator learned about the file.
type FileInfo struct {
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	MimeType      string `json:"mimeType"`
	Extension     string `json:"extension"`
	PDFVersion    string `json:"pdfVersion,omitempty"`
	Encrypted     bool   `json:"encrypted,omitempty"`
	HasForms      bool   `json:"hasForms,omitempty"`
	HasJavaScript bool   `json:"hasJavaScript,omitempty"`
}

// Result is the validator verdict: valid iff no errors accumulated.
type Result struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	FileInfo FileInfo `json:"fileInfo"`
}

// FileValidator runs the layered checks over a candidate file.
type FileValidator struct {
	crypto *cryptox.Provider
	log    *logger.Logger
}

// NewFileValidator creates a validator.
func NewFileValidator(crypto *cryptox.Provider, log *logger.Logger) *FileValidator {
	return &FileValidator{crypto: crypto, log: log}
}

const maxNameLength = 255

var executableExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true, ".scr": true,
	".pif": true, ".msi": true, ".dll": true, ".vbs": true, ".js": true,
	".jar": true, ".sh": true, ".ps1": true,
}

var unsafeNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\x00`),
	regexp.MustCompile(`[\x01-\x1f]`),
	regexp.MustCompile(`\.\.`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:`),
	regexp.MustCompile(`(?i)vbscript:`),
}

var pdfVersionPattern = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

// Validate runs every check in order; the file is valid when no check
// appended an error. Warnings never fail a file.
func (v *FileValidator) Validate(name string, mimeType string, data []byte, opts Options) Result {
	res := Result{
		Errors:   []string{},
		Warnings: []string{},
		FileInfo: FileInfo{
			Name:      name,
			Size:      int64(len(data)),
			MimeType:  mimeType,
			Extension: strings.ToLower(filepath.Ext(name)),
		},
	}

	v.checkName(name, &res)
	v.checkSize(int64(len(data)), opts, &res)
	v.checkMimeType(mimeType, opts, &res)
	v.checkExtension(name, opts, &res)
	v.checkMagicBytes(mimeType, data, &res)
	v.checkNameSafety(name, &res)
	v.checkExecutableDisguise(name, &res)
	v.checkExecutableSignatures(data, &res)
	v.inspectPDFHeader(mimeType, data, &res)

	res.IsValid = len(res.Errors) == 0

	if !res.IsValid {
		v.log.Warn("file rejected by validator", "name", name, "errors", len(res.Errors))
	}

	return res
}

func (v *FileValidator) checkName(name string, res *Result) {
	if strings.TrimSpace(name) == "" {
		res.Errors = append(res.Errors, "file name is required")
		return
	}
	if len(name) > maxNameLength {
		res.Errors = append(res.Errors, fmt.Sprintf("file name exceeds %d characters", maxNameLength))
	}
}

func (v *FileValidator) checkSize(size int64, opts Options, res *Result) {
	if size == 0 {
		res.Errors = append(res.Errors, "file is empty")
		return
	}
	if opts.MinSize > 0 && size < opts.MinSize {
		res.Errors = append(res.Errors, fmt.Sprintf("file is smaller than the %d byte minimum", opts.MinSize))
	}
	if opts.MaxSize > 0 && size > opts.MaxSize {
		res.Errors = append(res.Errors, fmt.Sprintf("file exceeds the %d byte maximum", opts.MaxSize))
	}
}

func (v *FileValidator) checkMimeType(mimeType string, opts Options, res *Result) {
	if mimeType == "" {
		res.Warnings = append(res.Warnings, "file has no declared content type")
		return
	}
	if len(opts.AcceptedTypes) == 0 {
		return
	}
	for _, accepted := range opts.AcceptedTypes {
		if strings.EqualFold(mimeType, accepted) {
			return
		}
	}
	res.Errors = append(res.Errors, fmt.Sprintf("content type %q is not accepted", mimeType))
}

func (v *FileValidator) checkExtension(name string, opts Options, res *Result) {
	ext := strings.ToLower(filepath.Ext(name))
	if strings.Count(name, ".") > 1 {
		res.Warnings = append(res.Warnings, "file name contains multiple dots")
	}
	if len(opts.AcceptedExtensions) == 0 {
		return
	}
	for _, accepted := range opts.AcceptedExtensions {
		if ext == strings.ToLower(accepted) {
			return
		}
	}
	res.Errors = append(res.Errors, fmt.Sprintf("extension %q is not accepted", ext))
}

// checkMagicBytes validates the first bytes of the payload against the
// declared type. A PDF mismatch is a hard error; image mismatches only warn.
func (v *FileValidator) checkMagicBytes(mimeType string, data []byte, res *Result) {
	head := data
	if len(head) > 16 {
		head = head[:16]
	}

	switch {
	case strings.EqualFold(mimeType, "application/pdf"):
		if !v.crypto.VerifyMagic(head, cryptox.MagicPDF) {
			res.Errors = append(res.Errors, "file does not start with a PDF signature")
		}
	case strings.EqualFold(mimeType, "image/png"):
		if !v.crypto.VerifyMagic(head, cryptox.MagicPNG) {
			res.Warnings = append(res.Warnings, "declared PNG does not match its signature")
		}
	case strings.EqualFold(mimeType, "image/jpeg"):
		if !v.crypto.VerifyMagic(head, cryptox.MagicJPEG) {
			res.Warnings = append(res.Warnings, "declared JPEG does not match its signature")
		}
	}
}

func (v *FileValidator) checkNameSafety(name string, res *Result) {
	for _, pattern := range unsafeNamePatterns {
		if pattern.MatchString(name) {
			res.Errors = append(res.Errors, "file name contains unsafe characters or patterns")
			return
		}
	}
}

func (v *FileValidator) checkExecutableDisguise(name string, res *Result) {
	lower := strings.ToLower(name)
	for ext := range executableExtensions {
		if strings.HasSuffix(lower, ext) {
			res.Errors = append(res.Errors, fmt.Sprintf("executable extension %q is not allowed", ext))
			return
		}
	}
}

// checkExecutableSignatures scans the first 1 KB for PE, ELF and Mach-O
// signatures. A hit is a warning; the magic-byte check already gates hard.
func (v *FileValidator) checkExecutableSignatures(data []byte, res *Result) {
	window := data
	if len(window) > 1024 {
		window = window[:1024]
	}

	signatures := [][]byte{
		{0x4D, 0x5A},             // PE
		{0x7F, 0x45, 0x4C, 0x46}, // ELF
		{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O 32
		{0xFE, 0xED, 0xFA, 0xCF}, // Mach-O 64
		{0xCF, 0xFA, 0xED, 0xFE}, // Mach-O little-endian
	}

	for _, sig := range signatures {
		if bytes.Contains(window, sig) {
			res.Warnings = append(res.Warnings, "file contains executable code signatures")
			return
		}
	}
}

// inspectPDFHeader reads the first 1 KB as text and records PDF version
// and feature flags. Everything here is a warning, never an error.
func (v *FileValidator) inspectPDFHeader(mimeType string, data []byte, res *Result) {
	if !strings.EqualFold(mimeType, "application/pdf") {
		return
	}

	window := data
	if len(window) > 1024 {
		window = window[:1024]
	}
	text := string(window)

	if match := pdfVersionPattern.FindStringSubmatch(text); match != nil {
		res.FileInfo.PDFVersion = match[1]
		if match[1] < "1.3" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("PDF version %s is older than 1.3", match[1]))
		}
		if match[1] > "2.0" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("PDF version %s is newer than 2.0", match[1]))
		}
	}

	if strings.Contains(text, "/Encrypt") {
		res.FileInfo.Encrypted = true
		res.Warnings = append(res.Warnings, "PDF is encrypted")
	}
	if strings.Contains(text, "/AcroForm") || strings.Contains(text, "/XFA") {
		res.FileInfo.HasForms = true
		res.Warnings = append(res.Warnings, "PDF contains interactive forms")
	}
	if strings.Contains(text, "/JavaScript") || strings.Contains(text, "/JS") {
		res.FileInfo.HasJavaScript = true
		res.Warnings = append(res.Warnings, "PDF contains embedded JavaScript")
	}
}

// ValidateBlob is a convenience wrapper over Validate for stored blobs.
func (v *FileValidator) ValidateBlob(name string, blob models.Blob, opts Options) Result {
	return v.Validate(name, blob.MimeType, blob.Data, opts)
}
