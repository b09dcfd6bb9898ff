package validator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// Error codes reported in ValidationError.Code.
const (
	CodeEmpty           = "EMPTY_FILE"
	CodeTooLarge        = "FILE_TOO_LARGE"
	CodeInvalidType     = "INVALID_FILE_TYPE"
	CodeInvalidMimeType = "INVALID_MIME_TYPE"
	CodeInvalidPDF      = "INVALID_PDF"
)

// DocumentValidator applies the accept policy to files before they are
// handed to the pipeline.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64               // bytes
	AllowedTypes map[string][]string // extension -> accepted MIME types
	MaxPageCount int                 // 0 means unlimited
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// Message joins the error messages into one line.
func (r *ValidationResult) Message() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
	PageCount int    `json:"pageCount,omitempty"`
}

func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 50 * 1024 * 1024,
		AllowedTypes: map[string][]string{
			".pdf": {"application/pdf"},
		},
	}
}

// ConfigFor builds a config accepting the given extensions. Extensions
// without a known MIME type are matched on extension alone.
func ConfigFor(maxFileSize int64, extensions []string) *ValidatorConfig {
	cfg := &ValidatorConfig{
		MaxFileSize:  maxFileSize,
		AllowedTypes: make(map[string][]string, len(extensions)),
	}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		var mimes []string
		if m := mimeForExtension(ext); m != "" {
			mimes = []string{m}
		}
		cfg.AllowedTypes[ext] = mimes
	}
	return cfg
}

func mimeForExtension(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".txt":
		return "text/plain"
	}
	return ""
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// Accept is the extension list for file pickers, e.g. ".pdf".
func (v *DocumentValidator) Accept() string {
	exts := make([]string, 0, len(v.config.AllowedTypes))
	for ext := range v.config.AllowedTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ",")
}

// ValidateFile reads the file once and checks it against the policy. A
// non-nil error means the file could not be inspected at all.
func (v *DocumentValidator) ValidateFile(ctx context.Context, file models.File) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  file.Name,
			Size:      file.Size,
			Extension: strings.ToLower(filepath.Ext(file.Name)),
		},
	}

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		// no point reading a file we will reject anyway
		result.IsValid = false
		result.Errors = errs
		return result, nil
	}

	rc, err := file.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if v.config.MaxFileSize > 0 {
		r = io.LimitReader(rc, v.config.MaxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	result.FileInfo.Size = int64(len(data))
	result.FileInfo.Hash = calculateHash(data)

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = errs
		return result, nil
	}

	result.FileInfo.MimeType = mimetype.Detect(data).String()
	if errs := v.validateMimeType(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
	}

	if result.IsValid && result.FileInfo.Extension == ".pdf" {
		pages, errs := v.validatePDF(data)
		result.FileInfo.PageCount = pages
		if len(errs) > 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, errs...)
		}
	}

	if !result.IsValid {
		v.logger.Info("File rejected",
			logger.String("filename", file.Name),
			logger.String("reason", result.Message()),
		)
	}
	return result, nil
}

// ValidateFiles checks files concurrently; results keep the input order.
func (v *DocumentValidator) ValidateFiles(ctx context.Context, files []models.File) ([]*ValidationResult, error) {
	results := make([]*ValidationResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, file := range files {
		g.Go(func() error {
			result, err := v.ValidateFile(ctx, file)
			if err != nil {
				return fmt.Errorf("%s: %w", file.Name, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Rejected is a file that failed the policy and why.
type Rejected struct {
	File   models.File
	Reason string
}

// Partition splits files into accepted and rejected ones, keeping input
// order. Files that cannot be read are rejected too.
func (v *DocumentValidator) Partition(ctx context.Context, files []models.File) ([]models.File, []Rejected) {
	accepted := make([]models.File, 0, len(files))
	var rejected []Rejected

	for _, file := range files {
		result, err := v.ValidateFile(ctx, file)
		switch {
		case err != nil:
			rejected = append(rejected, Rejected{File: file, Reason: fmt.Sprintf("Could not read %s", file.Name)})
		case !result.IsValid:
			rejected = append(rejected, Rejected{File: file, Reason: result.Message()})
		default:
			accepted = append(accepted, file)
		}
	}
	return accepted, rejected
}

func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errs []ValidationError

	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    CodeInvalidType,
			Message: fmt.Sprintf("Invalid file type: only %s files are accepted", v.describeTypes()),
			Field:   "extension",
		})
	}

	if v.config.MaxFileSize > 0 && info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    CodeTooLarge,
			Message: fmt.Sprintf("File too large: maximum size is %d MB", v.config.MaxFileSize/(1024*1024)),
			Field:   "size",
		})
	}

	// size is only trusted once the bytes were read
	if info.Hash != "" && info.Size == 0 {
		errs = append(errs, ValidationError{
			Code:    CodeEmpty,
			Message: "Empty file: uploaded file contains no data",
			Field:   "size",
		})
	}

	return errs
}

func (v *DocumentValidator) describeTypes() string {
	names := make([]string, 0, len(v.config.AllowedTypes))
	for ext := range v.config.AllowedTypes {
		names = append(names, strings.ToUpper(strings.TrimPrefix(ext, ".")))
	}
	if len(names) == 0 {
		return "no"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (v *DocumentValidator) validateMimeType(info FileInfo) []ValidationError {
	allowed := v.config.AllowedTypes[info.Extension]
	if len(allowed) == 0 {
		return nil
	}

	for _, mime := range allowed {
		if mimetype.EqualsAny(info.MimeType, mime) {
			return nil
		}
	}

	return []ValidationError{{
		Code:    CodeInvalidMimeType,
		Message: fmt.Sprintf("Invalid file type: %s content does not match %s", info.MimeType, info.Extension),
		Field:   "mimeType",
	}}
}

func (v *DocumentValidator) validatePDF(data []byte) (pages int, errs []ValidationError) {
	invalid := func(msg string) []ValidationError {
		return []ValidationError{{
			Code:    CodeInvalidPDF,
			Message: "Invalid PDF file: " + msg,
		}}
	}

	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			v.logger.Debug("PDF parser panicked", logger.Any("panic", r))
			pages, errs = 0, invalid("Invalid or corrupted PDF file")
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return 0, invalid("Password-protected PDFs are not supported")
		}
		return 0, invalid("Invalid or corrupted PDF file")
	}

	pages = reader.NumPage()
	if pages == 0 {
		return 0, invalid("PDF file contains no pages")
	}
	if v.config.MaxPageCount > 0 && pages > v.config.MaxPageCount {
		return pages, invalid(fmt.Sprintf("PDF has %d pages, maximum is %d", pages, v.config.MaxPageCount))
	}
	return pages, nil
}

func calculateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
