package validator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/testutil"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

func memFile(name string, data []byte) models.File {
	return models.File{
		Name: name,
		Size: int64(len(data)),
		Opener: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func TestValidateFile(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		file    models.File
		valid   bool
		code    string
		message string
		pages   int
	}{
		{
			name:  "valid pdf",
			file:  memFile("report.pdf", testutil.MinimalPDF(2)),
			valid: true,
			pages: 2,
		},
		{
			name:  "upper case extension",
			file:  memFile("REPORT.PDF", testutil.MinimalPDF(1)),
			valid: true,
			pages: 1,
		},
		{
			name:    "wrong extension",
			file:    memFile("notes.txt", []byte("hello")),
			code:    CodeInvalidType,
			message: "Invalid file type: only PDF files are accepted",
		},
		{
			name:    "empty",
			file:    memFile("empty.pdf", nil),
			code:    CodeEmpty,
			message: "Empty file: uploaded file contains no data",
		},
		{
			name: "not really a pdf",
			file: memFile("fake.pdf", []byte("just some text pretending")),
			code: CodeInvalidMimeType,
		},
		{
			name:    "corrupted pdf",
			file:    memFile("broken.pdf", []byte("%PDF-1.4\nthis is not a pdf body\n%%EOF\n")),
			code:    CodeInvalidPDF,
			message: "Invalid PDF file: Invalid or corrupted PDF file",
		},
		{
			name:    "no pages",
			file:    memFile("blank.pdf", testutil.MinimalPDF(0)),
			code:    CodeInvalidPDF,
			message: "Invalid PDF file: PDF file contains no pages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.ValidateFile(ctx, tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.IsValid)
			if tt.valid {
				assert.Empty(t, result.Errors)
				assert.Equal(t, "application/pdf", result.FileInfo.MimeType)
				assert.Equal(t, tt.pages, result.FileInfo.PageCount)
				assert.Len(t, result.FileInfo.Hash, 64)
				return
			}
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.code, result.Errors[0].Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, result.Errors[0].Message)
			}
		})
	}
}

func TestValidateFileTooLarge(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), &ValidatorConfig{
		MaxFileSize:  1024 * 1024,
		AllowedTypes: map[string][]string{".pdf": {"application/pdf"}},
	})

	declared := memFile("big.pdf", nil)
	declared.Size = 2 * 1024 * 1024
	result, err := v.ValidateFile(context.Background(), declared)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, CodeTooLarge, result.Errors[0].Code)
	assert.Equal(t, "File too large: maximum size is 1 MB", result.Errors[0].Message)

	// size unknown up front, discovered while reading
	undeclared := memFile("big.pdf", bytes.Repeat([]byte("x"), 1024*1024+10))
	undeclared.Size = 0
	result, err = v.ValidateFile(context.Background(), undeclared)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, CodeTooLarge, result.Errors[0].Code)
}

func TestValidateFileOpenError(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil)
	file := models.File{
		Name: "gone.pdf",
		Size: 10,
		Opener: func(context.Context) (io.ReadCloser, error) {
			return nil, errors.New("no such file")
		},
	}

	_, err := v.ValidateFile(context.Background(), file)
	assert.ErrorContains(t, err, "no such file")
}

func TestValidateFilesKeepsOrder(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil)
	files := []models.File{
		memFile("a.pdf", testutil.MinimalPDF(1)),
		memFile("b.txt", []byte("b")),
		memFile("c.pdf", testutil.MinimalPDF(3)),
	}

	results, err := v.ValidateFiles(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].IsValid)
	assert.False(t, results[1].IsValid)
	assert.Equal(t, 3, results[2].FileInfo.PageCount)
}

func TestPartition(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil)
	files := []models.File{
		memFile("a.pdf", testutil.MinimalPDF(1)),
		memFile("b.txt", []byte("b")),
		{Name: "c.pdf", Size: 3},
	}

	accepted, rejected := v.Partition(context.Background(), files)

	require.Len(t, accepted, 1)
	assert.Equal(t, "a.pdf", accepted[0].Name)
	require.Len(t, rejected, 2)
	assert.Equal(t, "b.txt", rejected[0].File.Name)
	assert.Equal(t, "Invalid file type: only PDF files are accepted", rejected[0].Reason)
	assert.Equal(t, "c.pdf", rejected[1].File.Name)
	assert.Equal(t, "Could not read c.pdf", rejected[1].Reason)
}

func TestConfigFor(t *testing.T) {
	cfg := ConfigFor(10, []string{"PDF", ".png", " ", ".xyz"})

	assert.Equal(t, int64(10), cfg.MaxFileSize)
	assert.Equal(t, []string{"application/pdf"}, cfg.AllowedTypes[".pdf"])
	assert.Equal(t, []string{"image/png"}, cfg.AllowedTypes[".png"])
	assert.Nil(t, cfg.AllowedTypes[".xyz"])
	assert.Len(t, cfg.AllowedTypes, 3)

	v := NewDocumentValidator(logger.NewNop(), cfg)
	assert.Equal(t, ".pdf,.png,.xyz", v.Accept())
}
