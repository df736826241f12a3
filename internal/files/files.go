package files

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

var (
	ErrNoFiles       = errors.New("no files provided")
	ErrTooManyFiles  = errors.New("too many files")
	ErrFileTooLarge  = errors.New("file too large")
	ErrInvalidName   = errors.New("invalid file name")
	ErrMultipartRead = errors.New("multipart read failed")
)

// Upload is one multipart file read fully into memory.
type Upload struct {
	Name string
	Type string
	Size int64
	Data []byte
}

// Limits bound a single upload request. Zero disables a check.
type Limits struct {
	MaxFiles    int
	MaxFileSize int64
}

// ReadUploads reads the files under field in form order. Parts without a
// usable name are skipped and reported in skipped.
func ReadUploads(form *multipart.Form, field string, lim Limits) (uploads []Upload, skipped int, err error) {
	if form == nil {
		return nil, 0, ErrNoFiles
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, 0, ErrNoFiles
	}
	if lim.MaxFiles > 0 && len(headers) > lim.MaxFiles {
		return nil, 0, fmt.Errorf("%w: maximum %d allowed", ErrTooManyFiles, lim.MaxFiles)
	}

	out := make([]Upload, 0, len(headers))
	for _, fh := range headers {
		name, err := CleanName(fh.Filename)
		if err != nil {
			skipped++
			continue
		}
		if lim.MaxFileSize > 0 && fh.Size > lim.MaxFileSize {
			return nil, skipped, fmt.Errorf("%w: %s exceeds %dMB limit", ErrFileTooLarge, name, lim.MaxFileSize/(1024*1024))
		}
		data, err := readPart(fh, lim.MaxFileSize)
		if err != nil {
			return nil, skipped, err
		}
		out = append(out, Upload{
			Name: name,
			Type: FileType(name),
			Size: int64(len(data)),
			Data: data,
		})
	}
	return out, skipped, nil
}

func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMultipartRead, err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMultipartRead, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %dMB limit", ErrFileTooLarge, fh.Filename, limit/(1024*1024))
	}
	return data, nil
}

// CleanName strips any client-supplied directory from name.
func CleanName(name string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if trimmed == "" {
		return "", ErrInvalidName
	}
	base := filepath.Base(filepath.Clean("/" + trimmed))
	if base == "." || base == "/" || base == ".." {
		return "", ErrInvalidName
	}
	return base, nil
}

// FileType is the text after the last dot, or the whole name without one.
func FileType(name string) string {
	return name[strings.LastIndex(name, ".")+1:]
}
