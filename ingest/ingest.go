// Package ingest turns user input (uploaded files, drag-and-drop or clipboard
// payloads, typed URLs) into task submissions.
package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/chaos-io/removebg/blob"
)

var (
	ErrInvalidURL      = errors.New("invalid url")
	ErrUnsupportedType = errors.New("unsupported content type")
)

// InvalidURLMessage is shown to the user when a URL is rejected.
const InvalidURLMessage = "Invalid url. Please enter a valid URL"

const (
	KindFile   = "file"
	KindString = "string"

	textPlain = "text/plain"
)

// Submitter is the single submission entry point (store allocate + enqueue).
type Submitter interface {
	Submit(source, name string) int
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Item is one entry of a drag-and-drop or clipboard payload.
type Item struct {
	Kind  string
	Type  string
	File  *File
	Value string
}

type Result struct {
	IDs     []int
	Skipped []string
	// Errors 需要提示给用户的校验错误
	Errors []error
}

type Adapter struct {
	sub    Submitter
	blobs  *blob.Store
	logger *zap.Logger
}

func NewAdapter(sub Submitter, blobs *blob.Store, logger *zap.Logger) *Adapter {
	return &Adapter{sub: sub, blobs: blobs, logger: logger}
}

// FromFiles submits every image file in order; other files are logged and skipped.
func (a *Adapter) FromFiles(files []File) Result {
	var res Result
	for _, f := range files {
		id, err := a.FromFile(f)
		if err != nil {
			res.Skipped = append(res.Skipped, f.Name)
			continue
		}
		res.IDs = append(res.IDs, id)
	}
	return res
}

func (a *Adapter) FromFile(f File) (int, error) {
	if !strings.HasPrefix(f.ContentType, "image/") {
		a.logger.Warn("File type not supported",
			zap.String("type", f.ContentType),
			zap.String("name", f.Name),
		)
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, f.ContentType)
	}

	locator := a.blobs.Put(blob.Object{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	return a.sub.Submit(locator, f.Name), nil
}

// FromDataTransfer handles drag-and-drop and paste payloads. Files go through
// FromFile; only text/plain strings are accepted, as URLs.
func (a *Adapter) FromDataTransfer(items []Item) Result {
	var res Result
	for _, item := range items {
		switch item.Kind {
		case KindFile:
			if item.File == nil {
				a.logger.Warn("Data transfer file item has no file", zap.String("type", item.Type))
				res.Skipped = append(res.Skipped, item.Type)
				continue
			}
			id, err := a.FromFile(*item.File)
			if err != nil {
				res.Skipped = append(res.Skipped, item.File.Name)
				continue
			}
			res.IDs = append(res.IDs, id)

		case KindString:
			if item.Type != textPlain {
				a.logger.Warn("Data transfer item type not supported", zap.String("type", item.Type))
				res.Skipped = append(res.Skipped, item.Type)
				continue
			}
			id, err := a.FromURL(item.Value)
			if err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			res.IDs = append(res.IDs, id)

		default:
			a.logger.Warn("Data transfer item kind not supported", zap.String("kind", item.Kind))
			res.Skipped = append(res.Skipped, item.Kind)
		}
	}
	return res
}

func (a *Adapter) FromURL(raw string) (int, error) {
	normalized, name, err := NormalizeURL(raw)
	if err != nil {
		a.logger.Info("Rejected url", zap.String("input", raw), zap.Error(err))
		return 0, err
	}
	return a.sub.Submit(normalized, name), nil
}

// NormalizeURL trims raw, assumes https:// when no http(s) scheme is given,
// and derives the display name host+path.
func NormalizeURL(raw string) (string, string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", "", ErrInvalidURL
	}

	lower := strings.ToLower(value)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		value = "https://" + value
	}

	u, err := url.Parse(value)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	name := u.Hostname() + u.Path
	if u.Hostname() == "" || name == "" {
		return "", "", ErrInvalidURL
	}
	return u.String(), name, nil
}
