package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"mathchat-backend/model"
)

// loadAndSplit parses the raw payload by file type and splits it into
// chunks. PDF pages keep their page number in the chunk metadata. JSON is
// treated as plain text so embedded formulas in string values survive.
func loadAndSplit(ctx context.Context, fileType model.FileType, data []byte, splitter textsplitter.TextSplitter) ([]schema.Document, error) {
	var loader documentloaders.Loader

	switch fileType {
	case model.FileTypePDF:
		loader = documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	case model.FileTypeDocx:
		text, err := extractDocxText(data)
		if err != nil {
			return nil, err
		}
		loader = documentloaders.NewText(strings.NewReader(text))
	case model.FileTypeHTML:
		loader = documentloaders.NewHTML(bytes.NewReader(data))
	case model.FileTypeText, model.FileTypeMarkdown, model.FileTypeJSON:
		loader = documentloaders.NewText(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported file type %q", fileType)
	}

	docs, err := loader.LoadAndSplit(ctx, splitter)
	if err != nil {
		return nil, fmt.Errorf("failed to load and split %s document: %w", fileType, err)
	}
	return docs, nil
}
