package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathchat-backend/model"
	"mathchat-backend/service/splitter"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>The quadratic formula is $x = \frac{-b \pm \sqrt{b^2-4ac}}{2a}$.</w:t></w:r></w:p>
    <w:p>
      <w:r><w:t>First part,</w:t></w:r>
      <w:r><w:t xml:space="preserve"> second part.</w:t></w:r>
    </w:p>
    <w:p><w:r><w:t>Before break</w:t><w:br/><w:t>after break.</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestExtractDocxText(t *testing.T) {
	text, err := extractDocxText(buildDocx(t, docxBody))
	require.NoError(t, err)

	assert.Contains(t, text, `$x = \frac{-b \pm \sqrt{b^2-4ac}}{2a}$`)
	assert.Contains(t, text, "First part, second part.")
	assert.Contains(t, text, "Before break\nafter break.")
}

func TestExtractDocxTextRejectsNonArchive(t *testing.T) {
	_, err := extractDocxText([]byte("plain text, not a zip"))
	assert.Error(t, err)
}

func TestExtractDocxTextRejectsMissingBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<styles/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = extractDocxText(buf.Bytes())
	assert.Error(t, err)
}

func TestLoadAndSplitDocx(t *testing.T) {
	docs, err := loadAndSplit(context.Background(), model.FileTypeDocx,
		buildDocx(t, docxBody), splitter.NewMathAware(1000, 0))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].PageContent, `\sqrt{b^2-4ac}`)
}

func TestDocxIsSupportedUpload(t *testing.T) {
	assert.True(t, model.SupportedFileTypes[model.FileTypeDocx])
}
