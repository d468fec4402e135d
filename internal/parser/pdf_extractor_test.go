package parser

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResumePDFExtractor(t *testing.T) {
	e, err := NewResumePDFExtractor(context.Background())
	require.NoError(t, err)
	require.NotNil(t, e)
}

func TestExtractTextRejectsNonPDF(t *testing.T) {
	e, err := NewResumePDFExtractor(context.Background())
	require.NoError(t, err)

	_, err = e.ExtractText(context.Background(), bytes.NewReader([]byte("这不是一个PDF文件")), "broken.pdf")
	assert.Error(t, err)

	_, err = e.ExtractTextFromBytes(context.Background(), nil, "empty.pdf")
	assert.Error(t, err)
}
