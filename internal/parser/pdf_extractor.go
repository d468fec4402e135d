package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"hiring-agent-go/internal/logger"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

const extractTimeout = 30 * time.Second

// ResumePDFExtractor 使用 Eino PDF Parser 从候选人简历中提取纯文本
type ResumePDFExtractor struct {
	parser *pdf.PDFParser
}

// NewResumePDFExtractor 初始化PDF文本提取器
// 不按页面分割，简历作为单个连续文本参与评分
func NewResumePDFExtractor(ctx context.Context) (*ResumePDFExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("创建PDF解析器失败: %w", err)
	}
	return &ResumePDFExtractor{parser: p}, nil
}

// ExtractText 从Reader中提取简历全文
func (e *ResumePDFExtractor) ExtractText(ctx context.Context, reader io.Reader, uri string) (string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader, einoParser.WithURI(uri))
	if err != nil {
		return "", fmt.Errorf("PDF解析失败 (URI: %s): %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("PDF解析无结果 (URI: %s)", uri)
	}

	var buf bytes.Buffer
	for i, doc := range docs {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(doc.Content)
	}

	logger.Debug().
		Str("uri", uri).
		Int("text_length", buf.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("简历文本提取完成")
	return buf.String(), nil
}

// ExtractTextFromBytes 从字节数组提取简历全文
func (e *ResumePDFExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, error) {
	return e.ExtractText(ctx, bytes.NewReader(data), uri)
}
