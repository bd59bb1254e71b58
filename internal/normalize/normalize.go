// Package normalize turns scraped documents into chunked, traceable records.
package normalize

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 150
)

// recordNamespace scopes record IDs so they are stable across runs.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/fyrsmithlabs/forge/records"))

var separators = []string{"\n\n", "\n```", "\n# ", "\n## ", "\n", ". ", " ", ""}

// ChunkNormalizer splits documents into records of bounded size.
type ChunkNormalizer struct {
	splitter textsplitter.TextSplitter
	logger   *logging.Logger
}

// New creates a normalizer. Non-positive sizes fall back to defaults and an
// overlap that does not fit inside a chunk is clamped.
func New(chunkSize, chunkOverlap int, logger *logging.Logger) *ChunkNormalizer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ChunkNormalizer{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(separators),
		),
		logger: logger,
	}
}

// Normalize yields one record per chunk in document order. Documents without
// a URL or without text are dropped.
func (n *ChunkNormalizer) Normalize(ctx context.Context, docs []pipeline.Document) (pipeline.StructuredContext, error) {
	records := make([]pipeline.Record, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return pipeline.StructuredContext{}, err
		}

		source := strings.TrimSpace(doc.URL)
		text := strings.TrimSpace(doc.Text)
		if source == "" || text == "" {
			n.logger.Debug(ctx, "dropping empty document", zap.String("url", doc.URL))
			continue
		}

		chunks, err := n.splitter.SplitText(text)
		if err != nil {
			return pipeline.StructuredContext{}, fmt.Errorf("split %s: %w", source, err)
		}

		idx := 0
		for _, chunk := range chunks {
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				continue
			}
			records = append(records, pipeline.Record{
				ID:      RecordID(source, idx),
				Source:  source,
				Title:   doc.Title,
				Content: chunk,
				Chunk:   idx,
			})
			idx++
		}
	}

	n.logger.Debug(ctx, "documents normalized",
		zap.Int("documents", len(docs)),
		zap.Int("records", len(records)),
	)
	return pipeline.NewStructuredContext(records)
}

// RecordID derives the stable identifier of chunk idx of source.
func RecordID(source string, idx int) string {
	return uuid.NewSHA1(recordNamespace, []byte(source+"#"+strconv.Itoa(idx))).String()
}
