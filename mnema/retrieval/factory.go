package retrieval

import (
	"database/sql"
	"fmt"

	"github.com/mnema-labs/mnema/mnema/config"
)

// NewEmbedder selects the embedding provider from config.
func NewEmbedder(cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "hash":
		return NewHashEmbedder(cfg.Dims), nil
	case "llama":
		return NewLlamaEmbedder(cfg.ModelPath, cfg.Dims)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// NewDenseIndex selects the dense index backend from config.
func NewDenseIndex(cfg *config.RetrievalConfig, dims int) (DenseIndex, error) {
	switch cfg.DenseIndex {
	case "", "flat":
		return NewFlatDenseIndex(dims), nil
	default:
		return nil, fmt.Errorf("unknown dense index: %s", cfg.DenseIndex)
	}
}

// NewLexicalIndexBackend selects the lexical index backend from config.
// The fts5 backend needs the shared database connection.
func NewLexicalIndexBackend(cfg *config.RetrievalConfig, db *sql.DB) (LexicalIndex, error) {
	switch cfg.LexicalIndex {
	case "", "memory":
		return NewMemoryLexicalIndex(), nil
	case "fts5":
		if db == nil {
			return nil, fmt.Errorf("fts5 lexical index requires a database connection")
		}
		return NewFTSLexicalIndex(db), nil
	default:
		return nil, fmt.Errorf("unknown lexical index: %s", cfg.LexicalIndex)
	}
}
