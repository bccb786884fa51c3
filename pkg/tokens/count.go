package tokens

import (
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with a tiktoken codec. Counting is a deterministic
// utility: it is used for the session usage display, never for truncation
// decisions.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter returns a counter for the given model, falling back to the
// cl100k_base encoding for models the tokenizer tables do not know.
func NewCounter(model string) *Counter {
	if model != "" {
		if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
			return &Counter{codec: codec}
		}
		log.Debug().Str("model", model).Msg("no tokenizer for model, falling back to cl100k_base")
	}

	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		// cl100k_base is compiled into the tokenizer tables
		panic(err)
	}
	return &Counter{codec: codec}
}

// Count returns the number of tokens in text; 0 for text the codec cannot
// encode.
func (c *Counter) Count(text string) int {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		log.Warn().Err(err).Msg("could not encode text for token counting")
		return 0
	}
	return len(ids)
}
