package context

import (
	"context"
	"strings"
	"unicode/utf8"
)

// TokensPerChar is a rough estimate of tokens per character (conservative).
const TokensPerChar = 0.25

// Tokenizer splits text into the tokens a backend would count against its
// context window.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) ([]string, error)
}

// TokenizerFunc adapts a function to the Tokenizer interface.
type TokenizerFunc func(ctx context.Context, text string) ([]string, error)

// Tokenize calls f(ctx, text).
func (f TokenizerFunc) Tokenize(ctx context.Context, text string) ([]string, error) {
	return f(ctx, text)
}

// BasicTokenizer treats every single-space separated word as one token.
// It is only useful for tests and rough sizing.
var BasicTokenizer Tokenizer = TokenizerFunc(func(_ context.Context, text string) ([]string, error) {
	return strings.Split(text, " "), nil
})

// ApproxTokenizer chunks text into runs of roughly four characters, which
// tracks the token counts of common BPE vocabularies closely enough for
// budgeting.
var ApproxTokenizer Tokenizer = TokenizerFunc(func(_ context.Context, text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	size := int(1 / TokensPerChar)
	tokens := make([]string, 0, EstimateTokens(text))
	start, n := 0, 0
	for i := range text {
		if n == size {
			tokens = append(tokens, text[start:i])
			start, n = i, 0
		}
		n++
	}
	return append(tokens, text[start:]), nil
})

// EstimateTokens estimates the number of tokens in text.
// Uses a conservative estimate of ~4 characters per token.
func EstimateTokens(text string) int {
	charCount := utf8.RuneCountInString(text)
	tokens := int(float64(charCount) * TokensPerChar)
	if tokens == 0 && charCount > 0 {
		return 1
	}
	return tokens
}

// CountTokens returns the number of tokens tok produces for text.
func CountTokens(ctx context.Context, tok Tokenizer, text string) (int, error) {
	tokens, err := tok.Tokenize(ctx, text)
	if err != nil {
		return 0, err
	}
	return len(tokens), nil
}

// TokenizerByName returns one of the built-in tokenizers.
func TokenizerByName(name string) (Tokenizer, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "basic", "words":
		return BasicTokenizer, true
	case "approx", "approximate", "":
		return ApproxTokenizer, true
	default:
		return nil, false
	}
}
