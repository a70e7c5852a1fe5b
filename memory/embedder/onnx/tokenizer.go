package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Special token ids of the bert-base-uncased vocabulary.
const (
	clsToken = 101
	sepToken = 102
	unkToken = 100
)

// Tokenizer is a lowercase WordPiece tokenizer over a HuggingFace
// tokenizer.json vocabulary.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the vocabulary from tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("%s: empty vocabulary", path)
	}
	return &Tokenizer{vocab: file.Model.Vocab}, nil
}

// NewTokenizer builds a tokenizer from an in-memory vocabulary.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Tokenize converts text to WordPiece token ids, without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		for _, piece := range t.wordPieces(word) {
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
			} else {
				ids = append(ids, unkToken)
			}
		}
	}
	return ids
}

// Encode returns fixed-length input ids and attention mask:
// [CLS] tokens... [SEP] followed by padding.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)

	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids[0], mask[0] = clsToken, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = sepToken, 1
	return ids, mask
}

// wordPieces splits word greedily into the longest vocabulary prefixes;
// continuation pieces carry the ## prefix.
func (t *Tokenizer) wordPieces(word string) []string {
	var pieces []string
	for start := 0; start < len(word); {
		end := len(word)
		found := false
		for ; end > start; end-- {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				pieces = append(pieces, sub)
				found = true
				break
			}
		}
		if !found {
			pieces = append(pieces, "[UNK]")
			start++
			continue
		}
		start = end
	}
	return pieces
}
