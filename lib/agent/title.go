// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/bureau-foundation/parley/lib/llm"
)

// MaxTitleWords is the longest title SanitizeTitle keeps.
const MaxTitleWords = 5

// titleMaxTokens is generous for five words; models sometimes open
// with a stray preamble that sanitizing removes.
const titleMaxTokens = 32

// Titler names sessions from their first user message.
type Titler struct {
	provider llm.Provider
	model    string
}

// NewTitler returns a Titler that asks model on provider.
func NewTitler(provider llm.Provider, model string) *Titler {
	return &Titler{provider: provider, model: model}
}

// GenerateTitle asks for a title and returns it sanitized. An answer
// that sanitizes to nothing is an error.
func (titler *Titler) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	zero := 0.0
	response, err := titler.provider.Complete(ctx, llm.Request{
		Model:       titler.model,
		System:      titleSystemPrompt,
		Messages:    []llm.Message{llm.UserMessage(firstMessage)},
		MaxTokens:   titleMaxTokens,
		Temperature: &zero,
	})
	if err != nil {
		return "", fmt.Errorf("agent: generating title: %w", err)
	}
	title := SanitizeTitle(response.TextContent())
	if title == "" {
		return "", errors.New("agent: model returned an empty title")
	}
	return title, nil
}

var titleParser = goldmark.New()

// SanitizeTitle turns a model's answer into a session title: markdown
// is reduced to its text, a leading "Title:" is dropped, punctuation
// and quotes are removed, at most [MaxTitleWords] words are kept, and
// the result is put in sentence case.
//
// Sentence case capitalizes the first word. Later words are lowered
// only when every word was capitalized, which is how models usually
// fail the rule; otherwise proper nouns and acronyms survive.
func SanitizeTitle(answer string) string {
	plain := markdownText(answer)
	if label, rest, found := strings.Cut(plain, ":"); found && strings.EqualFold(strings.TrimSpace(label), "title") {
		plain = rest
	}

	var words []string
	for _, field := range strings.Fields(plain) {
		word := stripPunctuation(field)
		if word == "" {
			continue
		}
		words = append(words, word)
		if len(words) == MaxTitleWords {
			break
		}
	}
	if len(words) == 0 {
		return ""
	}

	allCapitalized := len(words) > 1
	for _, word := range words {
		if !isCapitalized(word) {
			allCapitalized = false
			break
		}
	}
	for index, word := range words {
		switch {
		case index == 0:
			words[index] = upperFirst(word)
		case allCapitalized:
			words[index] = strings.ToLower(word)
		}
	}
	return strings.Join(words, " ")
}

// markdownText returns the text content of a markdown document with
// block boundaries turned into spaces.
func markdownText(source string) string {
	sourceBytes := []byte(source)
	document := titleParser.Parser().Parse(text.NewReader(sourceBytes))

	var builder strings.Builder
	ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock {
				builder.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch typed := node.(type) {
		case *ast.Text:
			builder.Write(typed.Segment.Value(sourceBytes))
			if typed.SoftLineBreak() || typed.HardLineBreak() {
				builder.WriteByte(' ')
			}
		case *ast.String:
			builder.Write(typed.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := typed.Lines()
			for index := 0; index < lines.Len(); index++ {
				segment := lines.At(index)
				builder.Write(segment.Value(sourceBytes))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return builder.String()
}

// stripPunctuation removes punctuation and symbols, keeping a hyphen
// or apostrophe that joins two letters or digits ("follow-up",
// "don't").
func stripPunctuation(word string) string {
	runes := []rune(word)
	var builder strings.Builder
	for index, character := range runes {
		if unicode.IsLetter(character) || unicode.IsDigit(character) {
			builder.WriteRune(character)
			continue
		}
		if (character == '-' || character == '\'') &&
			index > 0 && index < len(runes)-1 &&
			isWordRune(runes[index-1]) && isWordRune(runes[index+1]) {
			builder.WriteRune(character)
		}
	}
	return builder.String()
}

func isWordRune(character rune) bool {
	return unicode.IsLetter(character) || unicode.IsDigit(character)
}

// isCapitalized reports whether word starts upper case and continues
// lower case, like "Programming" but not "SQL" or "iPhone".
func isCapitalized(word string) bool {
	first, size := utf8.DecodeRuneInString(word)
	if !unicode.IsUpper(first) {
		return false
	}
	rest := word[size:]
	return rest != "" && strings.ToLower(rest) == rest
}

func upperFirst(word string) string {
	first, size := utf8.DecodeRuneInString(word)
	return string(unicode.ToUpper(first)) + word[size:]
}
