// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"strconv"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// wrapBreakpoints are the characters ansi.Wrap may break after, in
// addition to spaces.
const wrapBreakpoints = " ,.;-+|"

// minimumWidth keeps deeply nested content from wrapping one word per
// line.
const minimumWidth = 20

var (
	parserOnce     sync.Once
	parserInstance goldmark.Markdown
)

// markdownParser is shared; goldmark parsers keep per-call state in
// the reader, not the parser.
func markdownParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parserInstance
}

// isMarkdownFence reports whether a fenced block's info string names
// markdown, which renders as a nested panel.
func isMarkdownFence(language string) bool {
	switch strings.ToLower(language) {
	case "markdown", "md":
		return true
	}
	return false
}

// chromaFormatter maps a color profile to the chroma formatter that
// emits matching escape codes. Ascii gets none: code stays plain.
func chromaFormatter(profile termenv.Profile) string {
	switch profile {
	case termenv.TrueColor:
		return "terminal16m"
	case termenv.ANSI256:
		return "terminal256"
	case termenv.ANSI:
		return "terminal16"
	}
	return ""
}

// Markdown renders markdown source as styled terminal text wrapped to
// the renderer's width.
func (renderer *Renderer) Markdown(source string) string {
	return renderer.markdown(source, renderer.width)
}

func (renderer *Renderer) markdown(source string, width int) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	input := []byte(source)
	document := markdownParser().Parser().Parse(text.NewReader(input))

	walker := &markdownWalker{
		renderer: renderer,
		source:   input,
		width:    width,
	}
	ast.Walk(document, walker.walk)
	return strings.TrimRight(walker.output.String(), "\n")
}

// markdownWalker turns one goldmark document into terminal text.
// Inline content collects in inline and is wrapped as a unit when its
// block closes.
type markdownWalker struct {
	renderer *Renderer
	source   []byte
	width    int

	output  strings.Builder
	inline  strings.Builder
	newline int // trailing newlines in output

	// prefixes indent nested blocks; bullet replaces them for the
	// first line of a list item.
	prefixes []string
	bullet   string

	bold, italic, strike int
	lists                []listLevel
}

type listLevel struct {
	ordered bool
	next    int
	tight   bool
}

func (walker *markdownWalker) style() lipgloss.Style {
	return walker.renderer.lipgloss.NewStyle()
}

func (walker *markdownWalker) prefix() string {
	return strings.Join(walker.prefixes, "")
}

func (walker *markdownWalker) available() int {
	width := walker.width - ansi.StringWidth(walker.prefix())
	if width < minimumWidth {
		width = minimumWidth
	}
	return width
}

func (walker *markdownWalker) write(content string) {
	if content == "" {
		return
	}
	walker.output.WriteString(content)
	trimmed := strings.TrimRight(content, "\n")
	trailing := len(content) - len(trimmed)
	if trimmed == "" {
		walker.newline += trailing
	} else {
		walker.newline = trailing
	}
}

func (walker *markdownWalker) endLine() {
	if walker.newline < 1 {
		walker.write("\n")
	}
}

func (walker *markdownWalker) blankLine() {
	if walker.output.Len() == 0 {
		return
	}
	for walker.newline < 2 {
		walker.write("\n")
	}
}

func (walker *markdownWalker) tight() bool {
	return len(walker.lists) > 0 && walker.lists[len(walker.lists)-1].tight
}

// lines writes content line by line behind the current prefixes. The
// first line takes the pending bullet, if any.
func (walker *markdownWalker) lines(content string) {
	prefix := walker.prefix()
	for index, line := range strings.Split(content, "\n") {
		if index == 0 && walker.bullet != "" {
			walker.write(walker.bullet + line)
			walker.bullet = ""
		} else {
			walker.write(prefix + line)
		}
		walker.write("\n")
	}
}

func (walker *markdownWalker) flush() string {
	content := walker.inline.String()
	walker.inline.Reset()
	if content == "" {
		return ""
	}
	return ansi.Wrap(content, walker.available(), wrapBreakpoints)
}

func (walker *markdownWalker) styled(content string) string {
	style := walker.style().Foreground(walker.renderer.theme.NormalText)
	if walker.bold > 0 {
		style = style.Bold(true)
	}
	if walker.italic > 0 {
		style = style.Italic(true)
	}
	if walker.strike > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

func (walker *markdownWalker) faint(content string) string {
	return walker.style().Foreground(walker.renderer.theme.FaintText).Render(content)
}

func (walker *markdownWalker) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			walker.inline.Reset()
			break
		}
		if wrapped := walker.flush(); wrapped != "" {
			walker.lines(wrapped)
			if !walker.tight() {
				walker.blankLine()
			}
		}

	case ast.KindHeading:
		if entering {
			walker.inline.Reset()
		} else {
			walker.heading(node.(*ast.Heading))
		}

	case ast.KindFencedCodeBlock:
		if entering {
			walker.fencedCode(node.(*ast.FencedCodeBlock))
		}
		return ast.WalkSkipChildren, nil

	case ast.KindCodeBlock:
		if entering {
			walker.code(walker.blockText(node), "")
		}
		return ast.WalkSkipChildren, nil

	case ast.KindBlockquote:
		if entering {
			walker.prefixes = append(walker.prefixes, walker.style().Foreground(walker.renderer.theme.BorderColor).Render("│")+" ")
		} else {
			walker.prefixes = walker.prefixes[:len(walker.prefixes)-1]
			walker.blankLine()
		}

	case ast.KindList:
		list := node.(*ast.List)
		if entering {
			walker.lists = append(walker.lists, listLevel{ordered: list.IsOrdered(), next: list.Start, tight: list.IsTight})
		} else {
			walker.lists = walker.lists[:len(walker.lists)-1]
			if !walker.tight() {
				walker.blankLine()
			}
		}

	case ast.KindListItem:
		if entering {
			walker.listItem()
		} else {
			walker.prefixes = walker.prefixes[:len(walker.prefixes)-1]
			if walker.tight() {
				walker.endLine()
			} else {
				walker.blankLine()
			}
		}

	case ast.KindThematicBreak:
		if entering {
			walker.blankLine()
			rule := strings.Repeat("─", walker.available())
			walker.lines(walker.style().Foreground(walker.renderer.theme.BorderColor).Render(rule))
			walker.blankLine()
		}

	case ast.KindHTMLBlock:
		if entering {
			if stripped := strings.TrimSpace(stripTags(walker.blockText(node))); stripped != "" {
				walker.lines(walker.faint(stripped))
				walker.blankLine()
			}
		}
		return ast.WalkSkipChildren, nil

	case ast.KindText:
		if entering {
			textNode := node.(*ast.Text)
			walker.inline.WriteString(walker.styled(string(textNode.Segment.Value(walker.source))))
			switch {
			case textNode.HardLineBreak():
				walker.inline.WriteString("\n")
			case textNode.SoftLineBreak():
				walker.inline.WriteString(" ")
			}
		}

	case ast.KindString:
		if entering {
			walker.inline.WriteString(walker.styled(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		counter := &walker.italic
		if node.(*ast.Emphasis).Level >= 2 {
			counter = &walker.bold
		}
		if entering {
			*counter++
		} else {
			*counter--
		}

	case extast.KindStrikethrough:
		if entering {
			walker.strike++
		} else {
			walker.strike--
		}

	case ast.KindCodeSpan:
		if entering {
			walker.inline.WriteString(walker.style().Foreground(walker.renderer.theme.FaintText).Render(walker.plainText(node)))
		}
		return ast.WalkSkipChildren, nil

	case ast.KindLink:
		if entering {
			link := node.(*ast.Link)
			walker.inline.WriteString(walker.style().Foreground(walker.renderer.theme.LinkForeground).Render(walker.plainText(node)))
			if destination := string(link.Destination); destination != "" {
				walker.inline.WriteString(" " + walker.faint("("+destination+")"))
			}
		}
		return ast.WalkSkipChildren, nil

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(walker.source))
			walker.inline.WriteString(walker.style().Foreground(walker.renderer.theme.LinkForeground).Render(url))
		}
		return ast.WalkSkipChildren, nil

	case ast.KindImage:
		if entering {
			image := node.(*ast.Image)
			walker.inline.WriteString(walker.faint("[image: " + walker.plainText(node) + "]"))
			if destination := string(image.Destination); destination != "" {
				walker.inline.WriteString(" " + walker.faint("("+destination+")"))
			}
		}
		return ast.WalkSkipChildren, nil

	case ast.KindRawHTML:
		if entering {
			raw := node.(*ast.RawHTML)
			var html strings.Builder
			for index := 0; index < raw.Segments.Len(); index++ {
				segment := raw.Segments.At(index)
				html.Write(segment.Value(walker.source))
			}
			if stripped := stripTags(html.String()); stripped != "" {
				walker.inline.WriteString(walker.faint(stripped))
			}
		}

	case extast.KindTaskCheckBox:
		if entering {
			if node.(*extast.TaskCheckBox).IsChecked {
				walker.inline.WriteString(walker.style().Foreground(walker.renderer.theme.CheckedBox).Render("[x]") + " ")
			} else {
				walker.inline.WriteString(walker.styled("[ ] "))
			}
		}

	case extast.KindTable:
		if entering {
			walker.table(node)
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (walker *markdownWalker) heading(heading *ast.Heading) {
	content := ansi.Strip(walker.inline.String())
	walker.inline.Reset()
	if content == "" {
		return
	}
	style := walker.style().Bold(true).Foreground(walker.renderer.theme.NormalText)
	if heading.Level <= 2 {
		style = style.Foreground(walker.renderer.theme.HeaderForeground).Underline(heading.Level == 1)
	}
	walker.blankLine()
	walker.lines(ansi.Wrap(style.Render(content), walker.available(), wrapBreakpoints))
	walker.blankLine()
}

func (walker *markdownWalker) listItem() {
	if len(walker.lists) == 0 {
		return
	}
	level := &walker.lists[len(walker.lists)-1]
	marker := "• "
	if level.ordered {
		marker = strconv.Itoa(level.next) + ". "
		level.next++
	}
	walker.bullet = walker.prefix() + marker
	walker.prefixes = append(walker.prefixes, strings.Repeat(" ", len(marker)))
}

// blockText concatenates a block node's raw source lines.
func (walker *markdownWalker) blockText(node ast.Node) string {
	var content strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		content.Write(segment.Value(walker.source))
	}
	return content.String()
}

// plainText collects the unstyled text under an inline node.
func (walker *markdownWalker) plainText(node ast.Node) string {
	var content strings.Builder
	ast.Walk(node, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch typed := child.(type) {
		case *ast.Text:
			content.Write(typed.Segment.Value(walker.source))
		case *ast.String:
			content.Write(typed.Value)
		}
		return ast.WalkContinue, nil
	})
	return content.String()
}

func (walker *markdownWalker) fencedCode(block *ast.FencedCodeBlock) {
	language := string(block.Language(walker.source))
	body := walker.blockText(block)
	if isMarkdownFence(language) {
		walker.panel(body)
		return
	}
	walker.code(body, language)
}

func (walker *markdownWalker) code(body, language string) {
	walker.blankLine()
	walker.lines(strings.TrimRight(walker.renderer.highlight(body, language), "\n"))
	walker.blankLine()
}

// panel renders nested markdown inside a rounded border.
func (walker *markdownWalker) panel(body string) {
	inner := walker.available() - 4
	if inner < minimumWidth {
		inner = minimumWidth
	}
	rendered := walker.renderer.markdown(body, inner)
	if rendered == "" {
		return
	}
	box := walker.style().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(walker.renderer.theme.PanelBorder).
		Padding(0, 1).
		Render(rendered)
	walker.blankLine()
	walker.lines(walker.faint("markdown"))
	walker.lines(box)
	walker.blankLine()
}

// table renders a GFM table as padded columns with a rule under the
// header. Cells wider than their share of the width are truncated.
func (walker *markdownWalker) table(node ast.Node) {
	alignments := node.(*extast.Table).Alignments
	var rows [][]string
	header := -1
	for row := node.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, walker.plainText(cell))
		}
		if row.Kind() == extast.KindTableHeader {
			header = len(rows)
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return
	}

	columns := 0
	for _, row := range rows {
		columns = max(columns, len(row))
	}
	widths := make([]int, columns)
	for _, row := range rows {
		for index, cell := range row {
			widths[index] = max(widths[index], ansi.StringWidth(cell))
		}
	}
	const gap = "  "
	total := len(gap) * (columns - 1)
	for _, width := range widths {
		total += width
	}
	if available := walker.available(); total > available {
		share := max((available-len(gap)*(columns-1))/columns, 3)
		for index := range widths {
			widths[index] = min(widths[index], share)
		}
	}

	walker.blankLine()
	for rowIndex, row := range rows {
		parts := make([]string, columns)
		for index := range widths {
			cell := ""
			if index < len(row) {
				cell = ansi.Truncate(row[index], widths[index], "…")
			}
			var alignment extast.Alignment
			if index < len(alignments) {
				alignment = alignments[index]
			}
			parts[index] = pad(cell, widths[index], alignment)
		}
		line := strings.Join(parts, gap)
		if rowIndex == header {
			walker.lines(walker.style().Bold(true).Foreground(walker.renderer.theme.NormalText).Render(line))
			rules := make([]string, columns)
			for index, width := range widths {
				rules[index] = strings.Repeat("─", width)
			}
			walker.lines(walker.style().Foreground(walker.renderer.theme.BorderColor).Render(strings.Join(rules, gap)))
			continue
		}
		walker.lines(walker.styled(line))
	}
	walker.blankLine()
}

func pad(cell string, width int, alignment extast.Alignment) string {
	missing := max(width-ansi.StringWidth(cell), 0)
	switch alignment {
	case extast.AlignRight:
		return strings.Repeat(" ", missing) + cell
	case extast.AlignCenter:
		left := missing / 2
		return strings.Repeat(" ", left) + cell + strings.Repeat(" ", missing-left)
	}
	return cell + strings.Repeat(" ", missing)
}

// highlight colors code with chroma when the language is known and the
// profile has colors, and falls back to faint plain text.
func (renderer *Renderer) highlight(code, language string) string {
	formatter := chromaFormatter(renderer.profile)
	if language != "" && formatter != "" {
		var buffer strings.Builder
		if err := quick.Highlight(&buffer, code, language, formatter, renderer.codeStyle); err == nil {
			return buffer.String()
		}
	}
	return renderer.lipgloss.NewStyle().Foreground(renderer.theme.FaintText).Render(strings.TrimRight(code, "\n"))
}

func stripTags(html string) string {
	var result strings.Builder
	inTag := false
	for _, character := range html {
		switch {
		case character == '<':
			inTag = true
		case character == '>':
			inTag = false
		case !inTag:
			result.WriteRune(character)
		}
	}
	return result.String()
}
