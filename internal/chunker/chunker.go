// Package chunker segments a memory version's markdown content into
// retrieval-sized chunks with byte-exact offsets and deterministic section
// anchors. It is grounded on the teacher's header-based Markdown chunker
// (internal/chunk/markdown_chunker.go) but reworked to the block model and
// flush rules of the engine's ingest pipeline: a heading stack drives
// section anchors, blocks are classified (heading, paragraph, list,
// code_fence, table, blank), and chunks carry the exact source slice rather
// than a reformatted copy.
package chunker

import (
	"regexp"
	"strconv"
	"strings"
)

// blockKind classifies one markdown block within the source text.
type blockKind int

const (
	blockHeading blockKind = iota
	blockParagraph
	blockList
	blockCodeFence
	blockTable
	blockBlank
)

// block is one parsed unit of source text with its absolute offsets and the
// heading path in effect at that point in the document.
type block struct {
	kind        blockKind
	start       int
	end         int
	headingPath []string
	level       int // heading level, only meaningful when kind == blockHeading
}

func (b block) text(src string) string { return src[b.start:b.end] }

// Options configures chunk assembly. Zero values are replaced by Defaults.
type Options struct {
	TargetTokens  int
	MaxTokens     int
	OverlapTokens int
	// DisableOverlap mirrors spec §4.2: overlap is switched off for the
	// canonical document classes (app_spec, feature_spec,
	// implementation_plan); the caller decides this from the item's
	// doc_class and sets this flag rather than the chunker guessing it.
	DisableOverlap bool
}

// Defaults returns the chunk assembly configuration used when the caller
// supplies zero values.
func Defaults() Options {
	return Options{TargetTokens: 400, MaxTokens: 600, OverlapTokens: 60}
}

func (o Options) withDefaults() Options {
	d := Defaults()
	if o.TargetTokens <= 0 {
		o.TargetTokens = d.TargetTokens
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	return o
}

// Chunk is one emitted retrieval unit. Text is always the exact
// src[Start:End] slice; no reformatting is applied.
type Chunk struct {
	Index         int
	Text          string
	HeadingPath   []string
	SectionAnchor string
	Start         int
	End           int
}

// estimateTokens matches spec §4.2: ceil(span_chars / 4).
func estimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

// Chunk segments src into retrieval chunks per spec §4.2. Offsets are byte
// offsets into src (src must be valid UTF-8; markdown content in practice
// is ASCII-dominant so byte and rune offsets coincide for the common case,
// and chunk text is always reconstructed by direct slicing so this never
// diverges from the source regardless of encoding).
func Chunk(src string, opts Options) []Chunk {
	opts = opts.withDefaults()
	if strings.TrimSpace(src) == "" {
		return nil
	}
	blocks := parseBlocks(src)
	a := &assembler{src: src, opts: opts}
	for _, b := range blocks {
		a.add(b)
	}
	a.flush()
	return a.chunks
}

// parseBlocks splits src into blocks, maintaining a heading stack so each
// block records the heading path in effect at its position.
func parseBlocks(src string) []block {
	lines := splitLinesKeepEnds(src)
	var blocks []block
	var stack []headingEntry

	offset := 0
	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimRight(line, "\r\n")

		switch {
		case strings.TrimSpace(trimmed) == "":
			blocks = append(blocks, block{kind: blockBlank, start: offset, end: offset + len(line), headingPath: currentPath(stack)})
			offset += len(line)
			i++

		case headingRe.MatchString(trimmed):
			m := headingRe.FindStringSubmatch(trimmed)
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			stack = popTo(stack, level)
			stack = append(stack, headingEntry{level: level, title: title})
			start := offset
			end := offset + len(line)
			blocks = append(blocks, block{kind: blockHeading, start: start, end: end, headingPath: currentPath(stack), level: level})
			offset = end
			i++

		case fenceRe.MatchString(trimmed):
			fence := strings.TrimSpace(trimmed)[:3]
			start := offset
			offset += len(line)
			i++
			for i < len(lines) {
				l := lines[i]
				offset += len(l)
				i++
				if strings.HasPrefix(strings.TrimSpace(strings.TrimRight(l, "\r\n")), fence) {
					break
				}
			}
			blocks = append(blocks, block{kind: blockCodeFence, start: start, end: offset, headingPath: currentPath(stack)})

		case isTableHeader(lines, i):
			start := offset
			// header row + separator row
			offset += len(lines[i])
			offset += len(lines[i+1])
			i += 2
			for i < len(lines) && looksLikeTableRow(lines[i]) {
				offset += len(lines[i])
				i++
			}
			blocks = append(blocks, block{kind: blockTable, start: start, end: offset, headingPath: currentPath(stack)})

		case listItemRe.MatchString(trimmed):
			start := offset
			offset += len(line)
			i++
			for i < len(lines) {
				l := lines[i]
				lt := strings.TrimRight(l, "\r\n")
				if strings.TrimSpace(lt) == "" {
					break
				}
				if listItemRe.MatchString(lt) || strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t") {
					offset += len(l)
					i++
					continue
				}
				break
			}
			blocks = append(blocks, block{kind: blockList, start: start, end: offset, headingPath: currentPath(stack)})

		default:
			start := offset
			offset += len(line)
			i++
			for i < len(lines) {
				l := lines[i]
				lt := strings.TrimRight(l, "\r\n")
				if strings.TrimSpace(lt) == "" || headingRe.MatchString(lt) || fenceRe.MatchString(lt) ||
					listItemRe.MatchString(lt) || isTableHeader(lines, i) {
					break
				}
				offset += len(l)
				i++
			}
			blocks = append(blocks, block{kind: blockParagraph, start: start, end: offset, headingPath: currentPath(stack)})
		}
	}
	return blocks
}

type headingEntry struct {
	level int
	title string
}

// popTo pops stack entries with level >= l, per spec §4.2's heading-stack
// update rule.
func popTo(stack []headingEntry, l int) []headingEntry {
	for len(stack) > 0 && stack[len(stack)-1].level >= l {
		stack = stack[:len(stack)-1]
	}
	return stack
}

func currentPath(stack []headingEntry) []string {
	if len(stack) == 0 {
		return nil
	}
	out := make([]string, len(stack))
	for i, e := range stack {
		out[i] = e.title
	}
	return out
}

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	fenceRe    = regexp.MustCompile("^(```|~~~)")
	listItemRe = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+`)
	tableSepRe = regexp.MustCompile(`^\s*\|?\s*:?-+:?\s*(\|\s*:?-+:?\s*)*\|?\s*$`)
)

func isTableHeader(lines []string, i int) bool {
	if i+1 >= len(lines) {
		return false
	}
	head := strings.TrimRight(lines[i], "\r\n")
	sep := strings.TrimRight(lines[i+1], "\r\n")
	if !strings.Contains(head, "|") {
		return false
	}
	return tableSepRe.MatchString(sep) && strings.Contains(sep, "-")
}

func looksLikeTableRow(line string) bool {
	t := strings.TrimRight(line, "\r\n")
	return strings.Contains(t, "|") && strings.TrimSpace(t) != ""
}

// splitLinesKeepEnds splits src into lines, each retaining its trailing
// newline (except possibly the last), so offsets sum back to len(src).
func splitLinesKeepEnds(src string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			lines = append(lines, src[start:i+1])
			start = i + 1
		}
	}
	if start < len(src) {
		lines = append(lines, src[start:])
	}
	return lines
}

// assembler accumulates blocks into chunks per spec §4.2's flush rules.
type assembler struct {
	src     string
	opts    Options
	current []block
	chunks  []Chunk
	pending []block // carry-over blocks seeding the next chunk (overlap)
}

func (a *assembler) add(b block) {
	if b.kind == blockBlank {
		// Blank blocks never trigger a flush on their own and are never the
		// sole content of a chunk, but they do belong to the span so the
		// chunk's character coverage stays contiguous.
		a.current = append(a.current, b)
		return
	}

	if a.shouldFlush(b) {
		a.flush()
	}

	if estimateTokens(b.end-b.start) > a.opts.MaxTokens {
		// Every span after the first starts a chunk of its own.
		for i, piece := range splitOversizeBlock(a.src, b, a.opts.MaxTokens) {
			if i > 0 {
				a.flush()
				a.current = nil
			}
			a.current = append(a.current, piece)
		}
		return
	}

	a.current = append(a.current, b)
}

func (a *assembler) shouldFlush(next block) bool {
	if len(a.current) == 0 {
		return false
	}
	if next.kind == blockHeading {
		return true
	}
	if !samePath(currentHeadingPath(a.current), next.headingPath) {
		return true
	}
	span := currentTokenSpan(a.current) + estimateTokens(next.end-next.start)
	return span > a.opts.TargetTokens
}

func currentHeadingPath(blocks []block) []string {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].kind != blockBlank {
			return blocks[i].headingPath
		}
	}
	return blocks[len(blocks)-1].headingPath
}

func currentTokenSpan(blocks []block) int {
	if len(blocks) == 0 {
		return 0
	}
	return estimateTokens(blocks[len(blocks)-1].end - blocks[0].start)
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// splitOversizeBlock splits a block exceeding maxTokens into equal
// character spans of 4*maxTokens, per spec §4.2.
func splitOversizeBlock(src string, b block, maxTokens int) []block {
	spanChars := 4 * maxTokens
	if spanChars <= 0 {
		return []block{b}
	}
	var out []block
	for start := b.start; start < b.end; start += spanChars {
		end := start + spanChars
		if end > b.end {
			end = b.end
		}
		out = append(out, block{kind: b.kind, start: start, end: end, headingPath: b.headingPath, level: b.level})
	}
	return out
}

// flush emits the current block run as a chunk (dropping purely-blank runs
// and leading/trailing blank blocks from the span, but keeping the text
// slice byte-exact over what remains) and seeds the next chunk's overlap.
func (a *assembler) flush() {
	blocks := trimBlank(a.current)
	a.current = nil
	if len(blocks) == 0 {
		return
	}

	start := blocks[0].start
	end := blocks[len(blocks)-1].end
	path := currentHeadingPath(blocks)

	c := Chunk{
		Index:         len(a.chunks),
		Text:          a.src[start:end],
		HeadingPath:   append([]string(nil), path...),
		SectionAnchor: Anchor(path),
		Start:         start,
		End:           end,
	}
	a.chunks = append(a.chunks, c)

	if a.opts.DisableOverlap || a.opts.OverlapTokens <= 0 {
		return
	}
	a.current = trailingOverlap(blocks, path, a.opts.OverlapTokens)
}

func trimBlank(blocks []block) []block {
	start := 0
	for start < len(blocks) && blocks[start].kind == blockBlank {
		start++
	}
	end := len(blocks)
	for end > start && blocks[end-1].kind == blockBlank {
		end--
	}
	return blocks[start:end]
}

// trailingOverlap collects trailing blocks within the same heading path
// until overlapTokens is reached, per spec §4.2, to seed the next chunk.
func trailingOverlap(blocks []block, path []string, overlapTokens int) []block {
	var seed []block
	acc := 0
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		if b.kind == blockBlank || !samePath(b.headingPath, path) {
			break
		}
		seed = append([]block{b}, seed...)
		acc += estimateTokens(b.end - b.start)
		if acc >= overlapTokens {
			break
		}
	}
	return seed
}

var (
	slugNonAlnum = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces   = regexp.MustCompile(`\s+`)
	slugDashes   = regexp.MustCompile(`-+`)
)

// Anchor renders a deterministic section anchor from a heading path, per
// spec §4.2: "h{level}:{slug1}.{slug2}...", empty path yields "root".
func Anchor(path []string) string {
	if len(path) == 0 {
		return "root"
	}
	slugs := make([]string, len(path))
	for i, p := range path {
		slugs[i] = slug(p)
	}
	return "h" + strconv.Itoa(len(path)) + ":" + strings.Join(slugs, ".")
}

func slug(s string) string {
	s = strings.ToLower(s)
	s = slugNonAlnum.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
