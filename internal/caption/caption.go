// Package caption turns a clip's word stream into paced, wrapped,
// karaoke-highlighted ASS subtitles, per SPEC_FULL.md §4.9.
package caption

import (
	"fmt"
	"math"
	"strings"

	"github.com/clipforge/shorts-worker/internal/models"
)

const (
	maxLines         = 2
	maxWordsPerLine  = 7
	maxCharsPerLine  = 34
	blockMaxDuration = 2.8
	silenceBreak     = 0.65
	karaokeMinCS     = 2   // centiseconds, §8 scenario 4's lower clamp
	karaokeMaxCS     = 250 // 2.50s upper clamp
)

// Block is one caption card: a run of words shown together, wrapped into
// at most maxLines lines, clock-relative to the clip it belongs to.
type Block struct {
	Start float64
	End   float64
	Words []models.Word // clip-relative timestamps
}

// BuildBlocks partitions a clip-relative word stream into caption blocks,
// breaking on a word-count cap (lines × words-per-line + 3), a duration
// cap, or a silence gap between words.
func BuildBlocks(words []models.Word) []Block {
	if len(words) == 0 {
		return nil
	}
	wordCap := maxLines*maxWordsPerLine + 3

	var blocks []Block
	var cur []models.Word

	flush := func() {
		if len(cur) == 0 {
			return
		}
		blocks = append(blocks, Block{Start: cur[0].Start, End: cur[len(cur)-1].End, Words: cur})
		cur = nil
	}

	for _, w := range words {
		if len(cur) == 0 {
			cur = append(cur, w)
			continue
		}
		last := cur[len(cur)-1]
		gap := w.Start - last.End
		duration := w.End - cur[0].Start

		if len(cur) >= wordCap || duration > blockMaxDuration || gap >= silenceBreak {
			flush()
			cur = append(cur, w)
			continue
		}
		cur = append(cur, w)
	}
	flush()
	return blocks
}

// WrapLines greedily wraps a block's words into at most maxLines lines of
// at most maxWordsPerLine words and maxCharsPerLine characters each.
func WrapLines(words []models.Word) []string {
	var lines []string
	var cur []string
	curChars := 0

	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, strings.Join(cur, " "))
			cur = nil
			curChars = 0
		}
	}

	for _, w := range words {
		text := escapeText(w.Text)
		added := len(text)
		if len(cur) > 0 {
			added++ // space
		}
		if len(cur) >= maxWordsPerLine || curChars+added > maxCharsPerLine {
			flush()
			if len(lines) >= maxLines {
				break
			}
		}
		cur = append(cur, text)
		curChars += added
	}
	flush()

	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}

// escapeText escapes ASS-reserved characters: backslash, braces, newlines.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `{`, `\{`)
	s = strings.ReplaceAll(s, `}`, `\}`)
	s = strings.ReplaceAll(s, "\n", `\N`)
	return s
}

// marginMultiplier returns the vertical-margin lift for a subject whose
// median crop-center Y, normalized by source height, sits low in frame, so
// captions don't overlap the subject.
func marginMultiplier(medianY, srcHeight float64) float64 {
	if srcHeight <= 0 {
		return 1.0
	}
	norm := medianY / srcHeight
	switch {
	case norm > 0.58:
		return 1.4
	case norm > 0.52:
		return 1.2
	default:
		return 1.0
	}
}

// BuildDocument renders blocks into a complete ASS subtitle document at
// outW x outH resolution, with two styles (Base, persistent plain text; and
// Highlight, karaoke-timed) per block, per §4.9.
func BuildDocument(blocks []Block, style models.CaptionStyle, outW, outH int, medianY, srcHeight float64) string {
	marginV := int(float64(style.MarginV) * marginMultiplier(medianY, srcHeight))

	var b strings.Builder
	fmt.Fprintf(&b, "[Script Info]\nScriptType: v4.00+\nPlayResX: %d\nPlayResY: %d\nScaledBorderAndShadow: yes\n\n", outW, outH)
	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Base,%s,%d,%s,&H000000FF,%s,&H00000000,%d,%d,0,0,100,100,0,0,1,%d,%d,%d,%d,%d,%d,1\n",
		style.Font, style.FontSize, assColor(style.PrimaryColor), assColor(style.OutlineColor),
		boolInt(style.Bold), boolInt(style.Italic), style.Outline, style.Shadow, style.Alignment, style.MarginH, style.MarginH, marginV)
	fmt.Fprintf(&b, "Style: Highlight,%s,%d,&H0000FFFF,&H000000FF,%s,&H00000000,%d,%d,0,0,100,100,0,0,1,%d,%d,%d,%d,%d,%d,1\n\n",
		style.Font, style.FontSize, assColor(style.OutlineColor),
		boolInt(style.Bold), boolInt(style.Italic), style.Outline, style.Shadow, style.Alignment, style.MarginH, style.MarginH, marginV)
	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, block := range blocks {
		lines := WrapLines(block.Words)
		text := strings.Join(lines, `\N`)
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Base,,0,0,0,,%s\n", assTime(block.Start), assTime(block.End), text)
		fmt.Fprintf(&b, "Dialogue: 1,%s,%s,Highlight,,0,0,0,,%s\n", assTime(block.Start), assTime(block.End), karaokeText(block.Words))
	}

	return b.String()
}

// karaokeText emits \k-tagged tokens whose per-token duration (clamped to
// [karaokeMinCS, karaokeMaxCS] centiseconds) drives the highlight sweep.
func karaokeText(words []models.Word) string {
	var b strings.Builder
	for _, w := range words {
		cs := int((w.End - w.Start) * 100)
		if cs < karaokeMinCS {
			cs = karaokeMinCS
		}
		if cs > karaokeMaxCS {
			cs = karaokeMaxCS
		}
		fmt.Fprintf(&b, "{\\k%d}%s ", cs, escapeText(w.Text))
	}
	return strings.TrimSpace(b.String())
}

func assTime(t float64) string {
	if t < 0 {
		t = 0
	}
	total := int(math.Round(t * 100)) // whole centiseconds
	hours := total / 360000
	minutes := (total % 360000) / 6000
	seconds := (total % 6000) / 100
	centis := total % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, seconds, centis)
}

func assColor(bgr uint32) string {
	return fmt.Sprintf("&H%08X", bgr)
}

func boolInt(v bool) int {
	if v {
		return -1 // ASS booleans are -1/0
	}
	return 0
}
