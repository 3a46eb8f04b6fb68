package session

import (
	"strings"

	"github.com/MrWong99/medsift/pkg/types"
)

// DefaultSpeakers are the labels the diarizer alternates between.
var DefaultSpeakers = []string{"Doctor", "Patient"}

// diarizer assigns speaker labels from pauses between segments. A pause longer
// than threshold between the end of one segment and the start of the next
// hands the turn to the next speaker.
type diarizer struct {
	threshold float64
	speakers  []string

	current int
	lastEnd float64
	started bool
}

func newDiarizer(threshold float64, speakers []string) diarizer {
	return diarizer{threshold: threshold, speakers: speakers}
}

// label advances the state past seg and returns its speaker.
func (d *diarizer) label(seg types.Segment) string {
	if d.started && seg.Start-d.lastEnd > d.threshold {
		d.current = (d.current + 1) % len(d.speakers)
	}
	d.started = true
	if seg.End > d.lastEnd {
		d.lastEnd = seg.End
	}
	return d.speakers[d.current]
}

// speaker is the label of the most recently labelled segment.
func (d *diarizer) speaker() string {
	return d.speakers[d.current]
}

// Block is a run of consecutive segments by one speaker.
type Block struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// String renders the block as "Speaker: text".
func (b Block) String() string {
	return b.Speaker + ": " + b.Text
}

// Rediarize relabels segs in place from a fresh diarizer state.
func Rediarize(segs []types.Segment, threshold float64, speakers []string) {
	if len(speakers) == 0 {
		speakers = DefaultSpeakers
	}
	d := newDiarizer(threshold, speakers)
	for i := range segs {
		segs[i].Speaker = d.label(segs[i])
	}
}

// MergeBlocks joins consecutive segments with the same speaker. Segments with
// blank text are skipped.
func MergeBlocks(segs []types.Segment) []Block {
	var blocks []Block
	for _, s := range segs {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if n := len(blocks); n > 0 && blocks[n-1].Speaker == s.Speaker {
			blocks[n-1].Text += " " + text
			blocks[n-1].End = s.End
			continue
		}
		blocks = append(blocks, Block{Speaker: s.Speaker, Start: s.Start, End: s.End, Text: text})
	}
	return blocks
}
