package chunker

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"semrag/internal/domain"
)

// Assembler packs semantic units into token-bounded chunks.
type Assembler struct {
	tok    domain.Tokenizer
	logger *zap.Logger
}

// NewAssembler creates an assembler counting with tok.
func NewAssembler(tok domain.Tokenizer, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{tok: tok, logger: logger}
}

// draft is a chunk before ids and overlap are assigned.
type draft struct {
	sents     []domain.Sentence
	unitIndex int
	subIndex  *int
}

func (d draft) empty() bool { return len(d.sents) == 0 }

// Assemble turns units of text into chunks. opts must already be valid.
func (a *Assembler) Assemble(text string, units []domain.SemanticUnit, opts domain.ChunkOptions) []domain.Chunk {
	drafts := a.pack(text, units, opts)
	return a.finalize(text, drafts, opts)
}

// pack walks the units and decides where chunks close. A candidate takes
// whole units while it stays within max. When the next unit would overflow,
// a candidate at or above min closes; a smaller one is filled sentence by
// sentence from that unit first.
func (a *Assembler) pack(text string, units []domain.SemanticUnit, opts domain.ChunkOptions) []draft {
	var out []draft
	var cur draft
	for _, u := range units {
		rest := u.Sentences
		if !cur.empty() {
			merged := appendSentences(cur.sents, rest...)
			if a.count(text, merged) <= opts.MaxChunkTokens {
				cur.sents = merged
				continue
			}
			if a.count(text, cur.sents) < opts.MinChunkTokens {
				cur.sents, rest = a.fill(text, cur.sents, rest, opts)
			}
			out = append(out, cur)
			cur = draft{}
			if len(rest) == 0 {
				continue
			}
		}
		var emitted []draft
		emitted, cur = a.start(text, rest, u.UnitIndex, opts)
		out = append(out, emitted...)
	}
	if !cur.empty() {
		out = append(out, cur)
	}
	return out
}

// fill moves leading sentences of rest into sents while the total stays
// within max. A candidate still below min when it meets a sentence that
// alone exceeds max takes that sentence too.
func (a *Assembler) fill(text string, sents, rest []domain.Sentence, opts domain.ChunkOptions) ([]domain.Sentence, []domain.Sentence) {
	for len(rest) > 0 {
		next := appendSentences(sents, rest[0])
		if a.count(text, next) > opts.MaxChunkTokens {
			break
		}
		sents = next
		rest = rest[1:]
	}
	if len(rest) > 0 && a.count(text, sents) < opts.MinChunkTokens && a.oversize(text, rest[0], opts.MaxChunkTokens) {
		sents = appendSentences(sents, rest[0])
		rest = rest[1:]
	}
	return sents, rest
}

// start opens a candidate from the sentences of one unit. A unit over max is
// split at sentence boundaries; every part but the last is emitted and the
// last becomes the candidate.
func (a *Assembler) start(text string, sents []domain.Sentence, unitIndex int, opts domain.ChunkOptions) ([]draft, draft) {
	if a.count(text, sents) <= opts.MaxChunkTokens {
		return nil, draft{sents: sents, unitIndex: unitIndex}
	}
	parts := a.split(text, sents, opts)
	if len(parts) == 1 {
		return nil, draft{sents: sents, unitIndex: unitIndex}
	}
	drafts := make([]draft, len(parts))
	for i, p := range parts {
		sub := i
		drafts[i] = draft{sents: p, unitIndex: unitIndex, subIndex: &sub}
	}
	return drafts[:len(drafts)-1], drafts[len(drafts)-1]
}

// split greedily fills parts up to max tokens. A sentence that alone exceeds
// max closes a part of its own, joined by the open part when that is still
// below min.
func (a *Assembler) split(text string, sents []domain.Sentence, opts domain.ChunkOptions) [][]domain.Sentence {
	var parts [][]domain.Sentence
	var cur []domain.Sentence
	for _, s := range sents {
		if a.oversize(text, s, opts.MaxChunkTokens) {
			if len(cur) > 0 && a.count(text, cur) >= opts.MinChunkTokens {
				parts = append(parts, cur)
				cur = nil
			}
			parts = append(parts, appendSentences(cur, s))
			cur = nil
			continue
		}
		if len(cur) > 0 && a.count(text, appendSentences(cur, s)) > opts.MaxChunkTokens {
			parts = append(parts, cur)
			cur = nil
		}
		cur = append(cur, s)
	}
	if len(cur) > 0 {
		parts = append(parts, cur)
	}
	return parts
}

// oversize reports whether s alone exceeds maxTokens. Such a sentence is
// never split and is the only chunk allowed over max.
func (a *Assembler) oversize(text string, s domain.Sentence, maxTokens int) bool {
	n := a.count(text, []domain.Sentence{s})
	if n <= maxTokens {
		return false
	}
	a.logger.Warn("sentence exceeds max chunk tokens, emitting it unsplit",
		zap.Int("tokens", n),
		zap.Int("max_chunk_tokens", maxTokens),
		zap.Int("start_char", s.StartChar),
	)
	return true
}

// finalize assigns ids, spans, metadata and the overlap prefix.
func (a *Assembler) finalize(text string, drafts []draft, opts domain.ChunkOptions) []domain.Chunk {
	docID := opts.DocumentID
	if docID == "" {
		docID = domain.DefaultDocumentID
	}
	chunks := make([]domain.Chunk, 0, len(drafts))
	for n, d := range drafts {
		start := d.sents[0].StartChar
		end := d.sents[len(d.sents)-1].EndChar
		own := strings.TrimSpace(text[start:end])

		body := own
		if n > 0 && opts.OverlapTokens > 0 {
			body = a.withOverlap(chunks[n-1].Text, own, opts)
		}

		id := fmt.Sprintf("%s_chunk_%d", docID, n)
		if d.subIndex != nil {
			id = fmt.Sprintf("%s_%d", id, *d.subIndex)
		}
		chunks = append(chunks, domain.Chunk{
			ChunkID:     id,
			DocumentID:  docID,
			Text:        body,
			TokenLength: a.tok.Count(body),
			StartChar:   start,
			EndChar:     end,
			Metadata: domain.ChunkMetadata{
				HasMath:   HasMathConcept(own),
				UnitIndex: d.unitIndex,
				SubIndex:  d.subIndex,
			},
		})
	}
	return chunks
}

// withOverlap prepends the longest tail of prev, up to OverlapTokens, that
// keeps the chunk within max. No room leaves own unchanged.
func (a *Assembler) withOverlap(prev, own string, opts domain.ChunkOptions) string {
	n := min(opts.OverlapTokens, opts.MaxChunkTokens-a.tok.Count(own))
	for ; n > 0; n-- {
		tail := a.tok.Tail(prev, n)
		if tail == "" {
			return own
		}
		candidate := tail + " " + own
		if a.tok.Count(candidate) <= opts.MaxChunkTokens {
			return candidate
		}
	}
	return own
}

func (a *Assembler) count(text string, sents []domain.Sentence) int {
	if len(sents) == 0 {
		return 0
	}
	start := sents[0].StartChar
	end := sents[len(sents)-1].EndChar
	return a.tok.Count(strings.TrimSpace(text[start:end]))
}

func appendSentences(base []domain.Sentence, more ...domain.Sentence) []domain.Sentence {
	out := make([]domain.Sentence, 0, len(base)+len(more))
	out = append(out, base...)
	return append(out, more...)
}
