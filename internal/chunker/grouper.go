package chunker

import (
	"strings"

	"semrag/internal/domain"
)

// GroupUnits folds sentences into semantic units, starting a new unit at
// every boundary index.
func GroupUnits(sents []domain.Sentence, boundaries []int) []domain.SemanticUnit {
	if len(sents) == 0 {
		return nil
	}
	isBoundary := make(map[int]struct{}, len(boundaries))
	for _, b := range boundaries {
		isBoundary[b] = struct{}{}
	}

	var units []domain.SemanticUnit
	current := []domain.Sentence{sents[0]}
	for i := 1; i < len(sents); i++ {
		if _, ok := isBoundary[i]; ok {
			units = append(units, newUnit(current, len(units)))
			current = nil
		}
		current = append(current, sents[i])
	}
	return append(units, newUnit(current, len(units)))
}

func newUnit(sents []domain.Sentence, index int) domain.SemanticUnit {
	texts := make([]string, len(sents))
	for i, s := range sents {
		texts[i] = s.Text
	}
	return domain.SemanticUnit{
		Sentences: sents,
		UnitIndex: index,
		HasMath:   HasMathConcept(strings.Join(texts, " ")),
	}
}
