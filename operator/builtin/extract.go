package builtin

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/lnaes/engine/graph"
	"github.com/lnaes/engine/operator"
)

// extractConfidence is the confidence assigned to raw extraction candidates
// before resolution.
const extractConfidence = 0.6

// coOccurConfidence is the confidence of a sentence co-occurrence edge.
const coOccurConfidence = 0.5

// Extractor is a rule-based candidate extractor: capitalized token runs become
// entity candidates, sentence co-occurrence becomes candidate edges.
type Extractor struct{}

// NewExtractor creates the built-in extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract populates the candidate graph from normalized text.
func (e *Extractor) Extract(_ context.Context, in operator.ExtractInput) (*operator.ExtractOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, fmt.Errorf("empty text")
	}

	g := &graph.Graph{}
	nodeByLabel := make(map[string]string)
	nextNode := 0
	nextEdge := 0

	for _, sentence := range splitSentences(in.Text) {
		mentions := capitalizedRuns(sentence)

		var ids []string
		for _, label := range mentions {
			key := strings.ToLower(label)
			id, seen := nodeByLabel[key]
			if !seen {
				nextNode++
				id = fmt.Sprintf("n%d", nextNode)
				nodeByLabel[key] = id
				g.Nodes = append(g.Nodes, graph.Node{
					ID:         id,
					Kind:       graph.NodeEntity,
					Label:      label,
					Confidence: extractConfidence,
				})
			}
			ids = append(ids, id)
		}

		// Candidate edges: co-occurrence of adjacent mentions in a sentence.
		for i := 0; i+1 < len(ids); i++ {
			if ids[i] == ids[i+1] {
				continue
			}
			nextEdge++
			g.Edges = append(g.Edges, graph.Edge{
				ID:         fmt.Sprintf("e%d", nextEdge),
				Type:       "co_occurs",
				From:       ids[i],
				To:         ids[i+1],
				Confidence: coOccurConfidence,
			})
		}
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("candidate graph invalid: %w", err)
	}
	return &operator.ExtractOutput{Candidates: g}, nil
}

// splitSentences splits text on sentence terminators.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(cur.String())
			if s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// sentenceStopwords are capitalized words that start sentences without naming
// anything.
var sentenceStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "but": true,
	"he": true, "she": true, "it": true, "they": true, "we": true,
	"i": true, "this": true, "that": true, "there": true, "then": true,
	"when": true, "while": true, "after": true, "before": true, "in": true,
	"on": true, "at": true, "his": true, "her": true, "its": true,
	"their": true, "one": true, "no": true, "not": true, "so": true,
}

// capitalizedRuns finds maximal runs of capitalized words in a sentence,
// skipping sentence-initial stopwords.
func capitalizedRuns(sentence string) []string {
	words := strings.FieldsFunc(sentence, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '-'
	})

	var runs []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			runs = append(runs, strings.Join(cur, " "))
			cur = nil
		}
	}

	for i, w := range words {
		r := []rune(w)
		capital := len(r) > 0 && unicode.IsUpper(r[0])
		stop := sentenceStopwords[strings.ToLower(w)]
		if capital && !(i == 0 && stop) && !stop {
			cur = append(cur, w)
			continue
		}
		flush()
	}
	flush()
	return runs
}
