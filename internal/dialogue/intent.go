package dialogue

import "strings"

// TransferIntentDetector decides whether an utterance asks for a human.
type TransferIntentDetector interface {
	DetectsTransferIntent(utterance string) bool
}

var DefaultTransferKeywords = []string{"transfer", "speak to someone", "human", "real person", "manager"}

// KeywordDetector matches case-insensitive substrings.
type KeywordDetector struct {
	keywords []string
}

func NewKeywordDetector(keywords ...string) KeywordDetector {
	if len(keywords) == 0 {
		keywords = DefaultTransferKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return KeywordDetector{keywords: lowered}
}

func (d KeywordDetector) DetectsTransferIntent(utterance string) bool {
	u := strings.ToLower(utterance)
	for _, k := range d.keywords {
		if strings.Contains(u, k) {
			return true
		}
	}
	return false
}
