package dialogue

import (
	"fmt"
	"sort"
	"strings"
)

// fallbackResponse produces the assistant-visible prose after a
// tool-calling turn. It is deterministic on (stage, extracted params)
// so one completion per user turn suffices; a second LM round-trip for
// prose adds latency without adding information.
func fallbackResponse(stage Stage, params map[string]any) string {
	known := knownParams(params)

	switch stage {
	case StageGatheringCompetitors:
		if len(known) > 0 {
			return fmt.Sprintf("Noted - I have %s so far. Are there any comparable products or competitors you have in mind?", joinKnown(known))
		}
		return "To get started: are there any comparable products or competitors you have in mind?"

	case StageGatheringTimeframe:
		if hasParam(params, "budget") {
			return "Thanks. When would you like this delivered - is there a hard deadline or a rough timeframe?"
		}
		return "Thanks. What timeframe are you working to, and do you have a budget in mind?"

	case StageGatheringPlatforms:
		return "Almost there. Which platforms should this target - web, iOS, Android, desktop, or an API?"

	case StageFinalizing:
		if len(known) > 0 {
			return fmt.Sprintf("Great - I have everything I need (%s). I'll put the specification together now; one moment.", joinKnown(known))
		}
		return "Great - I have everything I need. I'll put the specification together now; one moment."

	case StageCompleted:
		return "Your task specification is complete and has been submitted for matching. You can poll its status at any time."

	default:
		return "Thanks - I've noted that. Could you tell me a bit more about your requirements?"
	}
}

// paramLabels maps extracted-parameter keys to the nouns used in
// fallback prose, in presentation order.
var paramLabels = []struct {
	key   string
	label string
}{
	{"refined_description", "a refined description"},
	{"competitors", "competitors"},
	{"timeframe", "a timeframe"},
	{"budget", "a budget"},
	{"platforms", "target platforms"},
	{"key_features", "key features"},
	{"target_audience", "a target audience"},
	{"quality", "a quality expectation"},
}

func knownParams(params map[string]any) []string {
	var known []string
	for _, p := range paramLabels {
		if hasParam(params, p.key) {
			known = append(known, p.label)
		}
	}
	return known
}

// hasParam reports whether the key holds a non-empty value.
func hasParam(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) != ""
	case []any:
		return len(val) > 0
	case []string:
		return len(val) > 0
	case float64:
		return val > 0
	case int:
		return val > 0
	default:
		return true
	}
}

func joinKnown(known []string) string {
	switch len(known) {
	case 0:
		return ""
	case 1:
		return known[0]
	case 2:
		return known[0] + " and " + known[1]
	default:
		return strings.Join(known[:len(known)-1], ", ") + ", and " + known[len(known)-1]
	}
}

// missingParams lists tracked parameter keys absent from the bag, in
// stable order. Used for logging dialogue progress.
func missingParams(params map[string]any) []string {
	var missing []string
	for _, p := range paramLabels {
		if !hasParam(params, p.key) {
			missing = append(missing, p.key)
		}
	}
	sort.Strings(missing)
	return missing
}
