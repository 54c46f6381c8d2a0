package reading

import (
	"math"
	"strconv"
	"strings"
)

// scaleReadPrompt is the shared prompt used by all LLM providers for reading scale displays
const scaleReadPrompt = `Look at the digital scale in this image. Identify the numeric weight value shown on the display.

Return ONLY the number, for example 1.25 or 0.8.
- Do not return units.
- Do not add any other words or punctuation.
- If you cannot clearly see a number on a display, return "N/A".`

// notAvailable is the reply the prompt asks for when nothing can be read
const notAvailable = "N/A"

// ParseReading interprets a model reply. Anything other than a single finite
// decimal number is unreadable: "N/A", unit suffixes, several tokens, prose.
func ParseReading(text string) Result {
	raw := text

	// Remove markdown code blocks if present
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	text = strings.Trim(text, `"'`)
	text = strings.TrimSuffix(text, ".")
	text = strings.TrimSpace(text)

	if text == "" || strings.EqualFold(text, notAvailable) {
		return Unreadable(raw)
	}
	if len(strings.Fields(text)) != 1 {
		return Unreadable(raw)
	}

	// A lone comma is a decimal separator on many scale displays.
	if strings.Count(text, ",") == 1 && !strings.Contains(text, ".") {
		text = strings.Replace(text, ",", ".", 1)
	}

	for _, r := range text {
		if !strings.ContainsRune("0123456789.+-", r) {
			return Unreadable(raw)
		}
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Unreadable(raw)
	}

	return Result{Value: v, Readable: true, Raw: raw}
}
