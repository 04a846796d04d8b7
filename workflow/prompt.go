package workflow

import (
	"regexp"
	"strconv"
	"strings"
)

var loraTagPattern = regexp.MustCompile(`<lora:([a-zA-Z0-9\-_.]+):([\d.]+)>`)

// ExtractLoRAs pulls inline <lora:name:weight> tags out of a prompt string.
// It returns the references in order of appearance (duplicates kept) and the
// prompt with every tag removed and leading/trailing whitespace trimmed.
// Interior spacing left behind by tag removal is not collapsed.
func ExtractLoRAs(prompt string) ([]LoRAReference, string) {
	matches := loraTagPattern.FindAllStringSubmatch(prompt, -1)
	refs := make([]LoRAReference, 0, len(matches))
	for _, m := range matches {
		weight, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			// a malformed weight like "1.2.3" still matched the tag shape
			continue
		}
		refs = append(refs, LoRAReference{Name: m[1], Weight: weight})
	}
	cleaned := strings.TrimSpace(loraTagPattern.ReplaceAllString(prompt, ""))
	return refs, cleaned
}
