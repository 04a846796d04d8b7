package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
)

// ErrLoRANotFound is returned by resolvers for names with no matching file.
// It never aborts a submission; unresolved references are skipped.
var ErrLoRANotFound = errors.New("lora not found")

// LoRAReference names a LoRA pulled from a prompt tag and the strength to
// apply it with.
type LoRAReference struct {
	Name   string
	Weight float64
}

// LoRAResolver maps a LoRA name from a prompt tag to the path the server
// loads it by.
type LoRAResolver interface {
	Resolve(name string) (string, error)
}

var loraSlotPattern = regexp.MustCompile(`^lora_(\d+)$`)

// AddLoRAs appends the resolved references to the graph's LoRA loader node
// as lora_<n> slot inputs. Numbering continues from the highest index
// already present, so existing slots are never displaced. References the
// resolver cannot locate are logged and skipped without consuming an index.
// Returns the highest slot index after the append, and ErrNodeNotFound when
// the graph has no loader node (the graph is left untouched; callers decide
// whether that matters).
func (g *Graph) AddLoRAs(refs []LoRAReference, resolver LoRAResolver, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	_, node, err := g.FindNode(RoleLoRALoader)
	if err != nil {
		return 0, err
	}
	if node.Inputs == nil {
		node.Inputs = make(map[string]any)
	}

	last := 0
	for name := range node.Inputs {
		m := loraSlotPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if idx, err := strconv.Atoi(m[1]); err == nil && idx > last {
			last = idx
		}
	}

	for _, ref := range refs {
		path, err := resolver.Resolve(ref.Name)
		if err != nil {
			logger.Warn("skipping lora", "name", ref.Name, "error", err)
			continue
		}
		last++
		node.Inputs[fmt.Sprintf("lora_%d", last)] = map[string]any{
			"on":       true,
			"lora":     path,
			"strength": ref.Weight,
		}
		logger.Info("added lora", "name", ref.Name, "strength", ref.Weight, "slot", last)
	}
	return last, nil
}
