package workflow

import "fmt"

// Well-known class types of the text2image workflow template. The negative
// prompt shares CLIPTextEncode with other encoders in the same graph, so its
// role matches only the node whose text input is still the empty string.
// That predicate reflects how current templates are authored; swap the vars
// out if yours differ.
var (
	RolePositivePrompt = Role{ClassType: "DPRandomGenerator"}
	RoleNegativePrompt = Role{
		ClassType: "CLIPTextEncode",
		Match: func(n *Node) bool {
			text, ok := n.Inputs["text"]
			return ok && text == ""
		},
	}
	RoleLatentImage = Role{ClassType: "EmptyLatentImage"}
	RoleSeed        = Role{ClassType: "Seed (rgthree)"}
	RoleLoRALoader  = Role{ClassType: "Power Lora Loader (rgthree)"}
)

// Text2ImageParams are the caller-facing knobs of the text2image template.
type Text2ImageParams struct {
	PositivePrompt string
	NegativePrompt string
	Width          int
	Height         int
	BatchSize      int
	Seed           int64
}

// DefaultText2ImageParams returns the template defaults: 512x512, one image,
// fixed seed.
func DefaultText2ImageParams() Text2ImageParams {
	return Text2ImageParams{
		Width:     512,
		Height:    512,
		BatchSize: 1,
		Seed:      42,
	}
}

// ApplyText2Image writes the parameters into the template's nodes: the
// positive prompt (with its lora tags stripped), the negative prompt, the
// latent dimensions and the seed. Any of those nodes missing is an error.
// The extracted LoRA references are returned for the caller to resolve and
// append with AddLoRAs.
func (g *Graph) ApplyText2Image(p Text2ImageParams) ([]LoRAReference, error) {
	loras, cleaned := ExtractLoRAs(p.PositivePrompt)

	id, _, err := g.FindNode(RolePositivePrompt)
	if err != nil {
		return nil, fmt.Errorf("positive prompt: %w", err)
	}
	if err := g.SetInputs(id, map[string]any{"text": cleaned}); err != nil {
		return nil, err
	}

	id, _, err = g.FindNode(RoleNegativePrompt)
	if err != nil {
		return nil, fmt.Errorf("negative prompt: %w", err)
	}
	if err := g.SetInputs(id, map[string]any{"text": p.NegativePrompt}); err != nil {
		return nil, err
	}

	id, _, err = g.FindNode(RoleLatentImage)
	if err != nil {
		return nil, fmt.Errorf("latent image: %w", err)
	}
	if err := g.ReplaceInputs(id, map[string]any{
		"width":      p.Width,
		"height":     p.Height,
		"batch_size": p.BatchSize,
	}); err != nil {
		return nil, err
	}

	id, _, err = g.FindNode(RoleSeed)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if err := g.SetInputs(id, map[string]any{"seed": p.Seed}); err != nil {
		return nil, err
	}

	return loras, nil
}
