package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const text2imageTemplate = `{
	"1": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "sd15.safetensors"}},
	"2": {"class_type": "DPRandomGenerator", "inputs": {"text": ""}},
	"3": {"class_type": "CLIPTextEncode", "inputs": {"text": "old positive", "clip": ["1", 1]}},
	"4": {"class_type": "CLIPTextEncode", "inputs": {"text": "", "clip": ["1", 1]}},
	"5": {"class_type": "EmptyLatentImage", "inputs": {"width": 64, "height": 64, "batch_size": 1}},
	"6": {"class_type": "Seed (rgthree)", "inputs": {"seed": 0}},
	"7": {"class_type": "Power Lora Loader (rgthree)", "inputs": {"model": ["1", 0]}},
	"8": {"class_type": "KSampler", "inputs": {"steps": 20}},
	"9": {"class_type": "SaveImage", "inputs": {"images": ["8", 0]}}
}`

func templateGraph(t *testing.T) *Graph {
	t.Helper()
	g := &Graph{}
	require.NoError(t, json.Unmarshal([]byte(text2imageTemplate), g))
	return g
}

func TestApplyText2Image(t *testing.T) {
	g := templateGraph(t)

	params := DefaultText2ImageParams()
	params.PositivePrompt = "a castle <lora:anime:0.8> at dusk"
	params.NegativePrompt = "blurry"
	params.Width = 768
	params.Height = 512
	params.Seed = 1234

	loras, err := g.ApplyText2Image(params)
	require.NoError(t, err)
	assert.Equal(t, []LoRAReference{{Name: "anime", Weight: 0.8}}, loras)

	assert.Equal(t, "a castle  at dusk", g.Node("2").Inputs["text"])
	assert.Equal(t, "blurry", g.Node("4").Inputs["text"], "empty-text encoder gets the negative prompt")
	assert.Equal(t, "old positive", g.Node("3").Inputs["text"], "occupied encoder untouched")
	assert.Equal(t, map[string]any{"width": 768, "height": 512, "batch_size": 1}, g.Node("5").Inputs)
	assert.Equal(t, int64(1234), g.Node("6").Inputs["seed"])
}

func TestApplyText2ImageMissingPrimaryNode(t *testing.T) {
	for _, drop := range []string{"2", "4", "5", "6"} {
		g := NewGraph()
		full := templateGraph(t)
		for _, id := range full.NodeIDs() {
			if id == drop {
				continue
			}
			g.AddNode(id, full.Node(id))
		}
		_, err := g.ApplyText2Image(DefaultText2ImageParams())
		assert.ErrorIs(t, err, ErrNodeNotFound, "dropping node %s must be fatal", drop)
	}
}

func TestDefaultText2ImageParams(t *testing.T) {
	p := DefaultText2ImageParams()
	assert.Equal(t, 512, p.Width)
	assert.Equal(t, 512, p.Height)
	assert.Equal(t, 1, p.BatchSize)
	assert.Equal(t, int64(42), p.Seed)
}
