package client

import (
	"context"
	"fmt"
	"sort"
)

// ArtifactClass distinguishes final outputs from intermediate previews.
type ArtifactClass string

const (
	ArtifactOutput ArtifactClass = "output"
	ArtifactTemp   ArtifactClass = "temp"
)

// Artifact is one file a job produced, with its bytes already fetched.
// The caller owns the Data slice.
type Artifact struct {
	FileName  string
	Subfolder string
	Class     ArtifactClass
	Data      []byte
}

// CollectImages fetches the images recorded in the job's history manifest.
// Output-class images are always included; temp-class previews only when
// includePreviews; other classes are ignored. A manifest fetch failure
// aborts collection. A single image failing to download is logged and
// dropped, and collection continues.
func (c *Client) CollectImages(ctx context.Context, jobID string, includePreviews bool) ([]Artifact, error) {
	history, err := c.GetHistory(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", jobID, err)
	}
	entry := history[jobID]

	nodeIDs := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	artifacts := []Artifact{}
	for _, nodeID := range nodeIDs {
		for _, img := range entry.Outputs[nodeID].Images {
			class := ArtifactClass(img.Type)
			switch class {
			case ArtifactOutput:
			case ArtifactTemp:
				if !includePreviews {
					continue
				}
			default:
				continue
			}

			data, err := c.GetImage(ctx, img.Filename, img.Subfolder, img.Type)
			if err != nil {
				c.logger.Error("fetching image", "filename", img.Filename, "node", nodeID, "error", err)
				continue
			}
			artifacts = append(artifacts, Artifact{
				FileName:  img.Filename,
				Subfolder: img.Subfolder,
				Class:     class,
				Data:      data,
			})
		}
	}
	return artifacts, nil
}
