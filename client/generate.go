package client

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dkazancev/comfyui-go/workflow"
)

// GenerateImages runs the whole submission lifecycle: open a channel, queue
// the graph, follow its events to completion and fetch the recorded images.
// The channel is released on every path. A nil error means the job reached
// Completed; the slice may still be empty when the graph saved nothing.
func (c *Client) GenerateImages(ctx context.Context, graph *workflow.Graph, includePreviews bool, callbacks *TrackerCallbacks) ([]Artifact, error) {
	channel, err := c.OpenChannel(ctx)
	if err != nil {
		return nil, err
	}
	defer channel.Close()

	jobID, err := channel.Submit(ctx, graph)
	if err != nil {
		return nil, err
	}
	if err := NewTracker(jobID, graph, callbacks, c.logger).Track(ctx, channel); err != nil {
		return nil, err
	}
	return c.CollectImages(ctx, jobID, includePreviews)
}

// GenerateImagesWithInput uploads a local input image under the channel's
// client id before queueing, for img2img-style graphs that reference the
// upload by name.
func (c *Client) GenerateImagesWithInput(ctx context.Context, graph *workflow.Graph, inputPath string, includePreviews bool, callbacks *TrackerCallbacks) ([]Artifact, error) {
	channel, err := c.OpenChannel(ctx)
	if err != nil {
		return nil, err
	}
	defer channel.Close()

	if _, err := c.UploadImageFromPath(ctx, inputPath, UploadOptions{ClientID: channel.ClientID()}); err != nil {
		return nil, err
	}
	jobID, err := channel.Submit(ctx, graph)
	if err != nil {
		return nil, err
	}
	if err := NewTracker(jobID, graph, callbacks, c.logger).Track(ctx, channel); err != nil {
		return nil, err
	}
	return c.CollectImages(ctx, jobID, includePreviews)
}

// WarmModels queues the graph and waits for it to finish without collecting
// outputs, leaving the graph's models resident in server memory for the
// runs that follow.
func (c *Client) WarmModels(ctx context.Context, graph *workflow.Graph) error {
	channel, err := c.OpenChannel(ctx)
	if err != nil {
		return err
	}
	defer channel.Close()

	jobID, err := channel.Submit(ctx, graph)
	if err != nil {
		return err
	}
	return NewTracker(jobID, graph, nil, c.logger).Track(ctx, channel)
}

// SaveArtifacts writes collected files under outputDir, previews going to a
// temp/ subdirectory. A file that fails to write is logged and skipped;
// only a missing output directory is fatal.
func SaveArtifacts(artifacts []Artifact, outputDir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, artifact := range artifacts {
		dir := outputDir
		if artifact.Class == ArtifactTemp {
			dir = filepath.Join(outputDir, "temp")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(dir, artifact.FileName)
		if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
			logger.Error("saving image", "path", path, "error", err)
			continue
		}
		logger.Info("image saved", "path", path)
	}
	return nil
}
