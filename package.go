// Package comfyuigo is a Go client for the ComfyUI image generation backend.
// It submits API-format workflow graphs over HTTP, follows execution progress
// pushed over a per-job WebSocket channel, and retrieves the produced images.
// The workflow package edits graphs before submission: prompt text, latent
// dimensions, seed, and LoRA slots extracted from inline <lora:name:weight>
// tags.
package comfyuigo
