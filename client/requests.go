package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

/*
Endpoints this client consumes:

	POST /upload/image
	POST /prompt
	POST /interrupt
	POST /free
	GET  /view?filename=&subfolder=&type=
	GET  /history/{prompt_id}
	GET  /object_info/{node_class}
*/

// ImageType is the server-side storage class of an image.
type ImageType string

const (
	InputImage  ImageType = "input"
	TempImage   ImageType = "temp"
	OutputImage ImageType = "output"
)

// UploadOptions control the /upload/image form fields.
type UploadOptions struct {
	Type      ImageType // defaults to InputImage
	Subfolder string
	Overwrite bool
	ClientID  string
}

// UploadResult is the descriptor returned by /upload/image. Name is the
// file name the server chose, which may differ from the requested one.
type UploadResult struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// History maps prompt ids to their recorded outputs, as returned by
// GET /history/{prompt_id}.
type History map[string]HistoryEntry

type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
}

type NodeOutput struct {
	Images []ImageOutput `json:"images"`
}

// ImageOutput locates one produced image on the server.
type ImageOutput struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// UploadImage sends image bytes to the server's input storage.
func (c *Client) UploadImage(ctx context.Context, r io.Reader, name string, opts UploadOptions) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	formFile, err := mw.CreateFormFile("image", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(formFile, r); err != nil {
		return nil, err
	}

	imageType := opts.Type
	if imageType == "" {
		imageType = InputImage
	}
	_ = mw.WriteField("type", string(imageType))
	_ = mw.WriteField("overwrite", strconv.FormatBool(opts.Overwrite))
	if opts.Subfolder != "" {
		_ = mw.WriteField("subfolder", opts.Subfolder)
	}
	if opts.ClientID != "" {
		_ = mw.WriteField("client_id", opts.ClientID)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/upload/image"), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload %s: %s", name, resp.Status)
	}

	result := &UploadResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	c.logger.Info("image uploaded", "name", result.Name, "server", c.serverAddress)
	return result, nil
}

// UploadImageFromPath uploads a local file under its base name.
func (c *Client) UploadImageFromPath(ctx context.Context, path string, opts UploadOptions) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.UploadImage(ctx, f, filepath.Base(path), opts)
}

// GetImage fetches the raw bytes of a stored image.
func (c *Client) GetImage(ctx context.Context, filename, subfolder, imageType string) ([]byte, error) {
	params := url.Values{}
	params.Add("filename", filename)
	params.Add("subfolder", subfolder)
	params.Add("type", imageType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/view")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("view %s: %s", filename, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// GetHistory fetches the result manifest recorded for a prompt id.
func (c *Client) GetHistory(ctx context.Context, jobID string) (History, error) {
	history := History{}
	if err := c.getJSON(ctx, "/history/"+jobID, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// GetNodeInfo fetches the server's metadata for one node class.
func (c *Client) GetNodeInfo(ctx context.Context, nodeClass string) (map[string]any, error) {
	info := map[string]any{}
	if err := c.getJSON(ctx, "/object_info/"+url.PathEscape(nodeClass), &info); err != nil {
		return nil, err
	}
	return info, nil
}

// Interrupt asks the server to stop whatever prompt is currently executing.
// Best effort; it is not part of the tracking protocol.
func (c *Client) Interrupt(ctx context.Context) error {
	return c.postJSON(ctx, "/interrupt", struct{}{})
}

// FreeMemory asks the server to drop cached state.
func (c *Client) FreeMemory(ctx context.Context, unloadModels, freeMemory bool) error {
	return c.postJSON(ctx, "/free", map[string]bool{
		"unload_models": unloadModels,
		"free_memory":   freeMemory,
	})
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: %s", path, resp.Status)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
