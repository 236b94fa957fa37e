package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"Genie/core"
	"Genie/lib/sl"

	openai "github.com/sashabaranov/go-openai"
)

const maxImageBytes = 20 << 20

// newImageRequest asks for base64 payloads where the model lets us choose;
// gpt-image models always answer with base64 and reject the parameter.
func newImageRequest(model, size, prompt string) openai.ImageRequest {
	req := openai.ImageRequest{
		Model:  model,
		Prompt: prompt,
		N:      1,
		Size:   size,
	}
	if strings.HasPrefix(model, "dall-e") {
		req.ResponseFormat = openai.CreateImageResponseFormatB64JSON
	}
	return req
}

func (c *ChatGPT) GenerateImage(ctx context.Context, userId int64, prompt string) ([]byte, error) {
	resp, err := c.client.CreateImage(ctx, newImageRequest(c.conf.ImageModel, c.conf.ImageSize, prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: image generation: %w", core.ErrProvider, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: image generation: empty data", core.ErrProvider)
	}
	data := resp.Data[0]

	var image []byte
	switch {
	case data.B64JSON != "":
		image, err = base64.StdEncoding.DecodeString(data.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding image: %w", core.ErrProvider, err)
		}
		if int64(len(image)) > c.imageLimit {
			return nil, fmt.Errorf("%w: image larger than %d bytes", core.ErrProvider, c.imageLimit)
		}
	case data.URL != "":
		image, err = c.download(ctx, data.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrProvider, err)
		}
	default:
		return nil, fmt.Errorf("%w: image generation: no payload", core.ErrProvider)
	}

	c.log.With(
		sl.User(userId),
		slog.String("model", c.conf.ImageModel),
		slog.Int("bytes", len(image)),
	).Info("image generated")
	return image, nil
}

func (c *ChatGPT) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("making image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("closing image body", sl.Err(err))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading image: status %d", resp.StatusCode)
	}
	// one byte over the limit tells a full image from a cut one
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.imageLimit+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if int64(len(body)) > c.imageLimit {
		return nil, fmt.Errorf("downloading image: larger than %d bytes", c.imageLimit)
	}
	return body, nil
}
