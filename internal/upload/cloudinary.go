package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/valyala/fastjson"

	"dmchat/internal/models"
)

const cloudinaryBase = "https://api.cloudinary.com/v1_1"

// Cloudinary uploads unsigned images with an upload preset.
type Cloudinary struct {
	endpoint string
	preset   string
	client   *http.Client
	parsers  fastjson.ParserPool
}

// NewCloudinary builds an uploader for cloudName. baseURL overrides the API
// root and may be empty.
func NewCloudinary(cloudName, preset, baseURL string) (*Cloudinary, error) {
	if cloudName == "" || preset == "" {
		return nil, fmt.Errorf("cloudinary configuration is missing")
	}
	if baseURL == "" {
		baseURL = cloudinaryBase
	}
	return &Cloudinary{
		endpoint: fmt.Sprintf("%s/%s/image/upload", baseURL, cloudName),
		preset:   preset,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, a Attachment) (string, error) {
	if err := ValidateImage(a); err != nil {
		return "", err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", a.Filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUpload, err)
	}
	if _, err := fw.Write(a.Data); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUpload, err)
	}
	if err := w.WriteField("upload_preset", c.preset); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUpload, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUpload, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUpload, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUpload, err)
	}

	p := c.parsers.Get()
	defer c.parsers.Put(p)
	v, err := p.ParseBytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: status %d: %v", models.ErrUpload, resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(v.GetStringBytes("error", "message"))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s", models.ErrUpload, msg)
	}

	url := string(v.GetStringBytes("secure_url"))
	if url == "" {
		return "", fmt.Errorf("%w: response has no secure_url", models.ErrUpload)
	}
	return url, nil
}
