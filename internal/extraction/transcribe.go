package extraction

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// Transcribe converts recorded meal audio to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio", ErrExtraction)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("model", c.transcribeModel)
	_ = writer.WriteField("language", c.language)
	_ = writer.WriteField("response_format", "text")

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio.m4a"`)
	header.Set("Content-Type", "audio/mp4")
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("%w: build multipart: %w", ErrExtraction, err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("%w: build multipart: %w", ErrExtraction, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: build multipart: %w", ErrExtraction, err)
	}

	raw, err := c.send(ctx, "/v1/audio/transcriptions", writer.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("%w: empty transcription", ErrMalformedResponse)
	}
	c.log.Debug("audio transcribed", "chars", len(text))
	return text, nil
}
