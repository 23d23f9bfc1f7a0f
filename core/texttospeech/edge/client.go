// Package edge synthesizes speech through the Edge read-aloud websocket
// service. Audio arrives as binary frames carrying an mp3 payload behind a
// small header; a "turn.end" text frame marks the end of a synthesis turn.
package edge

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voxpet/voxpet-core/core/audio"
	"github.com/voxpet/voxpet-core/core/texttospeech"
)

const (
	serviceHost = "speech.platform.bing.com"
	servicePath = "/consumer/speech/synthesize/readaloud/edge/v1"

	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"

	outputFormat = "audio-24khz-48kbitrate-mono-mp3"
)

type Client struct {
	files *audio.FileManager

	rate   string
	volume string

	dialer *websocket.Dialer
}

type ClientOption func(*Client)

// WithRate adjusts the speaking rate, e.g. "+10%" or "-20%".
func WithRate(rate string) ClientOption {
	return func(c *Client) { c.rate = rate }
}

// WithVolume adjusts the speaking volume, e.g. "+0%".
func WithVolume(volume string) ClientOption {
	return func(c *Client) { c.volume = volume }
}

func NewClient(files *audio.FileManager, opts ...ClientOption) *Client {
	c := &Client{
		files:  files,
		rate:   "+0%",
		volume: "+0%",
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize renders text to an mp3 file and returns its path. When no
// output path is requested a fresh file is allocated through the file
// manager and registered for cleanup.
func (c *Client) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) (string, error) {
	options := texttospeech.SynthesisOptions{Style: texttospeech.VoiceStyleNormal}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "edge.Synthesize")
	defer span.End()
	span.SetAttributes(
		attribute.String("tts.voice", texttospeech.Voice(options.Style)),
		attribute.Int("tts.text_length", len([]rune(text))),
	)

	outputPath := options.OutputPath
	if outputPath == "" {
		outputPath = c.files.CreateFile(".mp3")
	}

	if err := c.synthesizeToFile(ctx, text, texttospeech.Voice(options.Style), outputPath); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		_ = os.Remove(outputPath)
		return "", err
	}

	return outputPath, nil
}

func (c *Client) synthesizeToFile(ctx context.Context, text, voice, outputPath string) error {
	conn, err := c.connectWebsocket(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")

	if err := conn.WriteMessage(websocket.TextMessage, speechConfigMessage()); err != nil {
		return fmt.Errorf("failed to send speech config: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, ssmlMessage(requestID, voice, c.rate, c.volume, text)); err != nil {
		return fmt.Errorf("failed to send ssml request: %w", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer out.Close()

	received := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read error: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			payload, err := binaryPayload(msg)
			if err != nil {
				logger.Warn("Dropping malformed audio frame", "error", err)
				continue
			}
			if _, err := out.Write(payload); err != nil {
				return fmt.Errorf("failed to write audio: %w", err)
			}
			received += len(payload)
		case websocket.TextMessage:
			if headerPath(msg) == "turn.end" {
				if received == 0 {
					return fmt.Errorf("synthesis produced no audio")
				}
				return nil
			}
		}
	}
}

func (c *Client) connectWebsocket(ctx context.Context) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("TrustedClientToken", trustedClientToken)
	urlValues.Set("ConnectionId", strings.ReplaceAll(uuid.NewString(), "-", ""))

	conn, _, err := c.dialer.DialContext(ctx,
		(&url.URL{
			Scheme: "wss",
			Host:   serviceHost, Path: servicePath,
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{
			"Origin": {"chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to speech service: %w", err)
	}
	return conn, nil
}

func speechConfigMessage() []byte {
	var b strings.Builder
	b.WriteString("X-Timestamp:" + timestamp() + "\r\n")
	b.WriteString("Content-Type:application/json; charset=utf-8\r\n")
	b.WriteString("Path:speech.config\r\n\r\n")
	b.WriteString(`{"context":{"synthesis":{"audio":{"metadataoptions":` +
		`{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},` +
		`"outputFormat":"` + outputFormat + `"}}}}`)
	return []byte(b.String())
}

func ssmlMessage(requestID, voice, rate, volume, text string) []byte {
	var b strings.Builder
	b.WriteString("X-RequestId:" + requestID + "\r\n")
	b.WriteString("Content-Type:application/ssml+xml\r\n")
	b.WriteString("X-Timestamp:" + timestamp() + "\r\n")
	b.WriteString("Path:ssml\r\n\r\n")
	b.WriteString(`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='zh-CN'>`)
	b.WriteString(`<voice name='` + voice + `'>`)
	b.WriteString(`<prosody pitch='+0Hz' rate='` + rate + `' volume='` + volume + `'>`)
	b.WriteString(escapeXML(text))
	b.WriteString(`</prosody></voice></speak>`)
	return []byte(b.String())
}

func timestamp() string {
	return time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

func escapeXML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// binaryPayload strips the frame header from a binary message. The first two
// bytes carry the big-endian header length, followed by that many header
// bytes and then the audio payload.
func binaryPayload(msg []byte) ([]byte, error) {
	if len(msg) < 2 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(msg))
	}
	headerLen := int(binary.BigEndian.Uint16(msg[:2]))
	if 2+headerLen > len(msg) {
		return nil, fmt.Errorf("header length %d exceeds frame size %d", headerLen, len(msg))
	}
	return msg[2+headerLen:], nil
}

// headerPath extracts the Path header from a text frame.
func headerPath(msg []byte) string {
	for _, line := range strings.Split(string(msg), "\r\n") {
		if path, ok := strings.CutPrefix(line, "Path:"); ok {
			return strings.TrimSpace(path)
		}
	}
	return ""
}
