package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider is the speech/translation adapter contract the orchestrator
// depends on.
type Provider interface {
	// Recognize transcribes audio in the given language variant. An empty
	// transcript with a nil error means the recording carried no speech.
	Recognize(ctx context.Context, audio []byte, lang string) (string, error)

	// Synthesize renders text as mp3 audio in the given language.
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)

	// Translate translates text between languages.
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

const (
	sttURL       = "https://stt.api.cloud.yandex.net/speech/v1/stt:recognize"
	ttsURL       = "https://tts.api.cloud.yandex.net/speech/v1/tts:synthesize"
	translateURL = "https://translate.api.cloud.yandex.net/translate/v2/translate"
)

// voiceSettings maps a language code onto SpeechKit synthesis parameters.
var voiceSettings = map[string]struct {
	lang    string
	voice   string
	emotion string
}{
	"ru": {lang: "ru-RU", voice: "jane", emotion: "good"},
	"kk": {lang: "kk-KK", voice: "amira", emotion: "neutral"},
}

// recognizeLang maps a language code onto the STT language variant.
var recognizeLang = map[string]string{
	"ru": "ru-RU",
	"kk": "kk-KK",
}

// YandexClient implements Provider against the Yandex Cloud APIs.
type YandexClient struct {
	tokens     *IAMTokenManager
	folderID   string
	httpClient *http.Client

	sttURL       string
	ttsURL       string
	translateURL string
}

// NewYandexClient creates a SpeechKit/Translate client.
func NewYandexClient(tokens *IAMTokenManager, folderID string) *YandexClient {
	return &YandexClient{
		tokens:       tokens,
		folderID:     folderID,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		sttURL:       sttURL,
		ttsURL:       ttsURL,
		translateURL: translateURL,
	}
}

// Recognize transcribes audio via SpeechKit STT.
func (c *YandexClient) Recognize(ctx context.Context, audio []byte, lang string) (string, error) {
	variant, ok := recognizeLang[lang]
	if !ok {
		variant = recognizeLang["ru"]
	}

	endpoint := fmt.Sprintf("%s?folderId=%s&lang=%s", c.sttURL, url.QueryEscape(c.folderID), url.QueryEscape(variant))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build STT request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.Token())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("STT request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("STT request failed: status %d", resp.StatusCode)
	}

	var parsed struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode STT response: %w", err)
	}

	if parsed.Result == "" {
		slog.Info("speech recognition returned empty result", "lang", variant)
	}
	return parsed.Result, nil
}

// Synthesize renders text as mp3 audio via SpeechKit TTS.
func (c *YandexClient) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	settings, ok := voiceSettings[lang]
	if !ok {
		settings = voiceSettings["ru"]
	}

	form := url.Values{
		"text":            {text},
		"lang":            {settings.lang},
		"voice":           {settings.voice},
		"emotion":         {settings.emotion},
		"folderId":        {c.folderID},
		"format":          {"mp3"},
		"sampleRateHertz": {"48000"},
		"speed":           {"1.2"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ttsURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build TTS request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.Token())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TTS request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TTS request failed: status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read TTS response: %w", err)
	}
	return audio, nil
}

// Translate translates text via Yandex Translate.
func (c *YandexClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	payload := map[string]any{
		"folder_id":          c.folderID,
		"texts":              []string{text},
		"sourceLanguageCode": sourceLang,
		"targetLanguageCode": targetLang,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.translateURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.Token())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate request failed: status %d", resp.StatusCode)
	}

	var parsed struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	if len(parsed.Translations) == 0 {
		return "", fmt.Errorf("translate response contained no translations")
	}
	return parsed.Translations[0].Text, nil
}
