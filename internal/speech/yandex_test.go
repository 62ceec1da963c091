package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testTokenManager(t *testing.T, iamURL string) *IAMTokenManager {
	t.Helper()
	m := NewIAMTokenManager("oauth-token")
	m.baseURL = iamURL
	return m
}

func TestIAMRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"iamToken": "iam-123"}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	m := testTokenManager(t, srv.URL)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if m.Token() != "iam-123" {
		t.Errorf("Expected token iam-123, got %q", m.Token())
	}
}

func TestIAMRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := testTokenManager(t, srv.URL)
	if err := m.Refresh(context.Background()); err == nil {
		t.Fatal("Expected error on 401")
	}
}

func TestRecognizeEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lang := r.URL.Query().Get("lang"); lang != "ru-RU" {
			t.Errorf("Expected lang ru-RU, got %q", lang)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"result": ""}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	c := NewYandexClient(testTokenManager(t, srv.URL), "folder-1")
	c.sttURL = srv.URL

	text, err := c.Recognize(context.Background(), []byte("audio"), "ru")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty transcript, got %q", text)
	}
}

func TestRecognizeResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lang := r.URL.Query().Get("lang"); lang != "kk-KK" {
			t.Errorf("Expected lang kk-KK, got %q", lang)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"result": "сәлем"}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	c := NewYandexClient(testTokenManager(t, srv.URL), "folder-1")
	c.sttURL = srv.URL

	text, err := c.Recognize(context.Background(), []byte("audio"), "kk")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "сәлем" {
		t.Errorf("Expected transcript, got %q", text)
	}
}

func TestSynthesizeVoiceSelection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		if voice := r.PostForm.Get("voice"); voice != "jane" {
			t.Errorf("Expected voice jane for unknown language, got %q", voice)
		}
		if format := r.PostForm.Get("format"); format != "mp3" {
			t.Errorf("Expected mp3 format, got %q", format)
		}
		if _, err := w.Write([]byte("mp3-bytes")); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	c := NewYandexClient(testTokenManager(t, srv.URL), "folder-1")
	c.ttsURL = srv.URL

	// Unknown language falls back to the Russian voice.
	audio, err := c.Synthesize(context.Background(), "привет", "en")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Errorf("Unexpected audio payload: %q", audio)
	}
}

func TestTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"translations": [{"text": "сәлеметсіз бе"}]}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	c := NewYandexClient(testTokenManager(t, srv.URL), "folder-1")
	c.translateURL = srv.URL

	text, err := c.Translate(context.Background(), "здравствуйте", "ru", "kk")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if text != "сәлеметсіз бе" {
		t.Errorf("Unexpected translation: %q", text)
	}
}

func TestTranslateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"translations": []}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	c := NewYandexClient(testTokenManager(t, srv.URL), "folder-1")
	c.translateURL = srv.URL

	if _, err := c.Translate(context.Background(), "привет", "ru", "kk"); err == nil {
		t.Fatal("Expected error for empty translations")
	}
}
