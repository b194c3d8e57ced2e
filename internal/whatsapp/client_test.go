package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"carescribe/internal/config"
)

func testClient(base string) *Client {
	return NewClient(ClientConfig{
		Config: config.WhatsAppConfig{
			APIBase:       base,
			APIVersion:    "v21.0",
			AccessToken:   "test-token",
			PhoneNumberID: "12345",
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestFormatPhoneNumber(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"whatsapp:40736259759", "+40736259759"},
		{"40736259759", "+40736259759"},
		{"+40736259759", "+40736259759"},
		{"  whatsapp:+1234  ", "+1234"},
		{"", ""},
	}
	for _, c := range cases {
		if got := FormatPhoneNumber(c.in); got != c.want {
			t.Errorf("FormatPhoneNumber(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSend_RequestShape(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"messages":[{"id":"wamid.X"}]}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if err := c.Send(context.Background(), "40736259759", "hello there"); err != nil {
		t.Fatal(err)
	}

	if gotPath != "/v21.0/12345/messages" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotBody["messaging_product"] != "whatsapp" || gotBody["type"] != "text" {
		t.Errorf("unexpected envelope: %+v", gotBody)
	}
	if gotBody["to"] != "+40736259759" {
		t.Errorf("recipient must be normalized, got %v", gotBody["to"])
	}
	text, _ := gotBody["text"].(map[string]any)
	if text["body"] != "hello there" {
		t.Errorf("unexpected text body: %v", text)
	}
}

func TestSend_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Invalid OAuth access token"}}`)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Send(context.Background(), "40736259759", "hi")
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestResolveURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v21.0/MEDIA42" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token")
		}
		io.WriteString(w, `{"url":"https://cdn.example/file.ogg","mime_type":"audio/ogg"}`)
	}))
	defer srv.Close()

	url, err := testClient(srv.URL).ResolveURL(context.Background(), "MEDIA42")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://cdn.example/file.ogg" {
		t.Errorf("unexpected url %q", url)
	}
}

func TestResolveURL_EmptyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).ResolveURL(context.Background(), "MEDIA42"); err == nil {
		t.Fatal("expected error when metadata has no url")
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("download must carry the bearer token")
		}
		w.Write([]byte("OggS..."))
	}))
	defer srv.Close()

	data, err := testClient(srv.URL).Download(context.Background(), srv.URL+"/file.ogg")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "OggS..." {
		t.Errorf("unexpected bytes %q", data)
	}
}

func TestDownload_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Download(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error on empty body")
	}
}

func TestPayload_DecodeAudioMessage(t *testing.T) {
	raw := `{
	  "entry": [{"changes": [{"value": {
	    "messages": [{
	      "from": "40736259759",
	      "id": "wamid.ABC",
	      "type": "audio",
	      "audio": {"id": "M1", "mime_type": "audio/ogg; codecs=opus"}
	    }]
	  }}]}]
	}`

	var payload Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatal(err)
	}
	msg := payload.Entry[0].Changes[0].Value.Messages[0]
	if msg.From != "40736259759" || msg.Type != "audio" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Audio == nil || msg.Audio.ID != "M1" || msg.Audio.MimeType != "audio/ogg; codecs=opus" {
		t.Errorf("audio attachment not decoded: %+v", msg.Audio)
	}
}
