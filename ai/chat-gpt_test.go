package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"Genie/core"
	"Genie/storage"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type fakeOpenAI struct {
	server       *httptest.Server
	lastChat     openai.ChatCompletionRequest
	lastImage    openai.ImageRequest
	chatStatus   int
	imageAsURL   bool
	emptyChoices bool
}

func newFakeOpenAI(t *testing.T) *fakeOpenAI {
	f := &fakeOpenAI{chatStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastChat))
		w.Header().Set("Content-Type", "application/json")
		if f.chatStatus != http.StatusOK {
			w.WriteHeader(f.chatStatus)
			_, _ = io.WriteString(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
			return
		}
		if f.emptyChoices {
			_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	})
	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastImage))
		w.Header().Set("Content-Type", "application/json")
		item := map[string]string{"b64_json": base64.StdEncoding.EncodeToString(pngBytes)}
		if f.imageAsURL {
			item = map[string]string{"url": f.server.URL + "/files/cat.png"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"created": 1, "data": []any{item}})
	})
	mux.HandleFunc("/files/cat.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newTestChat(t *testing.T, f *fakeOpenAI, imageModel string) (*ChatGPT, *storage.MemoryStorage) {
	conf := &core.Config{
		OpenAIApiKey:   "sk-test",
		OpenAIBaseURL:  f.server.URL,
		ImageModel:     imageModel,
		ImageSize:      "1024x1024",
		RequestTimeout: 5,
	}
	store := storage.NewMemoryStorage()
	return NewChat(conf, slog.New(slog.NewTextHandler(io.Discard, nil)), store), store
}

func TestGetResponse_RecordsHistory(t *testing.T) {
	f := newFakeOpenAI(t)
	chat, store := newTestChat(t, f, "gpt-image-1")
	ctx := context.Background()

	chat.SetTopic(1, "ping pong")
	reply, err := chat.GetResponse(ctx, 1, "gpt-4o-mini", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)
	assert.Equal(t, "gpt-4o-mini", f.lastChat.Model)
	require.Len(t, f.lastChat.Messages, 2)
	assert.Contains(t, f.lastChat.Messages[0].Content, "Subject: ping pong")

	_, err = chat.GetResponse(ctx, 1, "gpt-4o", "again")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", f.lastChat.Model)
	require.Len(t, f.lastChat.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleUser, f.lastChat.Messages[1].Role)
	assert.Equal(t, "ping", f.lastChat.Messages[1].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, f.lastChat.Messages[2].Role)
	assert.Equal(t, "again", f.lastChat.Messages[3].Content)

	dc, err := store.GetUserContext(1)
	require.NoError(t, err)
	assert.Len(t, dc.Messages, 4)

	chat.ClearContext(1)
	dc, err = store.GetUserContext(1)
	require.NoError(t, err)
	assert.Nil(t, dc)
}

func TestGetResponse_ProviderErrors(t *testing.T) {
	f := newFakeOpenAI(t)
	chat, store := newTestChat(t, f, "gpt-image-1")
	ctx := context.Background()

	f.chatStatus = http.StatusInternalServerError
	_, err := chat.GetResponse(ctx, 1, "gpt-4o-mini", "ping")
	assert.ErrorIs(t, err, core.ErrProvider)

	f.chatStatus = http.StatusOK
	f.emptyChoices = true
	_, err = chat.GetResponse(ctx, 1, "gpt-4o-mini", "ping")
	assert.ErrorIs(t, err, core.ErrProvider)

	// failed exchanges leave no history behind
	dc, err := store.GetUserContext(1)
	require.NoError(t, err)
	assert.Nil(t, dc)
}

func TestGenerateImage_Base64(t *testing.T) {
	f := newFakeOpenAI(t)
	chat, _ := newTestChat(t, f, "gpt-image-1")

	image, err := chat.GenerateImage(context.Background(), 1, "a cat")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, image)
	assert.Equal(t, "a cat", f.lastImage.Prompt)
	assert.Equal(t, "gpt-image-1", f.lastImage.Model)
	assert.Empty(t, f.lastImage.ResponseFormat)
}

func TestGenerateImage_URL(t *testing.T) {
	f := newFakeOpenAI(t)
	f.imageAsURL = true
	chat, _ := newTestChat(t, f, "dall-e-3")

	image, err := chat.GenerateImage(context.Background(), 1, "a dog")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, image)
	assert.Equal(t, openai.CreateImageResponseFormatB64JSON, f.lastImage.ResponseFormat)
}

func TestGenerateImage_RejectsOversizedImage(t *testing.T) {
	f := newFakeOpenAI(t)
	f.imageAsURL = true
	chat, _ := newTestChat(t, f, "dall-e-3")
	chat.imageLimit = int64(len(pngBytes)) - 1

	image, err := chat.GenerateImage(context.Background(), 1, "a dog")
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Nil(t, image)

	f.imageAsURL = false
	image, err = chat.GenerateImage(context.Background(), 1, "a dog")
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Nil(t, image)

	// an image of exactly the limit is whole
	chat.imageLimit = int64(len(pngBytes))
	f.imageAsURL = true
	image, err = chat.GenerateImage(context.Background(), 1, "a dog")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, image)
}

func TestComposeMessages(t *testing.T) {
	messages := composeMessages(nil, "hello")
	require.Len(t, messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, messages[0].Role)
	assert.Equal(t, "hello", messages[1].Content)
}
