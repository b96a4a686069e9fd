package service_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/fakeapi"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, backend *fakeapi.Backend) *client.Client {
	t.Helper()
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	return client.New(client.Options{
		BaseURLs: map[client.Backend]string{
			client.BackendChat:       srv.URL,
			client.BackendManagement: srv.URL,
			client.BackendIngestion:  srv.URL,
		},
		Tokens: client.StaticToken("tok"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestConversationRoundTrip(t *testing.T) {
	backend := fakeapi.New("tok")
	svc := service.NewConversationService(newTestClient(t, backend))
	ctx := context.Background()

	created, err := svc.Create(ctx, models.ConversationCreate{Title: "T", Context: "C"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "C", got.Context)

	list, err := svc.List(ctx, service.ListConversationsParams{})
	require.NoError(t, err)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, created.ID, list.Conversations[0].ID)
}

func TestConversationUpdateAcceptsBareResource(t *testing.T) {
	backend := fakeapi.New("tok")
	conv := backend.SeedConversation(models.Conversation{Title: "old"})
	svc := service.NewConversationService(newTestClient(t, backend))

	updated, err := svc.Update(context.Background(), conv.ID, models.ConversationCreate{Title: "new", Context: "ctx"})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, updated.ID)
	assert.Equal(t, "new", updated.Title)
	assert.Equal(t, "ctx", updated.Context)
}

func TestUpdateAcceptsEnvelope(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"item":{"id":"i1","file_name":"renamed.pdf","active":false}}`))
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := client.New(client.Options{
		BaseURLs: map[client.Backend]string{client.BackendManagement: srv.URL},
		Tokens:   client.StaticToken("tok"),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	item, err := service.NewItemService(c).Update(context.Background(), "i1", models.ItemUpdate{Active: models.Ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "i1", item.ID)
	assert.Equal(t, "renamed.pdf", item.FileName)
	assert.False(t, item.Active)
}

func TestItemListFilters(t *testing.T) {
	backend := fakeapi.New("tok")
	backend.SeedItem(models.Item{ID: "a", FileName: "Report.pdf", ConversationID: "c1", Active: true})
	backend.SeedItem(models.Item{ID: "b", FileName: "notes.txt", ConversationID: "c1", Active: false})
	backend.SeedItem(models.Item{ID: "c", FileName: "report-2.pdf", ConversationID: "c2", Active: true})
	svc := service.NewItemService(newTestClient(t, backend))
	ctx := context.Background()

	tests := []struct {
		name   string
		params service.ListItemsParams
		want   []string
	}{
		{name: "all", params: service.ListItemsParams{}, want: []string{"a", "b", "c"}},
		{name: "by conversation", params: service.ListItemsParams{ConversationID: models.Ptr("c1")}, want: []string{"a", "b"}},
		{name: "search", params: service.ListItemsParams{Search: models.Ptr("report")}, want: []string{"a", "c"}},
		{name: "active only", params: service.ListItemsParams{ConversationID: models.Ptr("c1"), ActiveOnly: models.Ptr(true)}, want: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.List(ctx, tt.params)
			require.NoError(t, err)

			ids := make([]string, 0, len(resp.Items))
			for _, it := range resp.Items {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, len(tt.want), resp.Total)
		})
	}
}

func TestItemDeleteSendsPermanentFlag(t *testing.T) {
	backend := fakeapi.New("tok")
	backend.SeedItem(models.Item{ID: "a", ConversationID: "c1"})
	backend.SeedItem(models.Item{ID: "b", ConversationID: "c1"})
	svc := service.NewItemService(newTestClient(t, backend))
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "a", true))
	require.NoError(t, svc.Delete(ctx, "b", false))

	var queries []string
	for _, c := range backend.Calls() {
		if c.Method == http.MethodDelete {
			queries = append(queries, c.Query)
		}
	}
	assert.Equal(t, []string{"permanent=true", "permanent=false"}, queries)
	assert.Empty(t, backend.Items("c1"))
}

func TestItemGetNotFound(t *testing.T) {
	backend := fakeapi.New("tok")
	svc := service.NewItemService(newTestClient(t, backend))

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, client.StatusOf(err))
}

func TestChatHistoryLimit(t *testing.T) {
	backend := fakeapi.New("tok")
	conv := backend.SeedConversation(models.Conversation{Title: "T"})
	svc := service.NewChatService(newTestClient(t, backend))
	ctx := context.Background()

	for range 12 {
		_, err := svc.Send(ctx, models.ChatRequest{ConversationID: conv.ID, Message: "hi"})
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history.Messages, service.DefaultHistoryLimit)

	history, err = svc.History(ctx, conv.ID, 4)
	require.NoError(t, err)
	assert.Len(t, history.Messages, 4)

	var queries []string
	for _, c := range backend.Calls() {
		if c.Method == http.MethodGet {
			queries = append(queries, c.Query)
		}
	}
	assert.Equal(t, []string{"limit=20", "limit=4"}, queries)
}

func TestChatSendReturnsReferences(t *testing.T) {
	backend := fakeapi.New("tok")
	conv := backend.SeedConversation(models.Conversation{Title: "T"})
	backend.SeedItem(models.Item{ID: "i1", FileName: "a.pdf", ConversationID: conv.ID, Active: true})
	backend.SeedItem(models.Item{ID: "i2", FileName: "b.pdf", ConversationID: conv.ID, Active: false})
	svc := service.NewChatService(newTestClient(t, backend))

	resp, err := svc.Send(context.Background(), models.ChatRequest{ConversationID: conv.ID, Message: "what?"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, resp.Message.Role)
	require.Len(t, resp.Message.References, 1)
	assert.Equal(t, "i1", resp.Message.References[0].ItemID)
	assert.Equal(t, []string{"a.pdf"}, resp.Sources)

	msg, err := svc.Message(context.Background(), conv.ID, resp.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Message.Content, msg.Content)
}

func TestUploadCreatesItem(t *testing.T) {
	backend := fakeapi.New("tok")
	svc := service.NewUploadService(newTestClient(t, backend))

	resp, err := svc.Upload(context.Background(), models.UploadRequest{DriverID: "https://drive.example.com/doc.pdf", ConversationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", resp.FileName)

	items := backend.Items("c1")
	require.Len(t, items, 1)
	assert.Equal(t, resp.ItemID, items[0].ID)
}

func TestUploadValidationError(t *testing.T) {
	backend := fakeapi.New("tok")
	svc := service.NewUploadService(newTestClient(t, backend))

	_, err := svc.Upload(context.Background(), models.UploadRequest{})
	require.Error(t, err)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	detail, ok := apiErr.ValidationDetail()
	require.True(t, ok)
	assert.Contains(t, detail.Summary(), "driver_id")
}
