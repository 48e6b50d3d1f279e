package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"groupchat/moderation"
	"groupchat/observability"
	"groupchat/repositories"
	"groupchat/search"
	"groupchat/services"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	index, err := search.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	moderator, err := moderation.NewModerator(nil, '*')
	require.NoError(t, err)

	log := slog.Default()
	metrics := observability.NewMetrics()
	chat := services.NewChatService(
		log,
		repositories.NewGroupRepository(db, log),
		repositories.NewMessageRepository(db, log, nil),
		repositories.NewDirectoryRepository(db),
		moderator,
		index,
		metrics,
		services.IdentityResolver{},
		25,
	)
	handler := NewHandler(log, chat, 1<<20)
	server := httptest.NewServer(handler.Router(metrics, nil))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	request, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")

	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	t.Cleanup(func() { _ = response.Body.Close() })

	var decoded map[string]any
	if response.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(response.Body).Decode(&decoded))
	}
	return response, decoded
}

func createTestGroup(t *testing.T, server *httptest.Server) string {
	t.Helper()
	response, body := doJSON(t, http.MethodPost, server.URL+"/chat/creategroup", map[string]any{
		"name":    "study",
		"adminId": "alice",
		"members": []string{"bob", "clara"},
	})
	require.Equal(t, http.StatusCreated, response.StatusCode)
	return body["id"].(string)
}

func Test_CreateGroup_Endpoint(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	response, body := doJSON(t, http.MethodPost, server.URL+"/chat/creategroup", map[string]any{
		"name":    "study",
		"adminId": "alice",
		"members": []string{"bob"},
	})
	req.Equal(http.StatusCreated, response.StatusCode)
	req.Equal("study", body["name"])
	req.ElementsMatch([]any{"alice"}, body["admins"])
	req.ElementsMatch([]any{"bob", "alice"}, body["members"])
}

func Test_CreateGroup_Missing_Name(t *testing.T) {
	server := newTestServer(t)
	response, _ := doJSON(t, http.MethodPost, server.URL+"/chat/creategroup", map[string]any{
		"adminId": "alice",
	})
	require.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func Test_Send_And_List_Text_Message(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)
	groupID := createTestGroup(t, server)

	response, body := doJSON(t, http.MethodPost, server.URL+"/chat/sendmessage/"+groupID, map[string]any{
		"senderId":    "alice",
		"messageType": "text",
		"content":     "hello everyone",
	})
	req.Equal(http.StatusCreated, response.StatusCode)

	// The create response carries the full message record, not just its id.
	req.NotEmpty(body["id"])
	req.Equal(groupID, body["groupId"])
	req.Equal("text", body["kind"])
	req.Equal("hello everyone", body["content"])
	req.Equal("alice", body["sender"].(map[string]any)["id"])
	req.ElementsMatch([]any{"bob", "clara"}, body["unseenBy"])

	listResponse, err := http.Get(server.URL + "/chat/messages/" + groupID)
	req.NoError(err)
	defer listResponse.Body.Close()
	req.Equal(http.StatusOK, listResponse.StatusCode)

	var messages []map[string]any
	req.NoError(json.NewDecoder(listResponse.Body).Decode(&messages))
	req.Len(messages, 1)
	req.Equal("text", messages[0]["kind"])
	req.Equal("hello everyone", messages[0]["content"])
	req.ElementsMatch([]any{"bob", "clara"}, messages[0]["unseenBy"])
}

func Test_Send_Empty_Text_Is_Bad_Request(t *testing.T) {
	server := newTestServer(t)
	groupID := createTestGroup(t, server)

	response, _ := doJSON(t, http.MethodPost, server.URL+"/chat/sendmessage/"+groupID, map[string]any{
		"senderId":    "alice",
		"messageType": "text",
		"content":     "",
	})
	require.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func Test_Send_File_Message_Multipart(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)
	groupID := createTestGroup(t, server)

	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	req.NoError(writer.WriteField("senderId", "alice"))
	part, err := writer.CreateFormFile("file", "notes.txt")
	req.NoError(err)
	_, err = part.Write([]byte("lecture notes"))
	req.NoError(err)
	req.NoError(writer.Close())

	response, err := http.Post(
		server.URL+"/chat/sendmessage/"+groupID,
		writer.FormDataContentType(),
		&buffer,
	)
	req.NoError(err)
	defer response.Body.Close()
	req.Equal(http.StatusCreated, response.StatusCode)

	listResponse, err := http.Get(server.URL + "/chat/messages/" + groupID)
	req.NoError(err)
	defer listResponse.Body.Close()

	var messages []map[string]any
	req.NoError(json.NewDecoder(listResponse.Body).Decode(&messages))
	req.Len(messages, 1)
	req.Equal("file", messages[0]["kind"])
	file := messages[0]["file"].(map[string]any)
	req.Equal("notes.txt", file["fileName"])
	req.NotEmpty(file["data"])
}

func Test_MarkSeen_And_UserGroups(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)
	groupID := createTestGroup(t, server)

	_, body := doJSON(t, http.MethodPost, server.URL+"/chat/sendmessage/"+groupID, map[string]any{
		"senderId":    "alice",
		"messageType": "text",
		"content":     "hi",
	})
	messageID := body["id"].(string)

	response, _ := doJSON(t, http.MethodPost, server.URL+"/chat/markseen/"+messageID, map[string]any{
		"memberId": "bob",
	})
	req.Equal(http.StatusNoContent, response.StatusCode)

	unseenFor := func(member string) float64 {
		response, body := doJSON(t, http.MethodGet, server.URL+"/chat/usergroups/"+member, nil)
		req.Equal(http.StatusOK, response.StatusCode)
		groups := body["chatgroups"].([]any)
		req.Len(groups, 1)
		return groups[0].(map[string]any)["unseenCount"].(float64)
	}
	req.Equal(float64(0), unseenFor("bob"))
	req.Equal(float64(1), unseenFor("clara"))
}

func Test_Error_Kinds_Map_To_Statuses(t *testing.T) {
	server := newTestServer(t)
	groupID := createTestGroup(t, server)

	tests := []struct {
		name     string
		method   string
		url      string
		body     map[string]any
		expected int
	}{
		{"unknown group", http.MethodPost, "/chat/addmember/missing",
			map[string]any{"memberId": "dave"}, http.StatusNotFound},
		{"duplicate member", http.MethodPost, "/chat/addmember/" + groupID,
			map[string]any{"memberId": "bob"}, http.StatusConflict},
		{"non-admin removal", http.MethodPost, "/chat/removemember/" + groupID,
			map[string]any{"adminId": "bob", "memberId": "clara"}, http.StatusForbidden},
		{"sole admin leave", http.MethodPost, "/chat/leavegroup/" + groupID,
			map[string]any{"userId": "alice"}, http.StatusConflict},
		{"non-admin delete", http.MethodDelete, "/chat/deletegroup/" + groupID,
			map[string]any{"adminId": "bob"}, http.StatusForbidden},
		{"rename without name", http.MethodPut, "/chat/editgroupname/" + groupID,
			map[string]any{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response, _ := doJSON(t, tt.method, server.URL+tt.url, tt.body)
			require.Equal(t, tt.expected, response.StatusCode)
		})
	}
}

func Test_DeleteGroup_Flow(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)
	groupID := createTestGroup(t, server)

	response, _ := doJSON(t, http.MethodDelete, server.URL+"/chat/deletegroup/"+groupID, map[string]any{
		"adminId": "alice",
	})
	req.Equal(http.StatusOK, response.StatusCode)

	listResponse, err := http.Get(fmt.Sprintf("%s/chat/messages/%s", server.URL, groupID))
	req.NoError(err)
	defer listResponse.Body.Close()
	req.Equal(http.StatusNotFound, listResponse.StatusCode)

	// Former members still resolve their directory, minus the deleted group.
	response, body := doJSON(t, http.MethodGet, server.URL+"/chat/usergroups/bob", nil)
	req.Equal(http.StatusOK, response.StatusCode)
	req.Empty(body["chatgroups"])
}

func Test_Metrics_Endpoint_Exposed(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)
	createTestGroup(t, server)

	response, err := http.Get(server.URL + "/metrics")
	req.NoError(err)
	defer response.Body.Close()
	req.Equal(http.StatusOK, response.StatusCode)

	payload, err := io.ReadAll(response.Body)
	req.NoError(err)
	req.Contains(string(payload), "chat_groups_created_total")
}
