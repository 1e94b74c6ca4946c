package router

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/usercrud/internal/config"
	"github.com/patric-chuzhbe/usercrud/internal/db/memorystorage"
	"github.com/patric-chuzhbe/usercrud/internal/db/storage"
	"github.com/patric-chuzhbe/usercrud/internal/handlers"
	"github.com/patric-chuzhbe/usercrud/internal/logger"
	"github.com/patric-chuzhbe/usercrud/internal/mockstorage"
	"github.com/patric-chuzhbe/usercrud/internal/models"
	"github.com/patric-chuzhbe/usercrud/internal/response"
)

const (
	allowedOrigin = "http://localhost:3000"
	annJSON       = `{"name":"Ann","email":"a@x.com","city":"Paris","country":"France"}`
)

type initOption func(*initOptions)

type initOptions struct {
	mockStorage storage.Storage
}

func withMockStorage(db storage.Storage) initOption {
	return func(options *initOptions) {
		options.mockStorage = db
	}
}

func setupTestRouter(t *testing.T, optionsProto ...initOption) (*httptest.Server, storage.Storage, *chi.Mux) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	var db storage.Storage
	var err error
	if options.mockStorage != nil {
		db = options.mockStorage
	} else {
		db, err = memorystorage.New()
	}
	if t != nil {
		require.NoError(t, err)
	}

	formatter := response.NewFormatter([]string{
		"https://distinction-dev-task.vercel.app",
		allowedOrigin,
	})
	theRouter := New(handlers.New(db, formatter))

	err = logger.Init("debug")
	if t != nil {
		require.NoError(t, err)
	}

	return httptest.NewServer(theRouter), db, theRouter
}

func createUser(t *testing.T, serverURL string, body string) string {
	t.Helper()

	var created models.CreateUserResponse
	resp, err := resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&created).
		Post(serverURL + "/users")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	return created.ID
}

func TestPostUsers(t *testing.T) {
	type tRequest struct {
		method string
		body   string
	}
	type tExpectedResponse struct {
		code int
		body *regexp.Regexp
	}
	type tTestCase struct {
		name             string
		request          tRequest
		expectedResponse tExpectedResponse
	}
	testCases := []tTestCase{
		{
			name: "positive",
			request: tRequest{
				http.MethodPost,
				annJSON,
			},
			expectedResponse: tExpectedResponse{
				http.StatusCreated,
				regexp.MustCompile(`\{\s*"message"\s*:\s*"User created"\s*,\s*"id"\s*:\s*"\w+-\w+-\w+-\w+-\w+"\s*\}`),
			},
		},
		{
			name: "missing_fields",
			request: tRequest{
				http.MethodPost,
				`{"name":"Ann"}`,
			},
			expectedResponse: tExpectedResponse{
				http.StatusBadRequest,
				regexp.MustCompile(`^\{"message":"Missing required fields"\}$`),
			},
		},
		{
			name: "broken_json",
			request: tRequest{
				http.MethodPost,
				`{"name":`,
			},
			expectedResponse: tExpectedResponse{
				http.StatusBadRequest,
				regexp.MustCompile(`"message":"Invalid request body"`),
			},
		},
		{
			name: "invalid_name",
			request: tRequest{
				http.MethodPost,
				`{"name":"R2D2","email":"r@x.com","city":"Naboo","country":"Galaxy"}`,
			},
			expectedResponse: tExpectedResponse{
				http.StatusBadRequest,
				regexp.MustCompile(`"errors":\["Name can only contain letters and spaces"\]`),
			},
		},
	}

	server, _, _ := setupTestRouter(t)
	defer server.Close()

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			req := resty.New().R()
			req.Method = testCase.request.method
			req.URL = fmt.Sprintf("%s/users", server.URL)
			req.SetHeader("Content-Type", "application/json")
			req.SetHeader("Origin", allowedOrigin)
			req.SetBody(testCase.request.body)

			resp, err := req.Send()
			assert.NoError(t, err, "error making HTTP request")

			assert.Equal(t, testCase.expectedResponse.code, resp.StatusCode(), "Response code didn't match expected value")
			assert.Regexp(t, testCase.expectedResponse.body, string(resp.Body()))
			assert.Equal(t, "application/json", resp.Header().Get(response.HeaderContentType))
			assert.Equal(t, allowedOrigin, resp.Header().Get(response.HeaderAllowOrigin))
		})
	}
}

func TestUserLifecycle(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	defer server.Close()

	id := createUser(t, server.URL, annJSON)

	var usr models.User
	resp, err := resty.New().R().SetResult(&usr).Get(server.URL + "/users/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, models.User{ID: id, Name: "Ann", Email: "a@x.com", City: "Paris", Country: "France"}, usr)

	resp, err = resty.New().R().
		SetBody(`{"name":"Ann Marie","email":"am@x.com","city":"Lyon","country":"France"}`).
		Put(server.URL + "/users/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `{"message":"User updated"}`, string(resp.Body()))

	resp, err = resty.New().R().SetBody(`{"name":"Solo"}`).Put(server.URL + "/users/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Missing required fields"}`, string(resp.Body()))

	resp, err = resty.New().R().SetResult(&usr).Get(server.URL + "/users/" + id)
	require.NoError(t, err)
	assert.Equal(t, "Ann Marie", usr.Name, "a rejected update must leave the record unchanged")

	for i := 0; i < 2; i++ {
		resp, err = resty.New().R().Delete(server.URL + "/users/" + id)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.JSONEq(t, `{"message":"User deleted"}`, string(resp.Body()))
	}

	resp, err = resty.New().R().Get(server.URL + "/users/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.JSONEq(t, `{"message":"User not found"}`, string(resp.Body()))
}

func TestGetUsers(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	defer server.Close()

	resp, err := resty.New().R().Get(server.URL + "/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `[]`, string(resp.Body()))

	ids := []string{
		createUser(t, server.URL, annJSON),
		createUser(t, server.URL, `{"name":"Bob","email":"b@x.com","city":"Rome","country":"Italy"}`),
	}

	var users []models.User
	resp, err = resty.New().R().SetResult(&users).Get(server.URL + "/users")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	listed := make([]string, 0, len(users))
	for _, usr := range users {
		listed = append(listed, usr.ID)
	}
	assert.ElementsMatch(t, ids, listed)
}

func TestUpdateUnknownUser(t *testing.T) {
	server, db, _ := setupTestRouter(t)
	defer server.Close()

	resp, err := resty.New().R().SetBody(annJSON).Put(server.URL + "/users/ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())

	users, err := db.ListUsers(t.Context())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestMissingID(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	defer server.Close()

	resp, err := resty.New().R().Delete(server.URL + "/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Missing user ID in path"}`, string(resp.Body()))

	resp, err = resty.New().R().SetBody(annJSON).Put(server.URL + "/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Missing required fields"}`, string(resp.Body()))
}

func TestCORS(t *testing.T) {
	type tExpectedResponse struct {
		allowOrigin string
	}
	type tTestCase struct {
		name             string
		method           string
		path             string
		origin           string
		expectedResponse tExpectedResponse
	}
	testCases := []tTestCase{
		{
			name:             "preflight_allowed",
			method:           http.MethodOptions,
			path:             "/users",
			origin:           "https://distinction-dev-task.vercel.app",
			expectedResponse: tExpectedResponse{"https://distinction-dev-task.vercel.app"},
		},
		{
			name:             "preflight_with_id",
			method:           http.MethodOptions,
			path:             "/users/some-id",
			origin:           allowedOrigin,
			expectedResponse: tExpectedResponse{allowedOrigin},
		},
		{
			name:             "foreign_origin",
			method:           http.MethodGet,
			path:             "/users",
			origin:           "http://evil.example",
			expectedResponse: tExpectedResponse{""},
		},
		{
			name:             "no_origin",
			method:           http.MethodGet,
			path:             "/users",
			expectedResponse: tExpectedResponse{""},
		},
	}

	server, _, _ := setupTestRouter(t)
	defer server.Close()

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			req := resty.New().R()
			req.Method = testCase.method
			req.URL = server.URL + testCase.path
			if testCase.origin != "" {
				req.SetHeader("Origin", testCase.origin)
			}

			resp, err := req.Send()
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, resp.StatusCode())
			assert.Equal(t, testCase.expectedResponse.allowOrigin, resp.Header().Get(response.HeaderAllowOrigin))
			assert.Equal(t, response.AllowedHeaders, resp.Header().Get(response.HeaderAllowHeaders))
			assert.Equal(t, response.AllowedMethods, resp.Header().Get(response.HeaderAllowMethods))
		})
	}
}

func TestRoutingErrors(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	defer server.Close()

	resp, err := resty.New().R().Get(server.URL + "/nowhere")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Route not found"}`, string(resp.Body()))

	resp, err = resty.New().R().Patch(server.URL + "/users/some-id")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Method not allowed"}`, string(resp.Body()))
}

func TestStoreFailure(t *testing.T) {
	db := new(mockstorage.StorageMock)
	db.On("ListUsers", mock.Anything).Return(nil, errors.New("ResourceNotFoundException: table users"))
	db.On("Ping", mock.Anything).Return(errors.New("connection refused"))

	server, _, _ := setupTestRouter(t, withMockStorage(db))
	defer server.Close()

	resp, err := resty.New().R().Get(server.URL + "/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())

	var errorResponse models.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &errorResponse))
	assert.Equal(t, "Failed to get users", errorResponse.Message)
	assert.Equal(t, "ResourceNotFoundException: table users", errorResponse.Error)

	resp, err = resty.New().R().Get(server.URL + "/ping")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())

	db.AssertExpectations(t)
}

func TestPanicsAreAnsweredWithEnvelope(t *testing.T) {
	db := new(mockstorage.StorageMock)
	db.On("ListUsers", mock.Anything).Panic("store exploded")

	server, _, _ := setupTestRouter(t, withMockStorage(db))
	defer server.Close()

	resp, err := resty.New().R().
		SetHeader("Origin", allowedOrigin).
		Get(server.URL + "/users")
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())
	assert.Equal(t, "application/json", resp.Header().Get(response.HeaderContentType))
	assert.Equal(t, allowedOrigin, resp.Header().Get(response.HeaderAllowOrigin))
	assert.Equal(t, response.AllowedMethods, resp.Header().Get(response.HeaderAllowMethods))

	var body models.MessageResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Equal(t, handlers.MsgInternalError, body.Message)
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)

	rtr := Router{handlers: handlers.New(db, response.NewFormatter(nil))}
	aborting := rtr.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		aborting.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users", nil))
	})
}

func TestGetPing(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	defer server.Close()

	resp, err := resty.New().R().Get(server.URL + "/ping")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}

func TestResponsesAreCompressed(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	defer server.Close()

	for i := 0; i < 20; i++ {
		createUser(t, server.URL, annJSON)
	}

	req, err := http.NewRequest(http.MethodGet, server.URL+"/users", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(resp.Header.Get("Content-Encoding"), "gzip"))
}

func gzipString(input string) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)

	if _, err := gzipWriter.Write([]byte(input)); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func TestPostUsersForGzip(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	defer server.Close()

	zipped, err := gzipString(annJSON)
	require.NoError(t, err)

	tests := []struct {
		name string
		body []byte
		code int
	}{
		{name: "gzipped body", body: zipped, code: http.StatusCreated},
		{name: "broken gzip header", body: []byte(annJSON), code: http.StatusBadRequest},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp, err := resty.New().R().
				SetHeader("Content-Type", "application/json").
				SetHeader("Content-Encoding", "gzip").
				SetBody(test.body).
				Post(server.URL + "/users")
			require.NoError(t, err)
			assert.Equal(t, test.code, resp.StatusCode())

			if test.code == http.StatusBadRequest {
				var body models.ErrorResponse
				require.NoError(t, json.Unmarshal(resp.Body(), &body))
				assert.Equal(t, handlers.MsgInvalidRequestBody, body.Message)
			}
		})
	}
}

func TestConfigDrivenOrigins(t *testing.T) {
	t.Setenv("TABLE_NAME", "users")
	t.Setenv("ALLOWED_ORIGINS", "https://only.example")

	cfg, err := config.New(config.WithDisableFlagsParsing(true))
	require.NoError(t, err)

	db, err := memorystorage.New()
	require.NoError(t, err)

	server := httptest.NewServer(New(handlers.New(db, response.NewFormatter(cfg.AllowedOrigins))))
	defer server.Close()

	resp, err := resty.New().R().SetHeader("Origin", "https://only.example").Options(server.URL + "/users")
	require.NoError(t, err)
	assert.Equal(t, "https://only.example", resp.Header().Get(response.HeaderAllowOrigin))

	resp, err = resty.New().R().SetHeader("Origin", allowedOrigin).Options(server.URL + "/users")
	require.NoError(t, err)
	assert.Empty(t, resp.Header().Get(response.HeaderAllowOrigin))
}
