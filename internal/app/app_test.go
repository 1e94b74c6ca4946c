package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/usercrud/internal/config"
	"github.com/patric-chuzhbe/usercrud/internal/db/jsondb"
	"github.com/patric-chuzhbe/usercrud/internal/db/memorystorage"
	"github.com/patric-chuzhbe/usercrud/internal/models"
	"github.com/patric-chuzhbe/usercrud/internal/notifier"
)

func TestNewWithMemoryStorage(t *testing.T) {
	t.Setenv("TABLE_NAME", "users")
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	theApp, err := New(config.WithDisableFlagsParsing(true))
	require.NoError(t, err)
	defer theApp.Close()

	assert.IsType(t, &memorystorage.MemoryStorage{}, theApp.db)
	assert.IsType(t, notifier.Noop{}, theApp.notifier)
	require.NotNil(t, theApp.Handlers())

	server := httptest.NewServer(theApp.HTTPHandler())
	defer server.Close()

	var created models.CreateUserResponse
	resp, err := resty.New().R().
		SetBody(`{"name":"Ann","email":"a@x.com","city":"Paris","country":"France"}`).
		SetResult(&created).
		Post(server.URL + "/users")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	resp, err = resty.New().R().Get(server.URL + "/users/" + created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())

	require.NoError(t, theApp.closeResources())
}

func TestGetStorageByType(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "users.json")

	db, err := getStorageByType(context.Background(), &config.Config{
		StorageType: config.StorageFile,
		DBFileName:  dbFile,
	})
	require.NoError(t, err)
	assert.IsType(t, &jsondb.JSONDB{}, db)
	require.NoError(t, db.Close())

	db, err = getStorageByType(context.Background(), &config.Config{StorageType: config.StorageMemory})
	require.NoError(t, err)
	assert.IsType(t, &memorystorage.MemoryStorage{}, db)

	_, err = getStorageByType(context.Background(), &config.Config{StorageType: "redis"})
	assert.Error(t, err)
}

func TestGetNotifierWithoutBroker(t *testing.T) {
	n, err := getNotifier(&config.Config{})
	require.NoError(t, err)
	assert.IsType(t, notifier.Noop{}, n)
}
