package sforce_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrewBradfordXYZ/sforce-go"
)

// Environment variables for credentials. A .env file in the package
// directory is loaded first if present.
const (
	envUsername      = "SFORCE_USERNAME"
	envPassword      = "SFORCE_PASSWORD"
	envSecurityToken = "SFORCE_SECURITY_TOKEN"
	envLoginURL      = "SFORCE_LOGIN_URL"
)

// integrationClient returns a client for a real org, or skips the test.
func integrationClient(t *testing.T) *sforce.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	_ = godotenv.Load()

	username, password := os.Getenv(envUsername), os.Getenv(envPassword)
	if username == "" || password == "" {
		t.Skipf("skipping integration test: %s or %s not set", envUsername, envPassword)
	}

	opts := []sforce.Option{
		sforce.WithPasswordLogin(username, password, os.Getenv(envSecurityToken)),
		sforce.WithDebug(os.Getenv("SFORCE_DEBUG") != ""),
	}
	if url := os.Getenv(envLoginURL); url != "" {
		opts = append(opts, sforce.WithLoginURL(url))
	}
	sf, err := sforce.New(opts...)
	require.NoError(t, err)
	return sf
}

func TestIntegration_RecordLifecycle(t *testing.T) {
	sf := integrationClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	name := fmt.Sprintf("sforce-go-test-%d", time.Now().UnixMilli())

	created, err := sf.Create(ctx,
		sforce.Record{"type": "Account", "Name": name + "-a"},
		sforce.Record{"type": "Account", "Name": name + "-b"},
	)
	require.NoError(t, err)
	require.Len(t, created, 2)
	ids := make([]string, len(created))
	for i, r := range created {
		require.True(t, r.Success, "create failed: %v", r.Errors)
		ids[i] = r.ID
	}
	t.Cleanup(func() {
		sf.Delete(context.Background(), ids...)
	})

	records, err := sf.Query(ctx, "SELECT Id, Name FROM Account WHERE Name LIKE '"+name+"%' ORDER BY Name")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ids[0], records[0].ID())
	assert.Equal(t, name+"-a", records[0]["Name"])

	updated, err := sf.Update(ctx, sforce.Record{"type": "Account", "Id": ids[0], "Name": name + "-renamed"})
	require.NoError(t, err)
	require.True(t, updated[0].Success, "update failed: %v", updated[0].Errors)

	retrieved, err := sf.Retrieve(ctx, []string{"Id", "Name"}, "Account", ids[0])
	require.NoError(t, err)
	require.Len(t, retrieved, 1)
	assert.Equal(t, name+"-renamed", retrieved[0]["Name"])

	deleted, err := sf.Delete(ctx, ids[1])
	require.NoError(t, err)
	require.True(t, deleted[0].Success)

	all, err := sf.QueryAll(ctx, "SELECT Id, IsDeleted FROM Account WHERE Id = '"+ids[1]+"'")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "true", all[0]["IsDeleted"])

	restored, err := sf.Undelete(ctx, ids[1])
	require.NoError(t, err)
	require.True(t, restored[0].Success)
}

func TestIntegration_ServerTimestamp(t *testing.T) {
	sf := integrationClient(t)

	ts, err := sf.GetServerTimestamp(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, 10*time.Minute)
}
