package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/helios/lifecycle/pkg/lifecycle"
	"github.com/helios/lifecycle/pkg/model"
)

func stepRequest(step string) lifecycle.StepRequest {
	return lifecycle.StepRequest{
		ActionID:       uuid.New(),
		OrganizationID: uuid.New(),
		TargetEmail:    "jane@example.com",
		ActionType:     model.ActionSuspend,
		Step:           step,
		Config:         model.JSONB{"reason": "leave"},
		Attempt:        1,
	}
}

func TestWebhookAdapterPostsStep(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody lifecycle.StepRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(lifecycle.StepResult{Success: true, Detail: "suspended"})
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter(srv.URL+"/", time.Second, StaticCredentialSource("tok"), zap.NewNop())
	req := stepRequest("suspend_account")

	res, err := adapter.ExecuteStep(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "suspended", res.Detail)
	assert.Equal(t, "/steps/suspend_account", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, req.ActionID, gotBody.ActionID)
	assert.Equal(t, "leave", gotBody.Config["reason"])
}

func TestWebhookAdapterReportsProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(lifecycle.StepResult{Success: false, Error: "user locked"})
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter(srv.URL, time.Second, StaticCredentialSource("tok"), zap.NewNop())
	res, err := adapter.ExecuteStep(context.Background(), stepRequest("sign_out_devices"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "user locked", res.Error)
}

func TestWebhookAdapterNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter(srv.URL, time.Second, StaticCredentialSource("tok"), zap.NewNop())
	_, err := adapter.ExecuteStep(context.Background(), stepRequest("suspend_account"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestWebhookAdapterRequiresCredential(t *testing.T) {
	adapter := NewWebhookAdapter("http://127.0.0.1:1", time.Second, StaticCredentialSource(""), zap.NewNop())
	_, err := adapter.ExecuteStep(context.Background(), stepRequest("suspend_account"))
	assert.Error(t, err)
}

func TestSecretCredentialSourceCaches(t *testing.T) {
	org := uuid.New()
	client := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "idp-" + org.String(), Namespace: "helios"},
		Data:       map[string][]byte{"token": []byte("secret-token\n")},
	})

	src := NewSecretCredentialSource(client, "helios", "idp-", time.Minute)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	token, err := src.Credential(context.Background(), org)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", token)

	require.NoError(t, client.CoreV1().Secrets("helios").Delete(context.Background(), "idp-"+org.String(), metav1.DeleteOptions{}))

	token, err = src.Credential(context.Background(), org)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", token)

	now = now.Add(2 * time.Minute)
	_, err = src.Credential(context.Background(), org)
	assert.Error(t, err)
}

func TestSecretCredentialSourceMissingKey(t *testing.T) {
	org := uuid.New()
	client := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "idp-" + org.String(), Namespace: "helios"},
		Data:       map[string][]byte{"password": []byte("x")},
	})

	src := NewSecretCredentialSource(client, "helios", "idp-", time.Minute)
	_, err := src.Credential(context.Background(), org)
	assert.Error(t, err)
}

func TestRegistryDispatch(t *testing.T) {
	var calls int32
	reg := NewRegistry()
	reg.Handle("reset_password", func(ctx context.Context, req lifecycle.StepRequest) (lifecycle.StepResult, error) {
		atomic.AddInt32(&calls, 1)
		return lifecycle.StepResult{Success: true}, nil
	})

	res, err := reg.ExecuteStep(context.Background(), stepRequest("reset_password"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(1), calls)

	_, err = reg.ExecuteStep(context.Background(), stepRequest("delete_account"))
	assert.Error(t, err)
}

func TestDryRunAdapterAcceptsEverything(t *testing.T) {
	adapter := NewDryRunAdapter(zap.NewNop())
	res, err := adapter.ExecuteStep(context.Background(), stepRequest("anything"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "dry run", res.Detail)
}
