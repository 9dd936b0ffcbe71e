package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/helios/lifecycle/pkg/config"
)

const secretTokenKey = "token"

// CredentialSource returns the bearer credential used to call the identity
// provider on behalf of an organization.
type CredentialSource interface {
	Credential(ctx context.Context, organizationID uuid.UUID) (string, error)
}

type StaticCredentialSource string

func (s StaticCredentialSource) Credential(ctx context.Context, organizationID uuid.UUID) (string, error) {
	if s == "" {
		return "", errors.New("static provider token is not configured")
	}
	return string(s), nil
}

type cachedCredential struct {
	token     string
	expiresAt time.Time
}

// SecretCredentialSource reads the credential from the Secret named
// {prefix}{organizationID}. Values are cached per organization for ttl.
type SecretCredentialSource struct {
	client    kubernetes.Interface
	namespace string
	prefix    string
	ttl       time.Duration

	mu    sync.Mutex
	cache map[uuid.UUID]cachedCredential
	now   func() time.Time
}

func NewSecretCredentialSource(client kubernetes.Interface, namespace, prefix string, ttl time.Duration) *SecretCredentialSource {
	return &SecretCredentialSource{
		client:    client,
		namespace: namespace,
		prefix:    prefix,
		ttl:       ttl,
		cache:     make(map[uuid.UUID]cachedCredential),
		now:       time.Now,
	}
}

func (s *SecretCredentialSource) Credential(ctx context.Context, organizationID uuid.UUID) (string, error) {
	now := s.now()

	s.mu.Lock()
	if cached, ok := s.cache[organizationID]; ok && now.Before(cached.expiresAt) {
		s.mu.Unlock()
		return cached.token, nil
	}
	s.mu.Unlock()

	name := s.prefix + organizationID.String()
	secret, err := s.client.CoreV1().Secrets(s.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("load provider credential %s/%s: %w", s.namespace, name, err)
	}

	token := strings.TrimSpace(string(secret.Data[secretTokenKey]))
	if token == "" {
		return "", fmt.Errorf("secret %s/%s has no %q key", s.namespace, name, secretTokenKey)
	}

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[organizationID] = cachedCredential{token: token, expiresAt: now.Add(s.ttl)}
		s.mu.Unlock()
	}
	return token, nil
}

// Invalidate drops the cached credential, e.g. after the provider rejected it.
func (s *SecretCredentialSource) Invalidate(organizationID uuid.UUID) {
	s.mu.Lock()
	delete(s.cache, organizationID)
	s.mu.Unlock()
}

func NewKubernetesClient(cfg config.KubernetesConfig) (kubernetes.Interface, error) {
	var restConfig *rest.Config
	var err error

	if cfg.InCluster {
		restConfig, err = rest.InClusterConfig()
	} else {
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfig)
	}
	if err != nil {
		return nil, err
	}

	return kubernetes.NewForConfig(restConfig)
}
