package conncache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/vkube-console/internal/crypto"
	"github.com/example/vkube-console/internal/k8s"
	"github.com/example/vkube-console/internal/models"
)

// Reason classifica falhas de conexão.
type Reason string

const (
	ReasonTimeout Reason = "timeout"
	ReasonRefused Reason = "refused"
	ReasonTLS     Reason = "tls"
	ReasonUnknown Reason = "unknown"
)

// ConnectError indica falha transitória ao conectar num cluster. O caller
// pode repetir; a falha nunca fica em cache.
type ConnectError struct {
	Reason Reason
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("falha ao conectar (%s): %v", e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ConnectFunc constrói um cliente a partir de um kubeconfig decifrado.
// Injetável para testes; em produção é k8s.Connect.
type ConnectFunc func(ctx context.Context, kubeconfig []byte, contextName string) (*k8s.Client, error)

type handle struct {
	client   *k8s.Client
	lastUsed time.Time
}

// Cache guarda handles vivos de cluster, chaveados por id + fingerprint do
// kubeconfig cifrado. Misses concorrentes na mesma chave colapsam numa única
// tentativa de conexão (singleflight); handles ociosos expiram por TTL.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*handle

	group          singleflight.Group
	cipher         *crypto.Cipher
	connect        ConnectFunc
	ttl            time.Duration
	connectTimeout time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// New cria o cache e dispara a varredura de expiração em background.
func New(cipher *crypto.Cipher, connect ConnectFunc, ttl, connectTimeout time.Duration) *Cache {
	c := &Cache{
		entries:        map[string]*handle{},
		cipher:         cipher,
		connect:        connect,
		ttl:            ttl,
		connectTimeout: connectTimeout,
		done:           make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Close encerra a varredura de expiração.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Fingerprint deriva a identidade do handle a partir do ciphertext e do
// contexto, para que um cluster editado nunca reaproveite um handle velho.
func Fingerprint(cluster *models.Cluster) string {
	h := sha256.New()
	h.Write(cluster.EncryptedKubeconfig)
	h.Write([]byte{0})
	h.Write([]byte(cluster.Context))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func cacheKey(cluster *models.Cluster) string {
	return cluster.ID + "@" + Fingerprint(cluster)
}

// GetOrConnect devolve o handle do cluster, conectando na primeira
// necessidade. O uso bem-sucedido rearma o TTL deslizante.
func (c *Cache) GetOrConnect(ctx context.Context, cluster *models.Cluster) (*k8s.Client, error) {
	key := cacheKey(cluster)

	if client, ok := c.touch(key); ok {
		return client, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Outro voo pode ter populado a entrada enquanto esperávamos.
		if client, ok := c.touch(key); ok {
			return client, nil
		}

		plaintext, err := c.cipher.Decrypt(cluster.EncryptedKubeconfig)
		if err != nil {
			return nil, err
		}
		// O voo é compartilhado entre callers: o cancelamento do primeiro não
		// pode derrubar os demais. O limite de tempo do dial continua valendo.
		client, err := c.dial(context.WithoutCancel(ctx), plaintext, cluster.Context)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = &handle{client: client, lastUsed: time.Now()}
		c.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*k8s.Client), nil
}

// Probe tenta conectar com um kubeconfig ainda em texto puro, sem cachear
// nada. Usado na validação de Create, antes de persistir.
func (c *Cache) Probe(ctx context.Context, kubeconfig []byte, contextName string) (string, error) {
	client, err := c.dial(ctx, kubeconfig, contextName)
	if err != nil {
		return "", err
	}
	return client.Version(ctx)
}

// Invalidate remove todos os handles do cluster (qualquer fingerprint).
// Usado em edição e remoção de cluster.
func (c *Cache) Invalidate(clusterID string) {
	prefix := clusterID + "@"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) touch(key string) (*k8s.Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.entries[key]; ok {
		h.lastUsed = time.Now()
		return h.client, true
	}
	return nil, false
}

// dial conecta com timeout limitado e valida a alcançabilidade com uma
// consulta de versão. O plaintext do kubeconfig não sobrevive a este escopo.
func (c *Cache) dial(ctx context.Context, kubeconfig []byte, contextName string) (*k8s.Client, error) {
	dctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	client, err := c.connect(dctx, kubeconfig, contextName)
	if err != nil {
		return nil, &ConnectError{Reason: classify(err), Err: err}
	}
	if _, err := client.Version(dctx); err != nil {
		return nil, &ConnectError{Reason: classify(err), Err: err}
	}
	return client, nil
}

func classify(err error) Reason {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED),
		strings.Contains(err.Error(), "connection refused"):
		return ReasonRefused
	case strings.Contains(err.Error(), "x509:"),
		strings.Contains(err.Error(), "tls:"):
		return ReasonTLS
	default:
		return ReasonUnknown
	}
}

func (c *Cache) sweep() {
	interval := c.ttl / 2
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, h := range c.entries {
				if now.Sub(h.lastUsed) > c.ttl {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
