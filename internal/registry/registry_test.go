package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	kubefake "k8s.io/client-go/kubernetes/fake"

	"github.com/example/vkube-console/internal/conncache"
	"github.com/example/vkube-console/internal/crypto"
	"github.com/example/vkube-console/internal/k8s"
	"github.com/example/vkube-console/internal/models"
	"github.com/example/vkube-console/internal/vault"
)

// fakeVault reproduz em memória a semântica do store real: SetActive atômico
// por dono e updates restritos às colunas de cada operação.
type fakeVault struct {
	mu       sync.Mutex
	clusters map[string]models.Cluster
	seq      int
}

func newFakeVault() *fakeVault {
	return &fakeVault{clusters: map[string]models.Cluster{}}
}

func (v *fakeVault) Create(_ context.Context, cluster *models.Cluster) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cluster.CreatedAt.IsZero() {
		v.seq++
		cluster.CreatedAt = time.Unix(int64(v.seq), 0)
	}
	v.clusters[cluster.ID] = *cluster
	return nil
}

func (v *fakeVault) UpdateDetails(_ context.Context, cluster *models.Cluster) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	stored, ok := v.clusters[cluster.ID]
	if !ok {
		return vault.ErrNotFound
	}
	stored.Name = cluster.Name
	stored.Description = cluster.Description
	stored.Context = cluster.Context
	stored.EncryptedKubeconfig = cluster.EncryptedKubeconfig
	stored.Tags = cluster.Tags
	v.clusters[cluster.ID] = stored
	return nil
}

func (v *fakeVault) UpdateConnStatus(_ context.Context, cluster *models.Cluster) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	stored, ok := v.clusters[cluster.ID]
	if !ok {
		return vault.ErrNotFound
	}
	stored.IsConnected = cluster.IsConnected
	stored.Version = cluster.Version
	stored.NodeCount = cluster.NodeCount
	stored.PodCount = cluster.PodCount
	stored.LastConnectedAt = cluster.LastConnectedAt
	v.clusters[cluster.ID] = stored
	return nil
}

func (v *fakeVault) Load(_ context.Context, id string) (*models.Cluster, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cluster, ok := v.clusters[id]
	if !ok {
		return nil, vault.ErrNotFound
	}
	cp := cluster
	return &cp, nil
}

func (v *fakeVault) ListByOwner(_ context.Context, ownerID string) ([]models.Cluster, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []models.Cluster
	for _, cluster := range v.clusters {
		if cluster.OwnerID == ownerID {
			out = append(out, cluster)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (v *fakeVault) Delete(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.clusters, id)
	return nil
}

func (v *fakeVault) SetActive(_ context.Context, ownerID, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	target, ok := v.clusters[id]
	if !ok || target.OwnerID != ownerID {
		return vault.ErrNotFound
	}
	for key, cluster := range v.clusters {
		if cluster.OwnerID == ownerID {
			cluster.IsActive = key == id
			v.clusters[key] = cluster
		}
	}
	return nil
}

var testKey = []byte("0123456789abcdef0123456789abcdef")

const kubeconfigOK = "apiVersion: v1\nkind: Config\n"

type fixture struct {
	reg          *Registry
	vault        *fakeVault
	cipher       *crypto.Cipher
	connectCount *int32
}

func newFixture(t *testing.T, connect conncache.ConnectFunc) *fixture {
	t.Helper()
	cipher, err := crypto.New(testKey)
	require.NoError(t, err)

	var count int32
	if connect == nil {
		connect = func(ctx context.Context, kubeconfig []byte, contextName string) (*k8s.Client, error) {
			atomic.AddInt32(&count, 1)
			return k8s.NewClient(kubefake.NewSimpleClientset()), nil
		}
	}
	cache := conncache.New(cipher, connect, time.Minute, time.Second)
	t.Cleanup(cache.Close)

	fv := newFakeVault()
	return &fixture{
		reg:          New(fv, cipher, cache),
		vault:        fv,
		cipher:       cipher,
		connectCount: &count,
	}
}

func TestCreateRejectsEmptyFields(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []CreateInput{
		{Name: "", Kubeconfig: kubeconfigOK, Context: "prod"},
		{Name: "prod", Kubeconfig: "", Context: "prod"},
		{Name: "prod", Kubeconfig: kubeconfigOK, Context: ""},
	}
	for _, in := range cases {
		_, err := f.reg.Create(ctx, "owner-1", in)
		require.ErrorIs(t, err, ErrInvalidInput)
	}
	require.Empty(t, f.vault.clusters)
}

func TestCreateUnreachableClusterPersistsNothing(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, kubeconfig []byte, contextName string) (*k8s.Client, error) {
		return nil, errors.New("connection refused")
	})

	_, err := f.reg.Create(context.Background(), "owner-1", CreateInput{
		Name:       "prod",
		Kubeconfig: kubeconfigOK,
		Context:    "prod",
	})
	require.ErrorIs(t, err, ErrInvalidCredential)
	require.Empty(t, f.vault.clusters)
}

func TestCreateEncryptsKubeconfigAtRest(t *testing.T) {
	f := newFixture(t, nil)

	cluster, err := f.reg.Create(context.Background(), "owner-1", CreateInput{
		Name:       "prod",
		Kubeconfig: kubeconfigOK,
		Context:    "prod",
	})
	require.NoError(t, err)
	require.False(t, cluster.IsActive)
	require.False(t, cluster.IsConnected)

	stored := f.vault.clusters[cluster.ID]
	require.NotContains(t, string(stored.EncryptedKubeconfig), "apiVersion")

	plaintext, err := f.cipher.Decrypt(stored.EncryptedKubeconfig)
	require.NoError(t, err)
	require.Equal(t, kubeconfigOK, string(plaintext))
}

func TestActivateSwitchesSingleActive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	prod, err := f.reg.Create(ctx, "owner-1", CreateInput{Name: "prod", Kubeconfig: kubeconfigOK, Context: "prod"})
	require.NoError(t, err)

	// Cenário A: ativa "prod" e só ele fica ativo.
	activated, err := f.reg.Activate(ctx, "owner-1", prod.ID)
	require.NoError(t, err)
	require.True(t, activated.IsActive)
	requireSingleActive(t, f, "owner-1", prod.ID)

	// Cenário B: criar e ativar "staging" desativa "prod".
	staging, err := f.reg.Create(ctx, "owner-1", CreateInput{Name: "staging", Kubeconfig: kubeconfigOK, Context: "staging"})
	require.NoError(t, err)
	_, err = f.reg.Activate(ctx, "owner-1", staging.ID)
	require.NoError(t, err)
	requireSingleActive(t, f, "owner-1", staging.ID)
}

func requireSingleActive(t *testing.T, f *fixture, ownerID, wantID string) {
	t.Helper()
	clusters, err := f.reg.List(context.Background(), ownerID)
	require.NoError(t, err)
	active := 0
	for _, cluster := range clusters {
		if cluster.IsActive {
			active++
			require.Equal(t, wantID, cluster.ID)
		}
	}
	require.Equal(t, 1, active)
}

func TestConcurrentActivateLeavesExactlyOneActive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.reg.Create(ctx, "owner-1", CreateInput{Name: "a", Kubeconfig: kubeconfigOK, Context: "a"})
	require.NoError(t, err)
	b, err := f.reg.Create(ctx, "owner-1", CreateInput{Name: "b", Kubeconfig: kubeconfigOK, Context: "b"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		id := a.ID
		if i%2 == 1 {
			id = b.ID
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.reg.Activate(ctx, "owner-1", id)
			require.NoError(t, err)
		}(id)
	}
	wg.Wait()

	clusters, err := f.reg.List(ctx, "owner-1")
	require.NoError(t, err)
	active := 0
	for _, cluster := range clusters {
		if cluster.IsActive {
			active++
		}
	}
	require.Equal(t, 1, active)
}

func TestOwnershipConflatedWithNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cluster, err := f.reg.Create(ctx, "owner-1", CreateInput{Name: "prod", Kubeconfig: kubeconfigOK, Context: "prod"})
	require.NoError(t, err)

	// Outro dono não distingue "existe mas não é meu" de "não existe".
	_, err = f.reg.Get(ctx, "owner-2", cluster.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.reg.Update(ctx, "owner-2", cluster.ID, UpdateInput{})
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, f.reg.Delete(ctx, "owner-2", cluster.ID), ErrNotFound)
	_, err = f.reg.Activate(ctx, "owner-2", cluster.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteActiveLeavesNoneActive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	prod, err := f.reg.Create(ctx, "owner-1", CreateInput{Name: "prod", Kubeconfig: kubeconfigOK, Context: "prod"})
	require.NoError(t, err)
	_, err = f.reg.Create(ctx, "owner-1", CreateInput{Name: "staging", Kubeconfig: kubeconfigOK, Context: "staging"})
	require.NoError(t, err)
	_, err = f.reg.Activate(ctx, "owner-1", prod.ID)
	require.NoError(t, err)

	require.NoError(t, f.reg.Delete(ctx, "owner-1", prod.ID))

	// Sem promoção automática: estado nulo explícito.
	_, err = f.reg.Active(ctx, "owner-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateKubeconfigEvictsHandle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cluster, err := f.reg.Create(ctx, "owner-1", CreateInput{Name: "prod", Kubeconfig: kubeconfigOK, Context: "prod"})
	require.NoError(t, err)
	created := atomic.LoadInt32(f.connectCount)

	_, err = f.reg.Client(ctx, "owner-1", cluster.ID)
	require.NoError(t, err)
	require.Equal(t, created+1, atomic.LoadInt32(f.connectCount))

	newCfg := kubeconfigOK + "# rotacionado\n"
	_, err = f.reg.Update(ctx, "owner-1", cluster.ID, UpdateInput{Kubeconfig: &newCfg})
	require.NoError(t, err)

	_, err = f.reg.Client(ctx, "owner-1", cluster.ID)
	require.NoError(t, err)
	require.Equal(t, created+2, atomic.LoadInt32(f.connectCount))
}

func TestTestConnectionSuccessUpdatesLastKnown(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cluster, err := f.reg.Create(ctx, "owner-1", CreateInput{Name: "prod", Kubeconfig: kubeconfigOK, Context: "prod"})
	require.NoError(t, err)

	result, err := f.reg.TestConnection(ctx, "owner-1", cluster.ID)
	require.NoError(t, err)
	require.True(t, result.Connected)

	stored := f.vault.clusters[cluster.ID]
	require.True(t, stored.IsConnected)
	require.NotNil(t, stored.LastConnectedAt)
}

func TestTestConnectionTimeoutLeavesRecordUntouched(t *testing.T) {
	var fail int32
	connect := func(ctx context.Context, kubeconfig []byte, contextName string) (*k8s.Client, error) {
		if atomic.LoadInt32(&fail) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return k8s.NewClient(kubefake.NewSimpleClientset()), nil
	}

	cipher, err := crypto.New(testKey)
	require.NoError(t, err)
	cache := conncache.New(cipher, connect, time.Minute, 20*time.Millisecond)
	t.Cleanup(cache.Close)
	fv := newFakeVault()
	reg := New(fv, cipher, cache)
	ctx := context.Background()

	cluster, err := reg.Create(ctx, "owner-1", CreateInput{Name: "prod", Kubeconfig: kubeconfigOK, Context: "prod"})
	require.NoError(t, err)

	// Cenário D: endpoint passa a não responder; o teste expira dentro do
	// limite e não altera o último estado conhecido.
	atomic.StoreInt32(&fail, 1)
	result, err := reg.TestConnection(ctx, "owner-1", cluster.ID)
	require.NoError(t, err)
	require.False(t, result.Connected)
	require.Contains(t, result.Error, "timeout")

	stored := fv.clusters[cluster.ID]
	require.False(t, stored.IsConnected)
	require.Nil(t, stored.LastConnectedAt)
}

func TestConnectionTestPreservesConcurrentActivation(t *testing.T) {
	var gated int32
	entered := make(chan struct{})
	gate := make(chan struct{})
	connect := func(ctx context.Context, kubeconfig []byte, contextName string) (*k8s.Client, error) {
		if atomic.LoadInt32(&gated) == 1 {
			close(entered)
			<-gate
		}
		return k8s.NewClient(kubefake.NewSimpleClientset()), nil
	}

	cipher, err := crypto.New(testKey)
	require.NoError(t, err)
	cache := conncache.New(cipher, connect, time.Minute, time.Second)
	t.Cleanup(cache.Close)
	fv := newFakeVault()
	reg := New(fv, cipher, cache)
	f := &fixture{reg: reg, vault: fv, cipher: cipher}
	ctx := context.Background()

	a, err := reg.Create(ctx, "owner-1", CreateInput{Name: "a", Kubeconfig: kubeconfigOK, Context: "a"})
	require.NoError(t, err)
	b, err := reg.Create(ctx, "owner-1", CreateInput{Name: "b", Kubeconfig: kubeconfigOK, Context: "b"})
	require.NoError(t, err)
	_, err = reg.Activate(ctx, "owner-1", a.ID)
	require.NoError(t, err)

	// O teste de conexão de "a" fica pendurado no dial enquanto o usuário
	// ativa "b". O resultado gravado não pode ressuscitar a flag velha de "a".
	atomic.StoreInt32(&gated, 1)
	var (
		wg      sync.WaitGroup
		result  *TestResult
		testErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, testErr = reg.TestConnection(ctx, "owner-1", a.ID)
	}()
	<-entered

	_, err = reg.Activate(ctx, "owner-1", b.ID)
	require.NoError(t, err)

	close(gate)
	wg.Wait()
	require.NoError(t, testErr)
	require.True(t, result.Connected)
	requireSingleActive(t, f, "owner-1", b.ID)
}

func TestListOrderedByCreation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	names := []string{"um", "dois", "tres"}
	for _, name := range names {
		_, err := f.reg.Create(ctx, "owner-1", CreateInput{Name: name, Kubeconfig: kubeconfigOK, Context: name})
		require.NoError(t, err)
	}

	clusters, err := f.reg.List(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, clusters, 3)
	for i, name := range names {
		require.Equal(t, name, clusters[i].Name)
	}
}
