package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/vkube-console/internal/conncache"
	"github.com/example/vkube-console/internal/crypto"
	"github.com/example/vkube-console/internal/k8s"
	"github.com/example/vkube-console/internal/models"
	"github.com/example/vkube-console/internal/vault"
)

var (
	// ErrNotFound cobre cluster inexistente e cluster de outro dono,
	// indistinguíveis de propósito.
	ErrNotFound = errors.New("cluster não encontrado")
	// ErrInvalidInput indica campo obrigatório vazio.
	ErrInvalidInput = errors.New("entrada inválida")
	// ErrInvalidCredential indica kubeconfig/contexto que não conecta.
	ErrInvalidCredential = errors.New("kubeconfig ou contexto inválido")
)

// CreateInput são os campos aceitos no registro de um cluster. O kubeconfig
// chega em texto puro e só existe decifrado dentro desta chamada.
type CreateInput struct {
	Name        string
	Kubeconfig  string
	Context     string
	Description string
	Tags        []string
}

// UpdateInput é o patch de edição; campos nil ficam como estão.
type UpdateInput struct {
	Name        *string
	Description *string
	Kubeconfig  *string
	Context     *string
	Tags        *[]string
}

// TestResult é o resultado de um teste de conexão. Um teste que falha não é
// um erro da operação: o motivo volta no próprio resultado.
type TestResult struct {
	Connected bool   `json:"connected"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Registry é o dono do ciclo de vida dos clusters de cada usuário: CRUD,
// ativação (no máximo um ativo por dono) e teste de conexão.
type Registry struct {
	vault  vault.Store
	cipher *crypto.Cipher
	cache  *conncache.Cache
}

// New cria o registro de clusters.
func New(v vault.Store, cipher *crypto.Cipher, cache *conncache.Cache) *Registry {
	return &Registry{vault: v, cipher: cipher, cache: cache}
}

// Create valida o kubeconfig tentando uma conexão real antes de persistir.
// Falha de conexão devolve ErrInvalidCredential sem gravar nada. O cluster
// novo nunca nasce ativo.
func (r *Registry) Create(ctx context.Context, ownerID string, in CreateInput) (*models.Cluster, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: nome obrigatório", ErrInvalidInput)
	}
	if in.Kubeconfig == "" {
		return nil, fmt.Errorf("%w: kubeconfig obrigatório", ErrInvalidInput)
	}
	if in.Context == "" {
		return nil, fmt.Errorf("%w: contexto obrigatório", ErrInvalidInput)
	}

	if _, err := r.cache.Probe(ctx, []byte(in.Kubeconfig), in.Context); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	ciphertext, err := r.cipher.Encrypt([]byte(in.Kubeconfig))
	if err != nil {
		return nil, err
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	cluster := &models.Cluster{
		ID:                  uuid.NewString(),
		OwnerID:             ownerID,
		Name:                in.Name,
		Description:         in.Description,
		Context:             in.Context,
		EncryptedKubeconfig: ciphertext,
		Tags:                tags,
	}
	if err := r.vault.Create(ctx, cluster); err != nil {
		return nil, err
	}
	return cluster, nil
}

// Get devolve um cluster do dono informado.
func (r *Registry) Get(ctx context.Context, ownerID, id string) (*models.Cluster, error) {
	return r.load(ctx, ownerID, id)
}

// List devolve os clusters do dono em ordem de criação. Não toca conexões
// vivas: é o caminho barato de exibição.
func (r *Registry) List(ctx context.Context, ownerID string) ([]models.Cluster, error) {
	return r.vault.ListByOwner(ctx, ownerID)
}

// Active devolve o cluster ativo do dono, ou ErrNotFound se nenhum estiver
// ativo (estado nulo explícito após deleção do ativo).
func (r *Registry) Active(ctx context.Context, ownerID string) (*models.Cluster, error) {
	clusters, err := r.vault.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range clusters {
		if clusters[i].IsActive {
			return &clusters[i], nil
		}
	}
	return nil, ErrNotFound
}

// Update aplica o patch. Troca de kubeconfig ou de contexto recifra a
// credencial e derruba o handle em cache.
func (r *Registry) Update(ctx context.Context, ownerID, id string, in UpdateInput) (*models.Cluster, error) {
	cluster, err := r.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, fmt.Errorf("%w: nome obrigatório", ErrInvalidInput)
		}
		cluster.Name = *in.Name
	}
	if in.Description != nil {
		cluster.Description = *in.Description
	}
	if in.Tags != nil {
		cluster.Tags = *in.Tags
	}

	credChanged := false
	if in.Kubeconfig != nil {
		if *in.Kubeconfig == "" {
			return nil, fmt.Errorf("%w: kubeconfig obrigatório", ErrInvalidInput)
		}
		ciphertext, err := r.cipher.Encrypt([]byte(*in.Kubeconfig))
		if err != nil {
			return nil, err
		}
		cluster.EncryptedKubeconfig = ciphertext
		credChanged = true
	}
	if in.Context != nil && *in.Context != cluster.Context {
		if *in.Context == "" {
			return nil, fmt.Errorf("%w: contexto obrigatório", ErrInvalidInput)
		}
		cluster.Context = *in.Context
		credChanged = true
	}
	if credChanged {
		r.cache.Invalidate(cluster.ID)
	}

	if err := r.vault.UpdateDetails(ctx, cluster); err != nil {
		return nil, err
	}
	return cluster, nil
}

// Delete remove o cluster e derruba o handle. Se o deletado era o ativo,
// nenhum outro é promovido: a UI pede ao usuário que escolha um novo.
func (r *Registry) Delete(ctx context.Context, ownerID, id string) error {
	cluster, err := r.load(ctx, ownerID, id)
	if err != nil {
		return err
	}
	r.cache.Invalidate(cluster.ID)
	return r.vault.Delete(ctx, cluster.ID)
}

// Activate torna o cluster o ativo do dono, desativando os demais de forma
// atômica no vault.
func (r *Registry) Activate(ctx context.Context, ownerID, id string) (*models.Cluster, error) {
	if err := r.vault.SetActive(ctx, ownerID, id); err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.load(ctx, ownerID, id)
}

// TestConnection força uma conexão nova e atualiza o último estado conhecido
// em caso de sucesso. Uma tentativa que falha não altera nada e volta com o
// motivo no resultado; erro de verdade só por id/dono inválido ou storage.
func (r *Registry) TestConnection(ctx context.Context, ownerID, id string) (*TestResult, error) {
	cluster, err := r.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	r.cache.Invalidate(cluster.ID)
	client, err := r.cache.GetOrConnect(ctx, cluster)
	if err != nil {
		return &TestResult{Connected: false, Error: err.Error()}, nil
	}

	version, err := client.Version(ctx)
	if err != nil {
		return &TestResult{Connected: false, Error: err.Error()}, nil
	}
	nodeCount, podCount, err := client.Stats(ctx)
	if err != nil {
		return &TestResult{Connected: false, Error: err.Error()}, nil
	}

	// Escrita restrita às colunas de conexão: o registro foi carregado antes
	// da conexão e pode estar defasado em relação a um Activate concorrente.
	now := time.Now()
	cluster.IsConnected = true
	cluster.Version = version
	cluster.NodeCount = nodeCount
	cluster.PodCount = podCount
	cluster.LastConnectedAt = &now
	if err := r.vault.UpdateConnStatus(ctx, cluster); err != nil {
		return nil, err
	}

	return &TestResult{Connected: true, Version: version}, nil
}

// Client devolve o handle vivo do cluster (conectando se preciso), para os
// proxies de listagem de recursos.
func (r *Registry) Client(ctx context.Context, ownerID, id string) (*k8s.Client, error) {
	cluster, err := r.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return r.cache.GetOrConnect(ctx, cluster)
}

func (r *Registry) load(ctx context.Context, ownerID, id string) (*models.Cluster, error) {
	cluster, err := r.vault.Load(ctx, id)
	if errors.Is(err, vault.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cluster.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return cluster, nil
}
