package k8s

import (
	"context"
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Client encapsula o clientset de um cluster. A interface (em vez do
// *Clientset concreto) permite injetar o fake do client-go nos testes.
type Client struct {
	clientset kubernetes.Interface
}

// NewClient embrulha um clientset já construído (usado em testes).
func NewClient(cs kubernetes.Interface) *Client {
	return &Client{clientset: cs}
}

// Connect constrói um cliente a partir de um kubeconfig em texto puro e do
// nome do contexto desejado. O deadline do ctx vira o timeout das requisições
// REST, para que chamadas contra clusters inalcançáveis não fiquem penduradas.
func Connect(ctx context.Context, kubeconfig []byte, contextName string) (*Client, error) {
	raw, err := clientcmd.Load(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("kubeconfig inválido: %w", err)
	}

	clientConfig := clientcmd.NewNonInteractiveClientConfig(*raw, contextName, &clientcmd.ConfigOverrides{}, nil)
	restCfg, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("erro ao criar REST config: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		restCfg.Timeout = time.Until(deadline)
	}

	cs, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar clientset: %w", err)
	}
	return &Client{clientset: cs}, nil
}

// Version consulta a versão do servidor. Também serve de teste de
// alcançabilidade: construir o clientset não toca a rede.
func (c *Client) Version(ctx context.Context) (string, error) {
	info, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return "", err
	}
	return info.GitVersion, nil
}
