package k8s

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// ContainerInfo resume um container de um pod.
type ContainerInfo struct {
	Name         string `json:"name"`
	Image        string `json:"image"`
	Ready        bool   `json:"ready"`
	RestartCount int    `json:"restartCount"`
}

// PodInfo é o DTO de listagem de pods devolvido ao frontend.
type PodInfo struct {
	Name       string            `json:"name"`
	Namespace  string            `json:"namespace"`
	Phase      string            `json:"phase"`
	PodIP      string            `json:"podIp,omitempty"`
	NodeName   string            `json:"nodeName,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Containers []ContainerInfo   `json:"containers"`
	CreatedAt  string            `json:"createdAt,omitempty"`
}

// ListPods lista pods de um namespace ("" = todos).
func (c *Client) ListPods(ctx context.Context, namespace string) ([]PodInfo, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar pods: %w", err)
	}
	out := make([]PodInfo, 0, len(pods.Items))
	for _, p := range pods.Items {
		out = append(out, podToInfo(&p))
	}
	return out, nil
}

func podToInfo(p *corev1.Pod) PodInfo {
	info := PodInfo{
		Name:      p.Name,
		Namespace: p.Namespace,
		Phase:     string(p.Status.Phase),
		PodIP:     p.Status.PodIP,
		NodeName:  p.Spec.NodeName,
		Labels:    p.Labels,
	}
	if !p.CreationTimestamp.IsZero() {
		info.CreatedAt = p.CreationTimestamp.UTC().Format("2006-01-02T15:04:05Z")
	}
	statuses := map[string]corev1.ContainerStatus{}
	for _, st := range p.Status.ContainerStatuses {
		statuses[st.Name] = st
	}
	for _, ct := range p.Spec.Containers {
		ci := ContainerInfo{Name: ct.Name, Image: ct.Image}
		if st, ok := statuses[ct.Name]; ok {
			ci.Ready = st.Ready
			ci.RestartCount = int(st.RestartCount)
		}
		info.Containers = append(info.Containers, ci)
	}
	return info
}

// Stats devolve as contagens de nós e pods do cluster.
func (c *Client) Stats(ctx context.Context) (nodeCount, podCount int, err error) {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("erro ao listar nós: %w", err)
	}
	pods, err := c.clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("erro ao listar pods: %w", err)
	}
	return len(nodes.Items), len(pods.Items), nil
}

// ListNamespaces devolve os nomes dos namespaces.
func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	nsList, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar namespaces: %w", err)
	}
	names := make([]string, 0, len(nsList.Items))
	for _, ns := range nsList.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}

// NodeInfo resume um nó do cluster.
type NodeInfo struct {
	Name    string            `json:"name"`
	Ready   bool              `json:"ready"`
	Version string            `json:"version"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// ListNodes lista os nós do cluster.
func (c *Client) ListNodes(ctx context.Context) ([]NodeInfo, error) {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar nós: %w", err)
	}
	out := make([]NodeInfo, 0, len(nodes.Items))
	for _, n := range nodes.Items {
		ready := false
		for _, cond := range n.Status.Conditions {
			if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
				ready = true
			}
		}
		out = append(out, NodeInfo{
			Name:    n.Name,
			Ready:   ready,
			Version: n.Status.NodeInfo.KubeletVersion,
			Labels:  n.Labels,
		})
	}
	return out, nil
}

// WorkloadInfo resume um deployment ou service.
type WorkloadInfo struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Kind      string `json:"kind"`
	Ready     string `json:"ready,omitempty"`
	Type      string `json:"type,omitempty"`
	ClusterIP string `json:"clusterIp,omitempty"`
}

// ListDeployments lista deployments de um namespace ("" = todos).
func (c *Client) ListDeployments(ctx context.Context, namespace string) ([]WorkloadInfo, error) {
	deps, err := c.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar deployments: %w", err)
	}
	out := make([]WorkloadInfo, 0, len(deps.Items))
	for _, d := range deps.Items {
		out = append(out, WorkloadInfo{
			Name:      d.Name,
			Namespace: d.Namespace,
			Kind:      "Deployment",
			Ready:     fmt.Sprintf("%d/%d", d.Status.ReadyReplicas, d.Status.Replicas),
		})
	}
	return out, nil
}

// ListServices lista services de um namespace ("" = todos).
func (c *Client) ListServices(ctx context.Context, namespace string) ([]WorkloadInfo, error) {
	svcs, err := c.clientset.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar services: %w", err)
	}
	out := make([]WorkloadInfo, 0, len(svcs.Items))
	for _, s := range svcs.Items {
		out = append(out, WorkloadInfo{
			Name:      s.Name,
			Namespace: s.Namespace,
			Kind:      "Service",
			Type:      string(s.Spec.Type),
			ClusterIP: s.Spec.ClusterIP,
		})
	}
	return out, nil
}

// PodLogs busca as últimas linhas de log de um pod (container opcional).
func (c *Client) PodLogs(ctx context.Context, namespace, name, container string, tailLines int64) ([]string, error) {
	opts := &corev1.PodLogOptions{TailLines: &tailLines}
	if container != "" {
		opts.Container = container
	}

	req := c.clientset.CoreV1().Pods(namespace).GetLogs(name, opts)
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir stream de logs: %w", err)
	}
	defer stream.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, stream); err != nil {
		return nil, fmt.Errorf("erro ao ler logs: %w", err)
	}

	raw := strings.TrimRight(buf.String(), "\n")
	if raw == "" {
		return []string{}, nil
	}
	return strings.Split(raw, "\n"), nil
}

// ResourceYAML busca o recurso e o converte para YAML. Sem dynamic client,
// cobrimos só os tipos mais comuns da UI.
func (c *Client) ResourceYAML(ctx context.Context, ns, kind, name string) (string, error) {
	var obj interface{}
	var err error

	switch kind {
	case "Pod":
		obj, err = c.clientset.CoreV1().Pods(ns).Get(ctx, name, metav1.GetOptions{})
	case "Service":
		obj, err = c.clientset.CoreV1().Services(ns).Get(ctx, name, metav1.GetOptions{})
	case "Deployment":
		obj, err = c.clientset.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
	case "StatefulSet":
		obj, err = c.clientset.AppsV1().StatefulSets(ns).Get(ctx, name, metav1.GetOptions{})
	case "DaemonSet":
		obj, err = c.clientset.AppsV1().DaemonSets(ns).Get(ctx, name, metav1.GetOptions{})
	case "ReplicaSet":
		obj, err = c.clientset.AppsV1().ReplicaSets(ns).Get(ctx, name, metav1.GetOptions{})
	case "Namespace":
		obj, err = c.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	case "Node":
		obj, err = c.clientset.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	default:
		return "", fmt.Errorf("tipo de recurso não suportado para visualização YAML: %s", kind)
	}
	if err != nil {
		return "", err
	}

	y, err := yaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("erro ao converter para yaml: %w", err)
	}
	return string(y), nil
}
