package deploy

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/eleutherai/neoxctl/pkg/config"
	kclient "github.com/eleutherai/neoxctl/pkg/k8s/client"
	"github.com/eleutherai/neoxctl/pkg/manifest"
	"github.com/eleutherai/neoxctl/pkg/provision"
)

func testDeployer(t *testing.T, clientset kclient.Interface) (*Deployer, config.Deployment) {
	t.Helper()
	cfg, err := config.Resolve(config.Options{Branch: "main", NodeCount: 2, Suffix: "alice"})
	require.NoError(t, err)
	return New(clientset, &rest.Config{Host: "https://127.0.0.1"}, cfg), cfg
}

func resolvedManifest(t *testing.T, cfg config.Deployment) *appsv1.Deployment {
	t.Helper()
	tmpl, err := manifest.Load("")
	require.NoError(t, err)
	dep, err := tmpl.Resolve(cfg, "neox-alice-1700000000")
	require.NoError(t, err)
	return dep
}

// fakeExec records staged files keyed by the exec command line.
type fakeExec struct {
	commands []string
	payloads []string
}

func (f *fakeExec) factory() executorFactory {
	return func(_ *rest.Config, _ string, u *url.URL) (remoteExecutor, error) {
		f.commands = append(f.commands, strings.Join(u.Query()["command"], " "))
		return f, nil
	}
}

func (f *fakeExec) StreamWithContext(_ context.Context, opts remotecommand.StreamOptions) error {
	if opts.Stdin != nil {
		b, _ := io.ReadAll(opts.Stdin)
		f.payloads = append(f.payloads, string(b))
	}
	return nil
}

func TestDeleteExisting(t *testing.T) {
	cfg, err := config.Resolve(config.Options{Suffix: "alice"})
	require.NoError(t, err)

	t.Run("absent deployment is not an error", func(t *testing.T) {
		d, _ := testDeployer(t, fake.NewClientset())
		assert.NoError(t, d.deleteExisting(context.Background(), "neox-alice"))
	})

	t.Run("existing deployment is removed", func(t *testing.T) {
		clientset := fake.NewClientset(&appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Name: "neox-alice", Namespace: cfg.Namespace},
		})
		d, _ := testDeployer(t, clientset)
		require.NoError(t, d.deleteExisting(context.Background(), "neox-alice"))

		_, getErr := clientset.AppsV1().Deployments(cfg.Namespace).
			Get(context.Background(), "neox-alice", metav1.GetOptions{})
		assert.Error(t, getErr)
	})
}

func TestTrainingPods(t *testing.T) {
	podLabels := map[string]string{"app.kubernetes.io/name": "gpt-neox"}
	clientset := fake.NewClientset(
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "neox-alice-b", Namespace: "default", Labels: podLabels},
			Status:     corev1.PodStatus{PodIP: "10.0.0.2"},
		},
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "neox-alice-a", Namespace: "default", Labels: podLabels},
			Status:     corev1.PodStatus{PodIP: "10.0.0.1"},
		},
	)

	d, cfg := testDeployer(t, clientset)
	pods, err := d.trainingPods(context.Background(), resolvedManifest(t, cfg))
	require.NoError(t, err)
	require.Len(t, pods, 2)

	// Ordered by name so the primary pod is stable across runs.
	assert.Equal(t, "neox-alice-a", pods[0].Name)
}

func TestTrainingPodsEmpty(t *testing.T) {
	d, cfg := testDeployer(t, fake.NewClientset())
	_, err := d.trainingPods(context.Background(), resolvedManifest(t, cfg))
	assert.Error(t, err)
}

func TestWaitAvailable(t *testing.T) {
	d, cfg := testDeployer(t, fake.NewClientset())
	dep := resolvedManifest(t, cfg)

	created, err := d.clientset.AppsV1().Deployments(cfg.Namespace).
		Create(context.Background(), dep, metav1.CreateOptions{})
	require.NoError(t, err)

	// Flip the status to available shortly after the watch starts.
	go func() {
		time.Sleep(100 * time.Millisecond)
		created.Status.AvailableReplicas = 2
		created.Status.ObservedGeneration = created.Generation
		_, _ = d.clientset.AppsV1().Deployments(cfg.Namespace).
			UpdateStatus(context.Background(), created, metav1.UpdateOptions{})
	}()

	assert.NoError(t, d.waitAvailable(context.Background(), dep, 5*time.Second))
}

func TestWaitAvailableTimeout(t *testing.T) {
	d, cfg := testDeployer(t, fake.NewClientset())
	dep := resolvedManifest(t, cfg)

	_, err := d.clientset.AppsV1().Deployments(cfg.Namespace).
		Create(context.Background(), dep, metav1.CreateOptions{})
	require.NoError(t, err)

	err = d.waitAvailable(context.Background(), dep, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestDeploymentAvailable(t *testing.T) {
	dep := resolvedManifest(t, config.Deployment{
		Branch: "main", NodeCount: 2, Suffix: "alice", Namespace: "default",
	})

	assert.False(t, deploymentAvailable(dep))

	dep.Status.AvailableReplicas = 2
	dep.Status.ObservedGeneration = dep.Generation
	assert.True(t, deploymentAvailable(dep))

	dep.Status.AvailableReplicas = 1
	assert.False(t, deploymentAvailable(dep))
}

func TestBuildCopyCommand(t *testing.T) {
	cmd := buildCopyCommand("/root/.ssh/id_rsa", "600")
	require.Len(t, cmd, 3)
	assert.Equal(t, "sh", cmd[0])
	assert.Equal(t, "-c", cmd[1])
	assert.Equal(t, "mkdir -p /root/.ssh && cat > /root/.ssh/id_rsa && chmod 600 /root/.ssh/id_rsa", cmd[2])
}

func TestStageFile(t *testing.T) {
	d, _ := testDeployer(t, fake.NewClientset())
	fx := &fakeExec{}
	d.newExecutor = fx.factory()

	err := d.stageFile(context.Background(), "neox-alice-a", "neox",
		HostfilePath, "644", []byte("10.0.0.1 slots=8\n"))
	require.NoError(t, err)

	require.Len(t, fx.payloads, 1)
	assert.Equal(t, "10.0.0.1 slots=8\n", fx.payloads[0])
}

func TestRunStagesArtifactsAndCleansUp(t *testing.T) {
	clientset := fake.NewClientset()
	d, cfg := testDeployer(t, clientset)
	fx := &fakeExec{}
	d.newExecutor = fx.factory()

	dep := resolvedManifest(t, cfg)

	// Simulate the controller: mark available and create pods once the
	// deployment shows up.
	go func() {
		podLabels := dep.Spec.Selector.MatchLabels
		for i := 0; i < 50; i++ {
			time.Sleep(50 * time.Millisecond)
			current, err := clientset.AppsV1().Deployments(cfg.Namespace).
				Get(context.Background(), dep.Name, metav1.GetOptions{})
			if err != nil {
				continue
			}
			current.Status.AvailableReplicas = 2
			current.Status.ObservedGeneration = current.Generation
			_, _ = clientset.AppsV1().Deployments(cfg.Namespace).
				UpdateStatus(context.Background(), current, metav1.UpdateOptions{})
			for _, pod := range []struct{ name, ip string }{
				{"neox-alice-a", "10.0.0.1"},
				{"neox-alice-b", "10.0.0.2"},
			} {
				_, _ = clientset.CoreV1().Pods(cfg.Namespace).Create(context.Background(),
					&corev1.Pod{
						ObjectMeta: metav1.ObjectMeta{
							Name: pod.name, Namespace: cfg.Namespace, Labels: podLabels,
						},
						Status: corev1.PodStatus{PodIP: pod.ip},
					}, metav1.CreateOptions{})
			}
		}
	}()

	creds := provisionedCreds(t, clientset, cfg)
	workDir := creds.WorkDir

	err := d.Run(context.Background(), dep, creds, Options{Timeout: 10 * time.Second})
	require.NoError(t, err)

	// Hostfile then private key staged onto the primary pod.
	require.Len(t, fx.payloads, 2)
	assert.Contains(t, fx.payloads[0], "slots=8")
	assert.Contains(t, fx.payloads[1], "RSA PRIVATE KEY")
	assert.True(t, strings.Contains(fx.commands[0], "hostfile") ||
		strings.Contains(fx.commands[1], "hostfile"))

	// Local key material is gone regardless of outcome.
	assert.Empty(t, creds.WorkDir)
	assert.NoDirExists(t, workDir)
}

func TestRunCleansUpOnFailure(t *testing.T) {
	clientset := fake.NewClientset()
	d, cfg := testDeployer(t, clientset)

	creds := provisionedCreds(t, clientset, cfg)
	workDir := creds.WorkDir

	// Nothing ever marks the deployment available, so the wait times out.
	err := d.Run(context.Background(), resolvedManifest(t, cfg), creds,
		Options{Timeout: 300 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "left in place")
	assert.NoDirExists(t, workDir)
}

func provisionedCreds(t *testing.T, clientset kclient.Interface, cfg config.Deployment) *provision.Result {
	t.Helper()
	creds, err := provision.New(clientset, cfg).Provision(context.Background())
	require.NoError(t, err)
	t.Cleanup(creds.Cleanup)
	return creds
}
