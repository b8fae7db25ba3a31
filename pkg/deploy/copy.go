/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/eleutherai/neoxctl/pkg/defaults"
	"github.com/eleutherai/neoxctl/pkg/errors"
)

// remoteExecutor is the subset of remotecommand.Executor used here, pulled
// into an interface so tests can stub the SPDY dialer.
type remoteExecutor interface {
	StreamWithContext(ctx context.Context, options remotecommand.StreamOptions) error
}

type executorFactory func(config *rest.Config, method string, u *url.URL) (remoteExecutor, error)

func spdyExecutor(config *rest.Config, method string, u *url.URL) (remoteExecutor, error) {
	return remotecommand.NewSPDYExecutor(config, method, u)
}

// stageFile streams content into destPath on the pod through the exec
// subresource, avoiding any dependency on a local kubectl binary.
func (d *Deployer) stageFile(ctx context.Context, pod, container, destPath, mode string, content []byte) error {
	copyCtx, cancel := context.WithTimeout(ctx, defaults.PodCopyTimeout)
	defer cancel()

	req := d.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(d.cfg.Namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   buildCopyCommand(destPath, mode),
			Stdin:     true,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := d.newExecutor(d.restConfig, "POST", req.URL())
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to build pod executor", err)
	}

	var stderr bytes.Buffer
	if err := exec.StreamWithContext(copyCtx, remotecommand.StreamOptions{
		Stdin:  bytes.NewReader(content),
		Stdout: io.Discard,
		Stderr: &stderr,
	}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal,
			fmt.Sprintf("failed to stage %s on pod %s: %s", destPath, pod, stderr.String()), err)
	}
	return nil
}

// buildCopyCommand writes stdin to destPath, creating the parent directory
// and fixing the mode so staged keys stay owner-only.
func buildCopyCommand(destPath, mode string) []string {
	dir := path.Dir(destPath)
	return []string{"sh", "-c",
		fmt.Sprintf("mkdir -p %s && cat > %s && chmod %s %s", dir, destPath, mode, destPath)}
}
