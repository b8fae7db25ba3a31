/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

package deploy

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/term"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/eleutherai/neoxctl/pkg/errors"
)

// attach opens an interactive shell into the pod. This is a convenience for
// operators; in a headless run (no TTY on stdin) it logs and returns nil.
func (d *Deployer) attach(ctx context.Context, pod, container string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		slog.Info("stdin is not a terminal, skipping interactive attach", "pod", pod)
		return nil
	}

	req := d.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(d.cfg.Namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   []string{"/bin/bash"},
			Stdin:     true,
			Stdout:    true,
			Stderr:    true,
			TTY:       true,
		}, scheme.ParameterCodec)

	exec, err := d.newExecutor(d.restConfig, "POST", req.URL())
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to build attach executor", err)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to put terminal in raw mode", err)
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	slog.Info("attaching to primary pod", "pod", pod)
	if err := exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Tty:    true,
	}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "interactive session failed", err)
	}
	return nil
}
