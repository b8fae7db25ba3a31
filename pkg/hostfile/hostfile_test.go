package hostfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
)

func podWithIP(ip string) corev1.Pod {
	return corev1.Pod{Status: corev1.PodStatus{PodIP: ip}}
}

func TestBuild(t *testing.T) {
	out := Build([]corev1.Pod{podWithIP("10.0.0.1"), podWithIP("10.0.0.2")})
	assert.Equal(t, "10.0.0.1 slots=8\n10.0.0.2 slots=8\n", out)
}

func TestBuildSkipsPodsWithoutIP(t *testing.T) {
	out := Build([]corev1.Pod{podWithIP("10.0.0.1"), podWithIP(""), podWithIP("10.0.0.3")})
	assert.Equal(t, "10.0.0.1 slots=8\n10.0.0.3 slots=8\n", out)
}

func TestBuildEmpty(t *testing.T) {
	assert.Empty(t, Build(nil))
}
