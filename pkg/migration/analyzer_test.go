package migration

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		kind   ErrorKind
		sev    Severity
		retry  bool
		manual bool
	}{
		{"permission sentinel", os.ErrPermission, KindPermissionDenied, SeverityHigh, false, true},
		{"eacces errno", syscall.EACCES, KindPermissionDenied, SeverityHigh, false, true},
		{"wrapped eperm", fmt.Errorf("rename: %w", syscall.EPERM), KindPermissionDenied, SeverityHigh, false, true},
		{"enospc", syscall.ENOSPC, KindDiskSpaceInsufficient, SeverityCritical, false, true},
		{"ebusy", syscall.EBUSY, KindFileLocked, SeverityHigh, true, false},
		{"etxtbsy", syscall.ETXTBSY, KindFileLocked, SeverityHigh, true, false},
		{"not exist sentinel", os.ErrNotExist, KindSourceNotFound, SeverityMedium, false, false},
		{"wrapped enoent", fmt.Errorf("stat: %w", syscall.ENOENT), KindSourceNotFound, SeverityMedium, false, false},
		{"exist sentinel", fmt.Errorf("target already exists: %w", os.ErrExist), KindTargetExists, SeverityMedium, false, false},
		{"enotempty", syscall.ENOTEMPTY, KindTargetExists, SeverityMedium, false, false},
		{"anything else", errors.New("disk fell off"), KindUnknown, SeverityMedium, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Classify(tc.err, "1970 - Paranoid")
			assert.Equal(t, tc.kind, c.Kind)
			assert.Equal(t, tc.sev, c.Severity)
			assert.Equal(t, tc.retry, c.Retryable)
			assert.Equal(t, tc.manual, c.ManualIntervention)
			assert.NotEmpty(t, c.SolutionSteps)
		})
	}
}

func TestClassifyIncludesContextInSteps(t *testing.T) {
	c := Classify(os.ErrPermission, "1970 - Paranoid")
	assert.Contains(t, c.SolutionSteps[0], "1970 - Paranoid")
}

func TestKindAndSeverityStrings(t *testing.T) {
	assert.Equal(t, "permission_denied", KindPermissionDenied.String())
	assert.Equal(t, "disk_space_insufficient", KindDiskSpaceInsufficient.String())
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "critical", SeverityCritical.String())
	assert.Equal(t, "medium", SeverityMedium.String())
}
