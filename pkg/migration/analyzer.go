package migration

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrorKind classifies a filesystem failure hit during migration.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindDiskSpaceInsufficient
	KindFileLocked
	KindSourceNotFound
	KindTargetExists
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindDiskSpaceInsufficient:
		return "disk_space_insufficient"
	case KindFileLocked:
		return "file_locked"
	case KindSourceNotFound:
		return "source_not_found"
	case KindTargetExists:
		return "target_exists"
	default:
		return "unknown"
	}
}

// Severity grades how serious a classified failure is.
type Severity int

const (
	SeverityMedium Severity = iota
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "medium"
	}
}

// Classification is the analyzed form of one migration failure.
type Classification struct {
	Kind      ErrorKind
	Severity  Severity
	Retryable bool

	// ManualIntervention is set when no automatic recovery can succeed and
	// the operator has to act before re-invoking the migration.
	ManualIntervention bool

	// SolutionSteps lists remediation steps in the order to try them.
	SolutionSteps []string
}

// Classify maps a raised filesystem error into a Classification.
//
// This is a pure mapping: it inspects the error chain (os sentinel errors
// and errno values) and the operation context string, and never touches the
// filesystem itself.
//
//	permission denied  -> PermissionDenied        high      manual fix then retry
//	no space left      -> DiskSpaceInsufficient   critical  free space, else abort
//	busy / locked      -> FileLocked              high      wait and retry, else manual
//	source missing     -> SourceNotFound          medium    skip album
//	target exists      -> TargetExists            medium    retry with force, else manual
//	anything else      -> Unknown                 medium    retry, else manual
func Classify(err error, opContext string) Classification {
	switch {
	case errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM):
		return Classification{
			Kind:               KindPermissionDenied,
			Severity:           SeverityHigh,
			ManualIntervention: true,
			SolutionSteps: []string{
				fmt.Sprintf("check ownership and permissions of %s", opContext),
				"grant write access to the bandvault process user",
				"re-run the migration",
			},
		}
	case errors.Is(err, syscall.ENOSPC):
		return Classification{
			Kind:               KindDiskSpaceInsufficient,
			Severity:           SeverityCritical,
			ManualIntervention: true,
			SolutionSteps: []string{
				"free disk space on the volume holding the music root",
				"re-run the migration; until then the migration is aborted",
			},
		}
	case errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY):
		return Classification{
			Kind:      KindFileLocked,
			Severity:  SeverityHigh,
			Retryable: true,
			SolutionSteps: []string{
				fmt.Sprintf("wait for the process holding %s to release it", opContext),
				"close media players or indexers using the folder",
				"re-run the migration if the wait times out",
			},
		}
	case errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOENT):
		return Classification{
			Kind:     KindSourceNotFound,
			Severity: SeverityMedium,
			SolutionSteps: []string{
				fmt.Sprintf("album folder %s vanished; it is skipped", opContext),
				"re-scan the collection to refresh metadata",
			},
		}
	case errors.Is(err, os.ErrExist) || errors.Is(err, syscall.EEXIST) || errors.Is(err, syscall.ENOTEMPTY):
		return Classification{
			Kind:     KindTargetExists,
			Severity: SeverityMedium,
			SolutionSteps: []string{
				fmt.Sprintf("target folder %s already exists", opContext),
				"re-run with force to record and continue, or merge the folders manually",
			},
		}
	default:
		return Classification{
			Kind:      KindUnknown,
			Severity:  SeverityMedium,
			Retryable: true,
			SolutionSteps: []string{
				"retry the migration",
				"inspect the underlying error and fix it manually if retries fail",
			},
		}
	}
}
