package core

import (
	"github.com/sirupsen/logrus"
)

// Event names are part of the operational contract: operators and tests match
// on the "event" field, so these strings must not change.
const (
	EventDefaultRepairing           = "DEFAULT_REPAIRING"
	EventDefaultRepaired            = "DEFAULT_REPAIRED"
	EventOrphanRootsDetected        = "ORPHAN_ROOTS_DETECTED"
	EventOrphanRootsDetectionFailed = "ORPHAN_ROOTS_DETECTION_FAILED"
	EventOrphanRootsRepairing       = "ORPHAN_ROOTS_REPAIRING"
	EventOrphanRootsRepaired        = "ORPHAN_ROOTS_REPAIRED"
)

func emitEvent(log *logrus.Logger, level logrus.Level, event string, fields logrus.Fields) {
	if log == nil {
		return
	}
	fields["event"] = event
	log.WithFields(fields).Log(level, event)
}
