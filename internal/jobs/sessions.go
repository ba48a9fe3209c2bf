package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/niagahub/niaga-backend/internal/models"
	"github.com/niagahub/niaga-backend/internal/services"
	"github.com/niagahub/niaga-backend/internal/storage"
)

// qrStaleAfter is how long a QR_PENDING session may sit before its code
// is considered abandoned and cleared.
const qrStaleAfter = 10 * time.Minute

// SessionJob resumes persisted connections at boot and sweeps abandoned
// pairing sessions.
type SessionJob struct {
	store   storage.Store
	manager *services.ConnectionManager

	interval time.Duration
	stop     chan struct{}
}

// NewSessionJob creates the session maintenance job.
func NewSessionJob(store storage.Store, manager *services.ConnectionManager) *SessionJob {
	return &SessionJob{
		store:    store,
		manager:  manager,
		interval: time.Minute,
		stop:     make(chan struct{}),
	}
}

// Start resumes previously connected sessions, then begins the sweep loop.
func (j *SessionJob) Start() {
	logrus.Info("[JOBS] resuming persisted sessions")
	j.manager.ResumeSessions(context.Background())

	go j.run()
	logrus.Info("[JOBS] session maintenance started")
}

// Stop halts the sweep loop.
func (j *SessionJob) Stop() {
	close(j.stop)
	logrus.Info("[JOBS] session maintenance stopped")
}

func (j *SessionJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweepStaleQR()
		case <-j.stop:
			return
		}
	}
}

// sweepStaleQR clears pairing codes nobody scanned. The merchant has to
// re-initiate pairing, which regenerates a fresh code anyway.
func (j *SessionJob) sweepStaleQR() {
	sessions, err := j.store.GetSessionsByStatus(models.SessionStatusQRPending)
	if err != nil {
		logrus.Errorf("[JOBS] QR sweep scan failed: %v", err)
		return
	}

	cutoff := time.Now().Add(-qrStaleAfter)
	for _, sess := range sessions {
		if sess.QRCode == "" || sess.UpdatedAt.After(cutoff) {
			continue
		}
		now := time.Now()
		sess.Status = models.SessionStatusDisconnected
		sess.QRCode = ""
		sess.LastDisconnectedAt = &now
		if err := j.store.UpsertSession(sess); err != nil {
			logrus.WithField("tenant_id", sess.TenantID).Warnf("[JOBS] QR sweep update failed: %v", err)
			continue
		}
		logrus.WithField("tenant_id", sess.TenantID).Info("[JOBS] cleared stale pairing session")
	}
}
