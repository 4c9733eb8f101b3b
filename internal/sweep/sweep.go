// Package sweep runs the periodic expiry pass over stored passes and
// guest visits.  Validation already expires rows lazily on scan; the
// sweep exists so reporting queries and dashboards see terminal states
// without waiting for the next scan.
package sweep

import (
	"context"
	"database/sql"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/iliyamo/qr-access-control/internal/repository"
)

// Sweeper owns the cron schedule and the repositories it drives.
type Sweeper struct {
	db       *sql.DB
	passes   *repository.PassRepo
	subjects *repository.SubjectRepo
	cron     *cron.Cron
}

func New(db *sql.DB, passes *repository.PassRepo, subjects *repository.SubjectRepo) *Sweeper {
	return &Sweeper{db: db, passes: passes, subjects: subjects, cron: cron.New()}
}

// Start schedules the sweep with the given cron spec and launches the
// scheduler.  The spec accepts standard cron syntax plus descriptors
// like "@every 10m".
func (s *Sweeper) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.Run(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Run executes one sweep in a single transaction: institutional passes
// past their expiry flip to EXPIRED, lapsed guest visits flip to
// COMPLETED and their ACTIVE passes to EXPIRED.  Doing all three in one
// transaction keeps a visit and its passes from disagreeing.
func (s *Sweeper) Run(ctx context.Context) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("sweep: begin tx: %v", err)
		return
	}
	defer tx.Rollback()

	inst, err := s.passes.ExpireStaleInstitutionalTx(ctx, tx)
	if err != nil {
		log.Printf("sweep: expire institutional passes: %v", err)
		return
	}
	guest, err := s.passes.ExpireActiveOfLapsedGuestsTx(ctx, tx)
	if err != nil {
		log.Printf("sweep: expire guest passes: %v", err)
		return
	}
	visits, err := s.subjects.CompleteLapsedVisitsTx(ctx, tx)
	if err != nil {
		log.Printf("sweep: complete lapsed visits: %v", err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("sweep: commit: %v", err)
		return
	}
	if inst+guest+visits > 0 {
		log.Printf("sweep: expired %d institutional passes, %d guest passes, completed %d visits", inst, guest, visits)
	}
}
