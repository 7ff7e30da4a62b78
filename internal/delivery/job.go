package delivery

import (
	"bytes"
	"context"
	"errors"
	"fisconforme-backend/internal/archive"
	"fisconforme-backend/internal/batch"
	"fisconforme-backend/internal/components/assert"
	"fisconforme-backend/internal/components/chrono"
	"fisconforme-backend/internal/components/telemetry"
	"fmt"
)

const report_job_tenant = "job.tenant"

// Runner is the batch entry point, batch.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, tenant string) (batch.Run, error)
}

// Job runs the batch for a fixed tenant list and hands each archive to the
// sink. It is what the server schedules.
type Job struct {
	runner  Runner
	sink    Sink
	tenants []string
	clock   chrono.API
	tel     telemetry.API
}

func NewJob(runner Runner, sink Sink, tenants []string, clock chrono.API, tel telemetry.API) Job {
	assert.NotNil(runner)
	assert.NotNil(sink)
	assert.NotNil(clock)
	assert.NotNil(tel)
	return Job{
		runner:  runner,
		sink:    sink,
		tenants: tenants,
		clock:   clock,
		tel:     telemetry.NewScopedAPI("delivery", tel),
	}
}

// RunOnce processes every tenant, a failing tenant does not stop the others.
func (j Job) RunOnce(ctx context.Context) error {
	var errs []error
	for _, tenant := range j.tenants {
		err := j.deliverTenant(ctx, tenant)
		if err != nil {
			j.tel.ReportBroken(report_job_tenant, err, tenant)
			errs = append(errs, fmt.Errorf("%s: %w", tenant, err))
		}
	}
	return errors.Join(errs...)
}

func (j Job) deliverTenant(ctx context.Context, tenant string) error {
	run, err := j.runner.Run(ctx, tenant)
	if err != nil {
		return err
	}
	summary := run.Summary()
	if summary.Entities == 0 {
		j.tel.ReportDebug("job.tenant: no entities", tenant)
		return nil
	}

	var buf bytes.Buffer
	err = archive.Write(&buf, run.Bundle())
	if err != nil {
		return err
	}
	return j.sink.Deliver(ctx, Delivery{
		Tenant:   tenant,
		FileName: archive.ArchiveName(tenant, j.clock.Now()),
		Archive:  buf.Bytes(),
		Summary: fmt.Sprintf(
			"Empresas: %d, falhas: %d, documentos: %d.",
			summary.Entities,
			summary.Failed,
			summary.Artifacts,
		),
	})
}
