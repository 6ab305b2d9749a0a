package cron

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(filepath.Join(t.TempDir(), "jobs.json"))
}

func TestNewCronJob(t *testing.T) {
	job := NewCronJob("test", Schedule{Kind: "cron", Expr: "0 * * * * *"}, Payload{Message: "hello"})
	if job.ID == "" {
		t.Error("job must get an id")
	}
	if !job.Enabled {
		t.Error("new jobs start enabled")
	}
	if job.CreatedAtMs == 0 {
		t.Error("creation time not set")
	}
}

func TestAddListRemoveJob(t *testing.T) {
	s := newTestService(t)

	job, err := s.AddJob("daily", Schedule{Kind: "cron", Expr: "0 0 9 * * *"}, Payload{Message: "summary"})
	if err != nil {
		t.Fatalf("AddJob error: %v", err)
	}

	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != "daily" {
		t.Fatalf("jobs = %+v", jobs)
	}

	if !s.RemoveJob(job.ID) {
		t.Fatal("RemoveJob returned false")
	}
	if len(s.ListJobs()) != 0 {
		t.Error("job not removed")
	}
	if s.RemoveJob("missing") {
		t.Error("removing a missing job must return false")
	}
}

func TestEnableJob(t *testing.T) {
	s := newTestService(t)
	job, err := s.AddJob("j", Schedule{Kind: "every", EveryMs: 60000}, Payload{Message: "m"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := s.EnableJob(job.ID, false)
	if err != nil {
		t.Fatalf("EnableJob error: %v", err)
	}
	if updated.Enabled {
		t.Error("job should be disabled")
	}

	if _, err := s.EnableJob("missing", true); err == nil {
		t.Error("want error for unknown job")
	}
}

func TestJobsPersistAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s1 := NewService(path)
	if _, err := s1.AddJob("persisted", Schedule{Kind: "every", EveryMs: 60000}, Payload{Message: "m"}); err != nil {
		t.Fatal(err)
	}

	s2 := NewService(path)
	if err := s2.load(); err != nil {
		t.Fatalf("load error: %v", err)
	}
	jobs := s2.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != "persisted" {
		t.Fatalf("jobs after reload = %+v", jobs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "nope", "jobs.json"))
	if err := s.load(); err != nil {
		t.Errorf("load of missing file should be silent, got %v", err)
	}
}

func TestEveryJobExecutes(t *testing.T) {
	s := newTestService(t)

	var mu sync.Mutex
	fired := 0
	s.OnJob = func(job CronJob) (string, error) {
		mu.Lock()
		fired++
		mu.Unlock()
		return "ok", nil
	}

	if _, err := s.AddJob("tick", Schedule{Kind: "every", EveryMs: 100}, Payload{Message: "tick"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := fired
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("every-job never fired")
		case <-time.After(50 * time.Millisecond):
		}
	}

	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].State.LastStatus != "ok" {
		t.Errorf("job state = %+v", jobs)
	}
}

func TestAtJobRunsOnceAndDeletes(t *testing.T) {
	s := newTestService(t)

	done := make(chan struct{}, 1)
	s.OnJob = func(job CronJob) (string, error) {
		select {
		case done <- struct{}{}:
		default:
		}
		return "ok", nil
	}

	job := NewCronJob("once", Schedule{Kind: "at", AtMs: time.Now().UnixMilli() - 1}, Payload{Message: "go"})
	job.DeleteAfterRun = true
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("at-job never fired")
	}

	// Deletion happens under the same execution path; give it a moment.
	time.Sleep(100 * time.Millisecond)
	if n := len(s.ListJobs()); n != 0 {
		t.Errorf("jobs remaining = %d, want 0", n)
	}
}

func TestStatePersistedAfterFailure(t *testing.T) {
	s := newTestService(t)
	s.OnJob = func(CronJob) (string, error) {
		return "", os.ErrDeadlineExceeded
	}

	job, err := s.AddJob("failing", Schedule{Kind: "every", EveryMs: 60000}, Payload{Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	s.executeJob(*job)

	jobs := s.ListJobs()
	if jobs[0].State.LastStatus != "error" || jobs[0].State.LastError == "" {
		t.Errorf("state = %+v", jobs[0].State)
	}
}
