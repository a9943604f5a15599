package activitypub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
)

const (
	jobPollInterval   = 5 * time.Second
	incomingBatchSize = 10
	outgoingBatchSize = 10

	// A claimed job not completed within this window is considered
	// orphaned by a crash and becomes claimable again
	jobVisibilityTimeout = 30 * time.Minute

	// Failed incoming activities are retried at most this many times,
	// with a fixed delay between attempts
	incomingMaxRetries = 2
	incomingRetryDelay = 10 * time.Minute

	// One drain of the incoming batch must finish within this window;
	// unprocessed jobs fall back to the visibility-timeout reclaim
	incomingDrainTimeout = 2 * time.Minute
)

// StartJobWorkers launches the incoming and outgoing queue pollers.
// They run until the process exits.
func StartJobWorkers(conf *util.AppConfig) {
	go pollLoop(func() { ProcessIncomingJobs(conf) })
	go pollLoop(func() { ProcessOutgoingJobs(conf) })
	log.Printf("Queue: job workers started (poll interval %s)", jobPollInterval)
}

func pollLoop(run func()) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		run()
	}
}

// ProcessIncomingJobs claims one batch of incoming activities and runs
// each through the dispatcher. A retriable failure re-enqueues the
// activity with an incremented failure count; terminal failures and
// exhausted retries are dropped.
func ProcessIncomingJobs(conf *util.AppConfig) {
	err, jobs := db.GetDB().ClaimJobBatch(domain.JobTypeIncomingActivity, incomingBatchSize, jobVisibilityTimeout)
	if err != nil {
		log.Printf("Queue: failed to claim incoming jobs: %v", err)
		return
	}

	deadline := time.Now().Add(incomingDrainTimeout)
	for i, job := range *jobs {
		if time.Now().After(deadline) {
			log.Printf("Queue: drain deadline hit, leaving %d jobs for reclaim", len(*jobs)-i)
			return
		}
		processIncomingJob(conf, &job)
	}
}

func processIncomingJob(conf *util.AppConfig, job *domain.Job) {
	defer completeJob(job)

	var payload domain.IncomingActivityJob
	if err := json.Unmarshal([]byte(job.JobData), &payload); err != nil {
		log.Printf("Queue: dropping malformed incoming job %s: %v", job.Id, err)
		return
	}

	err := ProcessActivity(conf, payload.Activity, payload.IsAuthenticated)
	if err == nil {
		return
	}

	if isTerminal(err) || payload.FailureCount >= incomingMaxRetries {
		log.Printf("Queue: dropping activity after %d failures: %v", payload.FailureCount+1, err)
		return
	}

	payload.FailureCount++
	jobData, merr := json.Marshal(payload)
	if merr != nil {
		log.Printf("Queue: failed to serialize retry payload: %v", merr)
		return
	}
	log.Printf("Queue: retrying activity in %s (failure %d): %v", incomingRetryDelay, payload.FailureCount, err)
	if err := db.GetDB().EnqueueJob(domain.JobTypeIncomingActivity, string(jobData), time.Now().Add(incomingRetryDelay)); err != nil {
		log.Printf("Queue: failed to re-enqueue activity: %v", err)
	}
}

// ProcessOutgoingJobs claims one batch of deliveries and sends them
// concurrently, one goroutine per job. Delivery retries happen inside
// the job; the queue itself never redelivers a completed job.
func ProcessOutgoingJobs(conf *util.AppConfig) {
	err, jobs := db.GetDB().ClaimJobBatch(domain.JobTypeOutgoingActivity, outgoingBatchSize, jobVisibilityTimeout)
	if err != nil {
		log.Printf("Queue: failed to claim outgoing jobs: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, job := range *jobs {
		wg.Add(1)
		go func(job domain.Job) {
			defer wg.Done()
			processOutgoingJob(conf, &job)
		}(job)
	}
	wg.Wait()
}

func processOutgoingJob(conf *util.AppConfig, job *domain.Job) {
	defer completeJob(job)

	var payload domain.OutgoingActivityJob
	if err := json.Unmarshal([]byte(job.JobData), &payload); err != nil {
		log.Printf("Queue: dropping malformed outgoing job %s: %v", job.Id, err)
		return
	}

	err, sender := db.GetDB().ReadAccById(payload.SenderId)
	if err != nil || sender == nil {
		log.Printf("Queue: dropping delivery for unknown sender %s", payload.SenderId)
		return
	}

	deliverToInboxes(conf, sender, payload.Activity, payload.Recipients)
}

func completeJob(job *domain.Job) {
	if err := db.GetDB().CompleteJob(job.Id); err != nil {
		log.Printf("Queue: failed to complete job %s: %v", job.Id, err)
	}
}
