package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/docuforge/docuforge/common/errdomain"
)

// Job statuses reported by the backend.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// JobStatus is a point-in-time view of a server job.
type JobStatus struct {
	Status   string `json:"status"`
	Progress int    `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// GetJobStatus fetches the current state of a job.
func (g *Gateway) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	resp, err := g.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    "/status/" + jobID,
		NoRetry: true,
	})
	if err != nil {
		return nil, err
	}
	var out JobStatus
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadJob fetches the result blob of a completed job.
func (g *Gateway) DownloadJob(ctx context.Context, jobID string) ([]byte, error) {
	resp, err := g.Do(ctx, Request{
		Method:       http.MethodGet,
		Path:         "/download/" + jobID,
		Timeout:      g.uploadTimeout,
		ResponseKind: ResponseBlob,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// WaitForJob polls a job at a fixed cadence until it reaches a terminal
// state, the try budget is exhausted, or the context is cancelled. The
// onProgress callback receives each observed progress value.
func (g *Gateway) WaitForJob(ctx context.Context, jobID string, onProgress func(int)) (*JobStatus, error) {
	for try := 0; try < g.pollMaxTries; try++ {
		if err := ctx.Err(); err != nil {
			return nil, errdomain.Wrap(errdomain.KindTimeout, "job wait cancelled", err)
		}

		status, err := g.GetJobStatus(ctx, jobID)
		if err != nil {
			g.log.Warn("job status poll failed", "job_id", jobID, "error", err)
		} else {
			if onProgress != nil && status.Progress > 0 {
				onProgress(status.Progress)
			}
			switch status.Status {
			case JobCompleted:
				return status, nil
			case JobFailed:
				if status.Error != "" {
					return nil, errdomain.New(errdomain.KindFile, status.Error)
				}
				return nil, errdomain.New(errdomain.KindFile, "server job failed")
			}
		}

		if err := g.sleep(ctx, g.pollInterval); err != nil {
			return nil, errdomain.Wrap(errdomain.KindTimeout, "job wait cancelled", err)
		}
	}

	return nil, errdomain.Newf(errdomain.KindTimeout, "job %s did not finish within the polling window", jobID)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
