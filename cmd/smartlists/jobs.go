package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toozej/smartlists/internal/api"
	"github.com/toozej/smartlists/internal/jobs"
	"github.com/toozej/smartlists/pkg/useragent"
	"github.com/toozej/smartlists/pkg/version"
)

// newJobsCmd creates the jobs command for inspecting jobs of a running server.
func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect or cancel jobs on a running server",
		Long: `Talk to the HTTP API of a running 'smartlists serve' (SERVER_HOST and
SERVER_PORT) to read the status of a job or cancel it.`,
	}

	cmd.PersistentFlags().String("server", "", "Base URL of the server (default http://SERVER_HOST:SERVER_PORT)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [job-id]",
			Short: "Show the status of a job",
			Args:  cobra.ExactArgs(1),
			Run:   runJobsGet,
		},
		&cobra.Command{
			Use:   "cancel [job-id]",
			Short: "Cancel a running job",
			Args:  cobra.ExactArgs(1),
			Run:   runJobsCancel,
		},
	)

	return cmd
}

// JobsClient calls the job endpoints of the HTTP API.
type JobsClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewJobsClient creates a client for the server at baseURL.
func NewJobsClient(baseURL string, httpClient *http.Client) *JobsClient {
	return &JobsClient{baseURL: baseURL, httpClient: httpClient}
}

func (c *JobsClient) do(ctx context.Context, method, id string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/jobs/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, body.Error)
}

// Get fetches a job.
func (c *JobsClient) Get(ctx context.Context, id string) (jobs.Job, error) {
	resp, err := c.do(ctx, http.MethodGet, id)
	if err != nil {
		return jobs.Job{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jobs.Job{}, apiError(resp)
	}
	var job jobs.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return jobs.Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return job, nil
}

// Cancel asks the server to stop a job.
func (c *JobsClient) Cancel(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, id)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

func jobsClient(cmd *cobra.Command) *JobsClient {
	baseURL, _ := cmd.Flags().GetString("server")
	if baseURL == "" {
		baseURL = "http://" + conf.Server.Address()
	}
	httpClient := useragent.Client(version.Get().Version)
	httpClient.Timeout = 10 * time.Second
	return NewJobsClient(baseURL, httpClient)
}

// runJobsGet executes the jobs get command.
func runJobsGet(cmd *cobra.Command, args []string) {
	job, err := jobsClient(cmd).Get(context.Background(), args[0])
	if err != nil {
		log.WithError(err).Error("Failed to get job")
		return
	}
	printJobStatus(os.Stdout, job)
}

// runJobsCancel executes the jobs cancel command.
func runJobsCancel(cmd *cobra.Command, args []string) {
	if err := jobsClient(cmd).Cancel(context.Background(), args[0]); err != nil {
		log.WithError(err).Error("Failed to cancel job")
		return
	}
	log.WithField("job_id", args[0]).Info("Job cancelled")
}

// printJobStatus prints progress for active jobs and the summary for finished ones.
func printJobStatus(w io.Writer, job jobs.Job) {
	if job.State.Terminal() {
		printJob(w, job)
		return
	}
	_, _ = fmt.Fprintf(w, "\nJob %s (%s %s): %s\n", job.ID, job.Payload.Kind, job.Payload.Target, job.State)
	if job.Progress.Phase != "" {
		_, _ = fmt.Fprintf(w, "   Progress: %s %d/%d (%d%%)\n", job.Progress.Phase, job.Progress.Current, job.Progress.Total, job.Progress.Percentage)
	}
}
