package edge

import (
	"context"
	"strings"

	"github.com/harunnryd/copydesk/internal/poller"
)

// StatusSource checks async jobs through the job-status edge function.
type StatusSource struct {
	client   *Client
	function string
}

func NewStatusSource(client *Client, function string) *StatusSource {
	return &StatusSource{client: client, function: function}
}

func (s *StatusSource) Status(ctx context.Context, jobID string) (poller.JobStatus, error) {
	resp, err := s.client.Invoke(ctx, s.function, map[string]any{"jobId": jobID})
	if err != nil {
		return poller.JobStatus{}, err
	}

	status := poller.JobStatus{State: poller.ParseState(strings.ToLower(stringField(resp, "status")))}
	for _, key := range []string{"artifactUrl", "videoUrl", "url", "gammaUrl"} {
		if v := stringField(resp, key); v != "" {
			status.ArtifactURL = v
			break
		}
	}
	status.Error = stringField(resp, "error")
	return status, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
