package store

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RunStatus tracks the live progress of one pipeline job. It is transient
// operational state, separate from the artifact cache.
type RunStatus struct {
	Status   string            `json:"status"`
	Progress int               `json:"progress"`
	Message  string            `json:"message"`
	Start    *time.Time        `json:"start_time,omitempty"`
	End      *time.Time        `json:"end_time,omitempty"`
	Stages   map[string]string `json:"stages,omitempty"`
}

// RedisRunStatus persists job statuses in Redis hashes keyed job:<id>:status.
type RedisRunStatus struct {
	client *redis.Client
	keyNS  string
}

// NewRedisRunStatus connects and pings the server.
func NewRedisRunStatus(redisURL string) (*RedisRunStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisRunStatus{client: c, keyNS: "job"}, nil
}

func (s *RedisRunStatus) key(jobID string) string {
	return fmt.Sprintf("%s:%s:status", s.keyNS, jobID)
}

// Set writes the whole status. Fields not present in st are overwritten.
func (s *RedisRunStatus) Set(ctx context.Context, jobID string, st RunStatus) error {
	m := map[string]interface{}{
		"status":   st.Status,
		"progress": st.Progress,
		"message":  st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	return s.client.HSet(ctx, s.key(jobID), m).Err()
}

// SetStage records the fingerprint a stage resolved to for the job, so
// consumers can fetch the matching artifact while later stages still run.
func (s *RedisRunStatus) SetStage(ctx context.Context, jobID, stage, fp string) error {
	return s.client.HSet(ctx, s.key(jobID), "stage:"+stage, fp).Err()
}

// Get reads the status; the second return is false when the job is unknown.
func (s *RedisRunStatus) Get(ctx context.Context, jobID string) (RunStatus, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return RunStatus{}, false, err
	}
	if len(res) == 0 {
		return RunStatus{}, false, nil
	}
	st := RunStatus{Status: res["status"], Message: res["message"]}
	if p, ok := res["progress"]; ok && p != "" {
		var pi int
		fmt.Sscan(p, &pi)
		st.Progress = pi
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	for k, v := range res {
		if len(k) > 6 && k[:6] == "stage:" {
			if st.Stages == nil {
				st.Stages = make(map[string]string)
			}
			st.Stages[k[6:]] = v
		}
	}
	return st, true, nil
}

// Ping checks connectivity, for readiness probes.
func (s *RedisRunStatus) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisRunStatus) Close() error { return s.client.Close() }
