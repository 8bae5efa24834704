// Package capmonster talks to the CapMonster task API, which backs both
// image-to-text recognition and interactive-challenge token solving.
package capmonster

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"consulta-vehicular-go/internal/platform/config"
	"consulta-vehicular-go/internal/platform/errors"
)

const defaultBaseURL = "https://api.capmonster.cloud"

const pollInterval = time.Second

// Client is a thin wrapper over the two-call task protocol: createTask
// then poll getTaskResult until ready.
type Client struct {
	http    *resty.Client
	key     string
	baseURL string
}

var (
	factoryMu sync.Mutex
	factory   = make(map[string]*Client)
)

// NewClient returns a client for the given configuration, reusing a
// cached instance when one with the same fingerprint exists.
func NewClient(cfg config.CaptchaConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	fingerprint := cfg.CapmonsterKey + "|" + baseURL

	factoryMu.Lock()
	defer factoryMu.Unlock()
	if c, ok := factory[fingerprint]; ok {
		return c
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(15 * time.Second),
		key:     cfg.CapmonsterKey,
		baseURL: baseURL,
	}
	factory[fingerprint] = c
	return c
}

type createTaskRequest struct {
	ClientKey string `json:"clientKey"`
	Task      any    `json:"task"`
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    int64  `json:"taskId"`
}

type taskResultResponse struct {
	ErrorID          int      `json:"errorId"`
	ErrorDescription string   `json:"errorDescription"`
	Status           string   `json:"status"`
	Solution         solution `json:"solution"`
}

type solution struct {
	Text  string `json:"text"`
	Token string `json:"token"`
}

// run submits a task and polls until it resolves or ctx expires.
func (c *Client) run(ctx context.Context, task any) (solution, error) {
	body, err := sonic.Marshal(createTaskRequest{ClientKey: c.key, Task: task})
	if err != nil {
		return solution{}, errors.Wrap(errors.KindInternal, "capmonster.create", "marshal task", err)
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/createTask")
	if err != nil {
		return solution{}, errors.Wrap(errors.KindUpstream, "capmonster.create", "createTask call", err)
	}

	var created createTaskResponse
	if err := sonic.Unmarshal(resp.Body(), &created); err != nil {
		return solution{}, errors.Wrap(errors.KindUpstream, "capmonster.create", "decode createTask response", err)
	}
	if created.ErrorID != 0 {
		return solution{}, errors.New(errors.KindUpstream, "capmonster.create", "createTask rejected: "+created.ErrorDescription)
	}

	pollBody, err := sonic.Marshal(taskResultRequest{ClientKey: c.key, TaskID: created.TaskID})
	if err != nil {
		return solution{}, errors.Wrap(errors.KindInternal, "capmonster.poll", "marshal poll request", err)
	}

	for {
		select {
		case <-ctx.Done():
			return solution{}, errors.Wrap(errors.KindTimeout, "capmonster.poll", "task did not resolve in time", ctx.Err())
		case <-time.After(pollInterval):
		}

		resp, err := c.http.R().SetContext(ctx).SetBody(pollBody).Post("/getTaskResult")
		if err != nil {
			return solution{}, errors.Wrap(errors.KindUpstream, "capmonster.poll", "getTaskResult call", err)
		}

		var res taskResultResponse
		if err := sonic.Unmarshal(resp.Body(), &res); err != nil {
			return solution{}, errors.Wrap(errors.KindUpstream, "capmonster.poll", "decode getTaskResult response", err)
		}
		if res.ErrorID != 0 {
			return solution{}, errors.New(errors.KindUpstream, "capmonster.poll", "task failed: "+res.ErrorDescription)
		}
		if res.Status == "ready" {
			return res.Solution, nil
		}
	}
}
