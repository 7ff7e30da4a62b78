package captcha

import (
	"context"
	"encoding/base64"
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/pkg/configutil"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_anticaptcha_create_task = "anticaptcha.create-task"
	report_anticaptcha_get_result  = "anticaptcha.get-result"
)

type AntiCaptchaConfig struct {
	ClientKey    string              `json:"client_key"`
	BaseUrl      string              `json:"base_url"`
	PollInterval configutil.Duration `json:"poll_interval"`
	Timeout      configutil.Duration `json:"timeout"`
}

// AntiCaptcha solves captchas through the anti-captcha.com json api.
type AntiCaptcha struct {
	client *resty.Client
	config AntiCaptchaConfig
	tel    telemetry.API
}

// NewOracle returns Noop when no client key is configured.
func NewOracle(config AntiCaptchaConfig, tel telemetry.API, output telemetry.InstrumentOutput) Oracle {
	if strings.TrimSpace(config.ClientKey) == "" {
		return Noop{}
	}
	return NewAntiCaptcha(config, tel, output)
}

func NewAntiCaptcha(config AntiCaptchaConfig, tel telemetry.API, output telemetry.InstrumentOutput) AntiCaptcha {
	tel = telemetry.NewScopedAPI("captcha", tel)
	if config.BaseUrl == "" {
		config.BaseUrl = "https://api.anti-captcha.com"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = configutil.Duration(2 * time.Second)
	}
	if config.Timeout <= 0 {
		config.Timeout = configutil.Duration(90 * time.Second)
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(config.BaseUrl, "/"))
	client.SetTimeout(30 * time.Second)
	client.SetHeader("content-type", "application/json")
	telemetry.InstrumentResty(client, tel, output)

	return AntiCaptcha{client: client, config: config, tel: tel}
}

type imageToTextTask struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

type createTaskRequest struct {
	ClientKey string          `json:"clientKey"`
	Task      imageToTextTask `json:"task"`
}

type createTaskResponse struct {
	ErrorId          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskId           int64  `json:"taskId"`
}

type getTaskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskId    int64  `json:"taskId"`
}

type getTaskResultResponse struct {
	ErrorId          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		Text string `json:"text"`
	} `json:"solution"`
}

func (a AntiCaptcha) createTask(ctx context.Context, image []byte) (int64, error) {
	var out createTaskResponse
	res, err := a.client.R().
		SetContext(ctx).
		SetBody(createTaskRequest{
			ClientKey: a.config.ClientKey,
			Task: imageToTextTask{
				Type: "ImageToTextTask",
				Body: base64.StdEncoding.EncodeToString(image),
			},
		}).
		SetResult(&out).
		Post("/createTask")
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	if res.IsError() {
		return 0, fmt.Errorf("unexpected status %d", res.StatusCode())
	}
	if out.ErrorId != 0 {
		return 0, fmt.Errorf("%s: %s", out.ErrorCode, out.ErrorDescription)
	}
	return out.TaskId, nil
}

func (a AntiCaptcha) taskResult(ctx context.Context, taskId int64) (getTaskResultResponse, error) {
	var out getTaskResultResponse
	res, err := a.client.R().
		SetContext(ctx).
		SetBody(getTaskResultRequest{ClientKey: a.config.ClientKey, TaskId: taskId}).
		SetResult(&out).
		Post("/getTaskResult")
	if err != nil {
		return out, fmt.Errorf("fetch: %w", err)
	}
	if res.IsError() {
		return out, fmt.Errorf("unexpected status %d", res.StatusCode())
	}
	if out.ErrorId != 0 {
		return out, fmt.Errorf("%s: %s", out.ErrorCode, out.ErrorDescription)
	}
	return out, nil
}

func (a AntiCaptcha) Solve(ctx context.Context, image []byte) (string, bool) {
	if len(image) == 0 {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout.Std())
	defer cancel()

	taskId, err := a.createTask(ctx, image)
	if err != nil {
		a.tel.ReportBroken(report_anticaptcha_create_task, err)
		return "", false
	}

	ticker := time.NewTicker(a.config.PollInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.tel.ReportWarning(report_anticaptcha_get_result, ctx.Err(), taskId)
			return "", false
		case <-ticker.C:
		}

		result, err := a.taskResult(ctx, taskId)
		if err != nil {
			a.tel.ReportBroken(report_anticaptcha_get_result, err, taskId)
			return "", false
		}
		if result.Status != "ready" {
			continue
		}
		answer := strings.TrimSpace(result.Solution.Text)
		if answer == "" {
			return "", false
		}
		return answer, true
	}
}
