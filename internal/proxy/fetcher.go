package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"autframe/internal/logger"
	"autframe/pkg/domain"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// Options 代理拉取选项
type Options struct {
	Timeout      time.Duration // 单次拉取总超时（含重试）
	Retries      int           // 传输失败时的重试次数
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
}

// Fetcher 通过后端网络栈拉取资源，非 2xx 状态原样返回，仅传输失败时返回错误
type Fetcher struct {
	client *resty.Client
	log    logger.Logger
}

// New 创建资源拉取器
func New(opts Options, l logger.Logger) *Fetcher {
	if l == nil {
		l = logger.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 200 * time.Millisecond
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = 2 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = l
	retryClient.CheckRetry = retryOnTransportError
	// 重试耗尽时返回最后一次结果而不是包装后的错误
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Fetcher{client: client, log: l}
}

// retryOnTransportError 只在未拿到响应时重试，任何状态码都原样交给调用方
func retryOnTransportError(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil, nil
}

// Fetch 以 GET 拉取 url，返回状态码、全部响应头与完整响应体
func (f *Fetcher) Fetch(ctx context.Context, url string) (*domain.Response, error) {
	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		f.log.Debug("资源拉取失败", "url", url, "error", err.Error())
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	f.log.Debug("资源拉取完成", "url", url, "status", resp.StatusCode(),
		"bytes", len(resp.Body()), "durationMs", time.Since(start).Milliseconds())

	return &domain.Response{
		StatusCode: resp.StatusCode(),
		Headers:    resp.Header().Clone(),
		Body:       resp.Body(),
	}, nil
}
