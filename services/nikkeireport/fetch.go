package nikkeireport

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"nikkeireport-backend/lib/telemetry"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// transient statuses worth another attempt
var retryStatusCodes = map[int]bool{
	500: true, 502: true, 503: true, 504: true,
	522: true, 524: true, 408: true, 429: true,
}

type FetchOptions struct {
	// number of fetch workers, default 2
	Concurrency int
	// base delay between requests, randomized per request, default 2s
	Delay time.Duration
	// per-request timeout, default 25s
	Timeout time.Duration
	// identifying header, defaults to a desktop browser string
	UserAgent string
	// skip the robots.txt gate, off by default
	IgnoreRobots bool
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.Delay <= 0 {
		o.Delay = 2 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 25 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	return o
}

// Fetcher drives one request per work item through a bounded worker pool.
// A global limiter with per-request jitter paces dispatch, an adaptive
// throttle stretches the pace when the site slows down, and robots.txt
// directives are honored per host. Transient failures are retried up to
// 3 times; an item whose retries are exhausted is simply skipped, to be
// picked up again by the next missing-mode run.
type Fetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	opts    FetchOptions

	throttleMu sync.Mutex
	delay      time.Duration

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.Group
}

func NewFetcher(opts FetchOptions) *Fetcher {
	opts = opts.withDefaults()

	client := resty.New()
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Referer", "https://www.google.com")
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(3)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return retryStatusCodes[res.StatusCode()]
	})
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	telemetry.InstrumentResty(client, "services/nikkeireport/http")

	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(opts.Delay), 1),
		opts:    opts,
		delay:   opts.Delay,
		robots:  map[string]*robotstxt.Group{},
	}
}

type FetchHandler func(ctx context.Context, item WorkItem, doc *goquery.Document) error

// Fetch runs the work list to completion, invoking handle once per
// successfully fetched and parsed page. A handler error cancels the
// remaining work and is returned; fetch failures only skip their item.
func (f *Fetcher) Fetch(ctx context.Context, items []WorkItem, handle FetchHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan WorkItem)
	var handleErr error
	var handleErrOnce sync.Once

	wg := sync.WaitGroup{}
	for i := 0; i < f.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				err := f.fetchOne(ctx, item, handle)
				if err != nil {
					handleErrOnce.Do(func() {
						handleErr = err
						cancel()
					})
					return
				}
			}
		}()
	}

	queued := 0
dispatch:
	for _, item := range items {
		select {
		case work <- item:
			queued++
			if queued%50 == 0 || queued == len(items) {
				slog.InfoContext(ctx, "queue progress", "queued", queued, "total", len(items))
			}
		case <-ctx.Done():
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	// parent cancellation is a graceful stop, the shutdown flush still runs
	return handleErr
}

// fetchOne returns an error only when the handler fails; fetch and parse
// problems degrade to a skipped item.
func (f *Fetcher) fetchOne(ctx context.Context, item WorkItem, handle FetchHandler) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil
	}
	f.jitter(ctx)
	if ctx.Err() != nil {
		return nil
	}

	if !f.allowed(ctx, item.Url) {
		slog.WarnContext(ctx, "disallowed by robots.txt", "code", item.Code, "url", item.Url)
		return nil
	}

	res, err := f.client.R().SetContext(ctx).Get(item.Url)
	if err != nil {
		slog.WarnContext(ctx, "fetch failed", "code", item.Code, "url", item.Url, "err", err)
		return nil
	}
	if res.StatusCode() != 200 {
		slog.WarnContext(ctx, "fetch failed", "code", item.Code, "url", item.Url, "status", res.StatusCode())
		return nil
	}
	f.adjustThrottle(res.Time())

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		slog.WarnContext(ctx, "failed to parse page", "code", item.Code, "url", item.Url, "err", err)
		return nil
	}

	return handle(ctx, item, doc)
}

// jitter sleeps an extra random interval up to the base delay, so the
// spacing between requests varies instead of ticking like a metronome.
func (f *Fetcher) jitter(ctx context.Context) {
	ms, err := random.IntRange(0, int(f.opts.Delay.Milliseconds())+1)
	if err != nil || ms == 0 {
		return
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
	}
}

const (
	throttleTargetConcurrency = 0.5
	throttleMaxDelay          = 30 * time.Second
)

// adjustThrottle nudges the request spacing toward latency divided by the
// target concurrency, clamped between the configured delay and 30s. Slow
// responses stretch the pace, fast ones relax it back down.
func (f *Fetcher) adjustThrottle(latency time.Duration) {
	f.throttleMu.Lock()
	defer f.throttleMu.Unlock()

	desired := time.Duration(float64(latency) / throttleTargetConcurrency)
	next := (f.delay + desired) / 2
	if next < f.opts.Delay {
		next = f.opts.Delay
	}
	if next > throttleMaxDelay {
		next = throttleMaxDelay
	}
	if next == f.delay {
		return
	}
	f.delay = next
	f.limiter.SetLimit(rate.Every(next))
	slog.Debug("throttle adjusted", "delay", next)
}

// allowed consults the host's robots.txt, fetched once per host. Hosts
// whose robots.txt cannot be fetched or parsed are treated as allowing
// everything.
func (f *Fetcher) allowed(ctx context.Context, rawUrl string) bool {
	if f.opts.IgnoreRobots {
		return true
	}
	link, err := url.Parse(rawUrl)
	if err != nil {
		return false
	}

	f.robotsMu.Lock()
	defer f.robotsMu.Unlock()

	group, ok := f.robots[link.Host]
	if !ok {
		group = f.fetchRobots(ctx, link)
		f.robots[link.Host] = group
	}
	if group == nil {
		return true
	}
	return group.Test(link.Path)
}

func (f *Fetcher) fetchRobots(ctx context.Context, link *url.URL) *robotstxt.Group {
	robotsUrl := url.URL{Scheme: link.Scheme, Host: link.Host, Path: "/robots.txt"}
	res, err := f.client.R().SetContext(ctx).Get(robotsUrl.String())
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch robots.txt", "host", link.Host, "err", err)
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(res.StatusCode(), res.Body())
	if err != nil {
		slog.WarnContext(ctx, "failed to parse robots.txt", "host", link.Host, "err", err)
		return nil
	}
	return data.FindGroup(f.opts.UserAgent)
}
