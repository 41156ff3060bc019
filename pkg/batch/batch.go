// Package batch downloads many files, one keep-alive connection per host.
package batch

import (
	"context"
	"path"
	"strconv"
	"strings"

	"fortio.org/log"
	"golang.org/x/sync/errgroup"

	"github.com/bentsolheim/httpsink/pkg/client"
	"github.com/bentsolheim/httpsink/pkg/constants"
	"github.com/bentsolheim/httpsink/pkg/errors"
	"github.com/bentsolheim/httpsink/pkg/request"
	"github.com/bentsolheim/httpsink/pkg/transport"
)

// Job is one file to fetch.
type Job struct {
	// Scheme overrides Options.Transport.Scheme when set.
	Scheme string
	Host   string
	Port   uint16
	Path   string
	Dest   string
}

func (j Job) key(defScheme string) string {
	scheme := j.Scheme
	if scheme == "" {
		scheme = defScheme
	}
	return strings.ToLower(scheme) + "://" + j.Host + ":" + strconv.Itoa(int(j.Port))
}

// Result pairs a job with its outcome.
type Result struct {
	Job     Job
	Outcome client.Outcome
}

// Options controls a batch run.
type Options struct {
	Transport transport.Config
	Client    client.Options

	// MaxConcurrentHosts bounds how many hosts are downloaded from at once.
	MaxConcurrentHosts int

	// KeepAlive reuses one connection for consecutive jobs on the same host.
	KeepAlive bool

	// NewTransport builds the transport for one host group. Nil uses
	// transport.New with Transport.
	NewTransport func(cfg transport.Config) client.Transport
}

// Run downloads every job and returns results in job order. Jobs for the same
// scheme, host and port run sequentially on a shared client; groups run
// concurrently. A failed job does not stop the others.
func Run(ctx context.Context, jobs []Job, opts Options) []Result {
	results := make([]Result, len(jobs))
	groups, order := group(jobs, opts.Transport.Scheme)

	limit := opts.MaxConcurrentHosts
	if limit <= 0 {
		limit = constants.DefaultMaxConcurrentHosts
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, key := range order {
		idx := groups[key]
		g.Go(func() error {
			runGroup(ctx, jobs, idx, results, opts)
			return nil
		})
	}
	g.Wait()
	return results
}

// group buckets job indexes by destination, keeping first-seen order.
func group(jobs []Job, defScheme string) (map[string][]int, []string) {
	groups := make(map[string][]int)
	var order []string
	for i, j := range jobs {
		k := j.key(defScheme)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	return groups, order
}

func runGroup(ctx context.Context, jobs []Job, idx []int, results []Result, opts Options) {
	cfg := opts.Transport
	if s := jobs[idx[0]].Scheme; s != "" {
		cfg.Scheme = s
	}
	newTransport := opts.NewTransport
	if newTransport == nil {
		newTransport = func(cfg transport.Config) client.Transport { return transport.New(cfg) }
	}

	c := client.New(newTransport(cfg), opts.Client)
	defer c.Close()

	first := jobs[idx[0]]
	log.Infof("batch: %d file(s) from %s:%d", len(idx), first.Host, first.Port)

	for n, i := range idx {
		job := jobs[i]
		results[i].Job = job

		if err := ctx.Err(); err != nil {
			results[i].Outcome = client.Outcome{Code: client.ConnectionFailed, ContentLength: -1, Err: err}
			continue
		}

		policy := request.PolicyClose
		if opts.KeepAlive && n < len(idx)-1 {
			policy = request.PolicyKeepAlive
		}
		req := request.Request{Host: job.Host, Path: job.Path, Policy: policy}
		out := c.DownloadFile(ctx, req, job.Port, job.Dest)
		results[i].Outcome = out

		if out.OK() {
			log.S(log.Info, "downloaded",
				log.Str("host", job.Host),
				log.Str("path", job.Path),
				log.Str("dest", job.Dest),
				log.Attr("bytes", out.BytesCopied),
				log.Str("throughput", throughput(out)))
		} else {
			log.Errf("batch: %s%s -> %s: %v", job.Host, job.Path, job.Dest, out)
		}
	}
}

func throughput(out client.Outcome) string {
	return strconv.FormatFloat(out.Metrics.Throughput(out.BytesCopied)/1024, 'f', 1, 64) + " KiB/s"
}

// FileName derives a local file name from a request path. The last path
// segment is used, without query; an empty segment yields "index.html".
func FileName(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	base := path.Base(p)
	if base == "/" || base == "." || base == "" {
		return "index.html"
	}
	return base
}

// Summary counts results.
type Summary struct {
	Ok     int
	Failed int

	// Cancelled counts the failures caused by context cancellation. They are
	// included in Failed.
	Cancelled int

	Bytes int64
}

// Summarize totals a run.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.Bytes += r.Outcome.BytesCopied
		if r.Outcome.OK() {
			s.Ok++
		} else {
			s.Failed++
			if errors.IsContextCanceled(r.Outcome.Err) {
				s.Cancelled++
			}
		}
	}
	return s
}
